// Command node runs one cluster participant: gossip membership, the tile
// transfer listener, the album catalog, the task engine and the RPC
// surface all owned by a single process (spec §9's "cyclic ownership").
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamersaw/stip-sub000/internal/album"
	"github.com/hamersaw/stip-sub000/internal/cluster"
	"github.com/hamersaw/stip-sub000/internal/config"
	"github.com/hamersaw/stip-sub000/internal/decode"
	"github.com/hamersaw/stip-sub000/internal/decode/generic"
	"github.com/hamersaw/stip-sub000/internal/model"
	"github.com/hamersaw/stip-sub000/internal/raster/gdal"
	"github.com/hamersaw/stip-sub000/internal/rpcsrv"
	"github.com/hamersaw/stip-sub000/internal/task"
	"github.com/hamersaw/stip-sub000/internal/tiling"
	"github.com/hamersaw/stip-sub000/internal/transfer"
)

const (
	gossipInterval   = 1 * time.Second
	gossipFanout     = 3
	unreachableAfter = 10 * time.Second
	taskDispatchers  = 4
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		slog.Warn("loading .env", "error", err)
	}

	cmd := &cobra.Command{
		Use:   "node",
		Short: "run a stip cluster node",
	}
	cfg := config.BindNodeFlags(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return run(ctx, cfg)
	}

	if err := cmd.Execute(); err != nil {
		slog.Error("node exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Node) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	self := model.Node{
		ID:         cfg.NodeID,
		GossipAddr: cfg.GossipAddr(),
		RPCAddr:    cfg.RPCAddr(),
		XferAddr:   cfg.XferAddr(),
		Tokens:     cfg.Tokens,
	}

	slog.Info("starting node", "node_id", self.ID, "directory", cfg.Directory,
		"gossip_addr", self.GossipAddr, "rpc_addr", self.RPCAddr, "xfer_addr", self.XferAddr)

	store, err := album.Open(cfg.Directory)
	if err != nil {
		return err
	}

	view := cluster.NewView(self, unreachableAfter)
	transport := cluster.NewHTTPTransport(&http.Client{Timeout: 5 * time.Second})
	gossiper := cluster.NewGossiper(view, transport, gossipInterval, gossipFanout)

	if cfg.HasSeed() {
		joinCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		reply, err := transport.Exchange(joinCtx, cfg.SeedAddr(), view.Snapshot())
		cancel()
		if err != nil {
			slog.Warn("initial join exchange with seed failed, will retry via gossip", "seed_addr", cfg.SeedAddr(), "error", err)
		} else {
			view.Merge(reply)
			slog.Info("joined cluster via seed", "seed_addr", cfg.SeedAddr(), "peers_learned", len(reply))
		}
	}

	tasks := task.NewManager(ctx, taskDispatchers)
	defer tasks.Close()

	decoders := decode.NewRegistry()
	decoders.Register("generic", generic.Decoder{})

	rasters := gdal.New()

	pipeline := tiling.NewPipeline(store, rasters, decoders, view.Ring(), self.XferAddr)

	xferServer, err := transfer.Listen(self.XferAddr, store)
	if err != nil {
		return err
	}
	defer xferServer.Close()

	go func() {
		if err := xferServer.Serve(ctx); err != nil && ctx.Err() == nil {
			slog.Error("transfer server stopped", "error", err)
		}
	}()

	gossipMux := http.NewServeMux()
	gossipMux.Handle("/gossip", cluster.Handler(view))
	gossipServer := &http.Server{Addr: self.GossipAddr, Handler: gossipMux}
	go func() {
		if err := gossipServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("gossip server stopped", "error", err)
		}
	}()

	go gossiper.Run(ctx)

	rpc := rpcsrv.New(view, store, tasks, pipeline, self)
	httpServer := &http.Server{Addr: self.RPCAddr, Handler: rpc.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gossipServer.Shutdown(shutdownCtx)
		httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("rpc server listening", "addr", self.RPCAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
