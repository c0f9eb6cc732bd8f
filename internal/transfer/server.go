package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/hamersaw/stip-sub000/internal/apierr"
)

// Handler receives a decoded tile write. Implementations live in the album
// package; transfer only knows the wire format, not storage layout.
type Handler interface {
	WriteTile(ctx context.Context, f Frame) error
}

// Server accepts tile-transfer connections on a single TCP listener. Each
// connection carries exactly one frame (spec §6.3: the transfer protocol is
// one-shot per tile, not a persistent stream), matching how the tiling
// pipeline calls out per-tile rather than batching.
type Server struct {
	ln      net.Listener
	handler Handler
}

// Listen binds addr and returns a Server ready to Serve.
func Listen(addr string, handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transfer: listen %s: %w", addr, err)
	}
	return &Server{ln: ln, handler: handler}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve accepts connections until ctx is canceled or the listener errors.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("transfer: accept: %w", err)
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	f, err := ReadFrame(conn)
	if err != nil {
		slog.Warn("transfer: malformed frame", "remote", conn.RemoteAddr(), "error", err)
		return
	}

	if f.Op != OpWrite {
		slog.Warn("transfer: unsupported op", "op", f.Op, "remote", conn.RemoteAddr())
		return
	}

	handlerErr := s.handler.WriteTile(ctx, f)
	if handlerErr != nil {
		slog.Warn("transfer: write tile failed", "album", f.Album, "geocode", f.Geocode,
			"tile_id", f.TileID, "kind", apierr.Of(handlerErr), "error", handlerErr)
	}

	if err := WriteAck(conn, handlerErr); err != nil {
		slog.Warn("transfer: write ack failed", "remote", conn.RemoteAddr(), "error", err)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error { return s.ln.Close() }
