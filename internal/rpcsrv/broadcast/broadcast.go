// Package broadcast fans one RPC call out to every reachable peer
// concurrently, collecting a per-peer reply or error without letting one
// peer's failure abort the others (spec §4.6).
package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hamersaw/stip-sub000/internal/model"
)

// Reply is one peer's outcome: either Data or Error is set.
type Reply struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Call performs the broadcast request against one peer.
type Call func(ctx context.Context, node model.Node) (json.RawMessage, error)

// Fan invokes call against every node concurrently via errgroup, returning
// a reply keyed by node id. A per-peer failure is recorded as that peer's
// Reply.Error; it never aborts the others (spec §4.6).
func Fan(ctx context.Context, nodes []model.Node, call Call) map[uint32]Reply {
	out := make(map[uint32]Reply, len(nodes))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		node := n
		g.Go(func() error {
			data, err := call(gctx, node)
			mu.Lock()
			if err != nil {
				out[node.ID] = Reply{Error: err.Error()}
			} else {
				out[node.ID] = Reply{Data: data}
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return out
}
