package rpcsrv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hamersaw/stip-sub000/internal/apierr"
	"github.com/hamersaw/stip-sub000/internal/model"
	"github.com/hamersaw/stip-sub000/internal/rpcsrv/broadcast"
	"github.com/hamersaw/stip-sub000/internal/task"
	"github.com/hamersaw/stip-sub000/internal/tiling"
)

// tilingRequest is the broadcast body for the Fill/Split/Coalesce image
// operations (spec §4.6); Type selects which task buildTilingTask builds.
type tilingRequest struct {
	Type           string `json:"type"`
	TaskID         uint64 `json:"task_id,omitempty"`
	Workers        int    `json:"thread_count"`
	Precision      int    `json:"precision,omitempty"`
	SourcePlatform string `json:"source_platform,omitempty"`
	TargetPlatform string `json:"target_platform,omitempty"`
	Platform       string `json:"platform,omitempty"`
	WindowSeconds  int64  `json:"window_seconds,omitempty"`
}

// buildTilingTask translates a tilingRequest into the concrete task.Task[any]
// it names.
func buildTilingTask(p *tiling.Pipeline, albumID string, req tilingRequest) (task.Task[any], error) {
	switch req.Type {
	case "split":
		return &tiling.SplitTask{Pipeline: p, AlbumID: albumID, Precision: req.Precision}, nil
	case "coalesce":
		return &tiling.CoalesceTask{
			Pipeline: p, AlbumID: albumID,
			SourcePlatform: req.SourcePlatform, TargetPlatform: req.TargetPlatform,
			WindowSeconds: req.WindowSeconds,
		}, nil
	case "fill":
		return &tiling.FillTask{Pipeline: p, AlbumID: albumID, Platform: req.Platform, WindowSeconds: req.WindowSeconds}, nil
	default:
		return nil, apierr.New(apierr.InvalidConfig, "buildTilingTask", fmt.Errorf("unknown tiling operation %q", req.Type))
	}
}

// fanToPeers forwards body to path on every node via broadcast.Fan, using
// each node's own RPC address (model.Node.RPCAddr) as the peer endpoint.
func fanToPeers(ctx context.Context, client *http.Client, nodes []model.Node, path string, body []byte) map[uint32]broadcast.Reply {
	return fanRequest(ctx, client, nodes, http.MethodPost, path, body)
}

// fanGetToPeers issues a GET against path on every node via broadcast.Fan.
func fanGetToPeers(ctx context.Context, client *http.Client, nodes []model.Node, path string) map[uint32]broadcast.Reply {
	return fanRequest(ctx, client, nodes, http.MethodGet, path, nil)
}

func fanRequest(ctx context.Context, client *http.Client, nodes []model.Node, method, path string, body []byte) map[uint32]broadcast.Reply {
	return broadcast.Fan(ctx, nodes, func(ctx context.Context, n model.Node) (json.RawMessage, error) {
		url := fmt.Sprintf("http://%s%s", n.RPCAddr, path)

		var bodyReader *bytes.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		} else {
			bodyReader = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, apierr.New(apierr.Transport, "fanRequest", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, apierr.New(apierr.Transport, "fanRequest", err)
		}
		defer resp.Body.Close()

		var raw json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return nil, apierr.New(apierr.Transport, "fanRequest", err)
		}
		if resp.StatusCode >= 400 {
			return nil, apierr.New(apierr.Transport, "fanRequest", fmt.Errorf("peer %s responded %d: %s", n.RPCAddr, resp.StatusCode, string(raw)))
		}
		return raw, nil
	})
}
