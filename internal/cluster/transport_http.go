package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPTransport implements Transport as a single POST of the caller's
// snapshot batch to the peer's gossip address, receiving the peer's own
// batch in the response body.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport returns a transport using client, or http.DefaultClient
// if client is nil.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{Client: client}
}

func (t *HTTPTransport) Exchange(ctx context.Context, addr string, push []Snapshot) ([]Snapshot, error) {
	body, err := json.Marshal(push)
	if err != nil {
		return nil, fmt.Errorf("cluster: marshal gossip push: %w", err)
	}

	url := fmt.Sprintf("http://%s/gossip", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cluster: build gossip request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cluster: gossip exchange with %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cluster: gossip exchange with %s: status %d", addr, resp.StatusCode)
	}

	var reply []Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("cluster: decode gossip reply from %s: %w", addr, err)
	}
	return reply, nil
}

// Handler returns an http.HandlerFunc that serves the gossip endpoint: it
// decodes the caller's pushed snapshots, merges them into view, and
// replies with view's own current snapshot (the "pull" half of push-pull).
func Handler(view *View) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var push []Snapshot
		if err := json.NewDecoder(r.Body).Decode(&push); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		view.Merge(push)
		for _, s := range push {
			view.touch(s.Node.ID)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(view.Snapshot())
	}
}
