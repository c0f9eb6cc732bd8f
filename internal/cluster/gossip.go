// Package cluster implements the gossip/DHT fabric (spec §4.1): node
// membership via periodic push-pull gossip with last-write-wins merge, a
// token ring derived from the merged view, and the key-derivation helpers
// the tiling pipeline uses to route tiles.
package cluster

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"log/slog"

	"github.com/hamersaw/stip-sub000/internal/model"
)

// fieldValue is one entry of a peer's metadata map, versioned
// independently so merges are field-granular rather than whole-record
// (supplemented from the original implementation's per-field node state,
// spec §9/SPEC_FULL.md §5.1).
type fieldValue struct {
	Value string
	Gen   uint64
}

// peerRecord is everything the gossip layer tracks about one peer,
// beyond the model.Node it advertises.
type peerRecord struct {
	node      model.Node
	clock     uint64 // generation of node.Addrs/Tokens
	metadata  map[string]fieldValue
	lastSeen  time.Time
	reachable bool
}

// Snapshot is a point-in-time, gossip-format view of a peer usable on the
// wire: it flattens peerRecord into plain fields since fieldValue is an
// internal merge detail the receiving node reconstructs independently.
type Snapshot struct {
	Node      model.Node                  `json:"node"`
	Clock     uint64                      `json:"clock"`
	Metadata  map[string]snapshotField    `json:"metadata"`
	Reachable bool                        `json:"reachable"`
}

type snapshotField struct {
	Value string `json:"value"`
	Gen   uint64 `json:"gen"`
}

// View holds this node's membership state: its own record plus every peer
// learned about via gossip. All access is synchronized; Locate/Iter calls
// go through the companion Ring, rebuilt after every merge.
type View struct {
	mu       sync.RWMutex
	selfID   uint32
	peers    map[uint32]*peerRecord
	ring     *Ring
	unreach  time.Duration
}

// NewView creates a View seeded with the local node's own record at
// clock 1. UnreachableAfter is the gossip timeout window (spec §4.1).
func NewView(self model.Node, unreachableAfter time.Duration) *View {
	v := &View{
		selfID:  self.ID,
		peers:   make(map[uint32]*peerRecord),
		ring:    NewRing(),
		unreach: unreachableAfter,
	}
	v.peers[self.ID] = &peerRecord{
		node:      self,
		clock:     1,
		metadata:  make(map[string]fieldValue),
		lastSeen:  time.Now(),
		reachable: true,
	}
	v.ring.Rebuild([]model.Node{self})
	return v
}

// Ring returns the token ring derived from the current view.
func (v *View) Ring() *Ring { return v.ring }

// Self returns the local node's currently advertised record.
func (v *View) Self() model.Node {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.peers[v.selfID].node
}

// Bump increments the local node's clock, used as a heartbeat so peers can
// tell liveness apart from an address/token change (spec §4.1).
func (v *View) Bump() {
	v.mu.Lock()
	v.peers[v.selfID].clock++
	v.mu.Unlock()
}

// Snapshot serializes the current view for transmission to a peer.
func (v *View) Snapshot() []Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Snapshot, 0, len(v.peers))
	for _, p := range v.peers {
		md := make(map[string]snapshotField, len(p.metadata))
		for k, fv := range p.metadata {
			md[k] = snapshotField{Value: fv.Value, Gen: fv.Gen}
		}
		out = append(out, Snapshot{Node: p.node, Clock: p.clock, Metadata: md, Reachable: p.reachable})
	}
	return out
}

// Merge folds a batch of peer snapshots (received via push or pull) into
// the view using last-write-wins on the per-record clock, with
// field-granular merge of the metadata map. Rebuilds the ring when any
// node's address/token record actually changed.
func (v *View) Merge(snapshots []Snapshot) {
	v.mu.Lock()
	changed := false
	for _, s := range snapshots {
		existing, ok := v.peers[s.Node.ID]
		if !ok {
			md := make(map[string]fieldValue, len(s.Metadata))
			for k, fv := range s.Metadata {
				md[k] = fieldValue{Value: fv.Value, Gen: fv.Gen}
			}
			v.peers[s.Node.ID] = &peerRecord{
				node: s.Node, clock: s.Clock, metadata: md,
				lastSeen: time.Now(), reachable: true,
			}
			changed = true
			continue
		}

		if s.Clock > existing.clock {
			existing.node = s.Node
			existing.clock = s.Clock
			changed = true
		}
		for k, fv := range s.Metadata {
			cur, ok := existing.metadata[k]
			if !ok || fv.Gen > cur.Gen {
				existing.metadata[k] = fieldValue{Value: fv.Value, Gen: fv.Gen}
			}
		}
	}
	v.mu.Unlock()

	if changed {
		v.rebuildRing()
	}
}

// touch marks a peer as freshly, directly contacted.
func (v *View) touch(id uint32) {
	v.mu.Lock()
	if p, ok := v.peers[id]; ok {
		p.lastSeen = time.Now()
		if !p.reachable {
			p.reachable = true
			v.mu.Unlock()
			v.rebuildRing()
			return
		}
	}
	v.mu.Unlock()
}

// sweepUnreachable marks peers unreachable if not directly contacted
// within the timeout window. Peers are never purged (spec §4.1): a
// reappearance is a later merge, not a rejoin.
func (v *View) sweepUnreachable() {
	now := time.Now()
	changed := false

	v.mu.Lock()
	for id, p := range v.peers {
		if id == v.selfID {
			continue
		}
		if p.reachable && now.Sub(p.lastSeen) > v.unreach {
			p.reachable = false
			changed = true
		}
	}
	v.mu.Unlock()

	if changed {
		v.rebuildRing()
	}
}

// rebuildRing recomputes the token ring from every currently-reachable peer.
func (v *View) rebuildRing() {
	v.mu.RLock()
	nodes := make([]model.Node, 0, len(v.peers))
	for _, p := range v.peers {
		if p.reachable {
			nodes = append(nodes, p.node)
		}
	}
	v.mu.RUnlock()
	v.ring.Rebuild(nodes)
}

// sample returns up to n peer ids other than self, chosen uniformly at
// random from the known set (reachable or not — an unreachable peer may
// have come back).
func (v *View) sample(n int) []peerAddr {
	v.mu.RLock()
	defer v.mu.RUnlock()

	candidates := make([]peerAddr, 0, len(v.peers))
	for id, p := range v.peers {
		if id == v.selfID {
			continue
		}
		candidates = append(candidates, peerAddr{id: id, addr: p.node.GossipAddr})
	}
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if n < len(candidates) {
		candidates = candidates[:n]
	}
	return candidates
}

type peerAddr struct {
	id   uint32
	addr string
}

// Transport is the minimal gossip wire operation: push the caller's view
// to addr and receive the callee's view in return (a push-pull exchange).
type Transport interface {
	Exchange(ctx context.Context, addr string, push []Snapshot) ([]Snapshot, error)
}

// Gossiper drives periodic push-pull rounds against a random peer sample.
type Gossiper struct {
	view      *View
	transport Transport
	interval  time.Duration
	fanout    int
}

// NewGossiper builds a Gossiper over view using transport, gossiping to
// fanout random peers every interval.
func NewGossiper(view *View, transport Transport, interval time.Duration, fanout int) *Gossiper {
	return &Gossiper{view: view, transport: transport, interval: interval, fanout: fanout}
}

// Run drives gossip rounds until ctx is canceled. Never blocks the request
// path (spec §4.1): failures are logged and skipped, not retried inline.
func (g *Gossiper) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.round(ctx)
		}
	}
}

func (g *Gossiper) round(ctx context.Context) {
	g.view.Bump()
	g.view.sweepUnreachable()

	peers := g.view.sample(g.fanout)
	if len(peers) == 0 {
		return
	}

	push := g.view.Snapshot()
	for _, p := range peers {
		roundCtx, cancel := context.WithTimeout(ctx, g.interval)
		reply, err := g.transport.Exchange(roundCtx, p.addr, push)
		cancel()
		if err != nil {
			slog.Warn("gossip exchange failed", "peer", p.id, "addr", p.addr, "error", err)
			continue
		}
		g.view.Merge(reply)
		g.view.touch(p.id)
		slog.Debug("gossip exchange ok", "peer", p.id, "peers_learned", humanize.Comma(int64(len(reply))))
	}
}
