package cluster

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hamersaw/stip-sub000/internal/model"
)

// ErrNoOwner is returned by Ring.Locate when the ring holds no tokens at
// all (spec §4.1).
var ErrNoOwner = fmt.Errorf("cluster: ring has no owner for key (empty ring)")

// token is one position on the ring, owned by a node.
type token struct {
	value  uint64
	nodeID uint32
}

// Ring is the DHT view derived from the current gossip state: the union of
// every reachable peer's tokens, sorted ascending for O(log n) lookup.
type Ring struct {
	mu     sync.RWMutex
	tokens []token
	byID   map[uint32]model.Node
}

// NewRing returns an empty ring; Rebuild populates it from a View.
func NewRing() *Ring {
	return &Ring{byID: make(map[uint32]model.Node)}
}

// Rebuild replaces the ring's contents with the tokens of the given
// reachable nodes. Called after every gossip merge.
func (r *Ring) Rebuild(nodes []model.Node) {
	tokens := make([]token, 0, len(nodes)*4)
	byID := make(map[uint32]model.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
		for _, t := range n.Tokens {
			tokens = append(tokens, token{value: t, nodeID: n.ID})
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].value != tokens[j].value {
			return tokens[i].value < tokens[j].value
		}
		// Tie broken by node id (spec §3 ring invariant).
		return tokens[i].nodeID < tokens[j].nodeID
	})

	r.mu.Lock()
	r.tokens = tokens
	r.byID = byID
	r.mu.Unlock()
}

// Locate returns the node owning key: the first token >= key walking
// ascending, wrapping to the smallest token if key exceeds all of them.
func (r *Ring) Locate(key uint64) (model.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.tokens) == 0 {
		return model.Node{}, ErrNoOwner
	}

	i := sort.Search(len(r.tokens), func(i int) bool {
		return r.tokens[i].value >= key
	})
	if i == len(r.tokens) {
		i = 0 // wrap
	}
	return r.byID[r.tokens[i].nodeID], nil
}

// Iter returns every node currently represented on the ring.
func (r *Ring) Iter() []model.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]model.Node, 0, len(r.byID))
	for _, n := range r.byID {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}
