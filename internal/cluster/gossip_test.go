package cluster

import (
	"testing"
	"time"

	"github.com/hamersaw/stip-sub000/internal/model"
)

func TestViewMergeLastWriteWins(t *testing.T) {
	self := model.Node{ID: 1, GossipAddr: "a:1", Tokens: []uint64{10}}
	v := NewView(self, time.Minute)

	stale := Snapshot{Node: model.Node{ID: 2, GossipAddr: "old:2", Tokens: []uint64{20}}, Clock: 1}
	v.Merge([]Snapshot{stale})

	fresh := Snapshot{Node: model.Node{ID: 2, GossipAddr: "new:2", Tokens: []uint64{20}}, Clock: 5}
	v.Merge([]Snapshot{fresh})

	older := Snapshot{Node: model.Node{ID: 2, GossipAddr: "stale-again:2", Tokens: []uint64{20}}, Clock: 3}
	v.Merge([]Snapshot{older})

	nodes := v.Ring().Iter()
	var got model.Node
	for _, n := range nodes {
		if n.ID == 2 {
			got = n
		}
	}
	if got.GossipAddr != "new:2" {
		t.Fatalf("expected last-write-wins to keep the higher-clock record, got %+v", got)
	}
}

func TestViewMergeFieldGranularMetadata(t *testing.T) {
	self := model.Node{ID: 1}
	v := NewView(self, time.Minute)

	v.Merge([]Snapshot{{
		Node:  model.Node{ID: 2},
		Clock: 1,
		Metadata: map[string]snapshotField{
			"region": {Value: "us-west", Gen: 1},
			"zone":   {Value: "a", Gen: 1},
		},
	}})

	// Lower overall clock, but a newer generation for one field only.
	v.Merge([]Snapshot{{
		Node:  model.Node{ID: 2},
		Clock: 0,
		Metadata: map[string]snapshotField{
			"region": {Value: "us-east", Gen: 2},
		},
	}})

	v.mu.RLock()
	md := v.peers[2].metadata
	v.mu.RUnlock()

	if md["region"].Value != "us-east" || md["region"].Gen != 2 {
		t.Fatalf("expected region field to win on higher field generation, got %+v", md["region"])
	}
	if md["zone"].Value != "a" {
		t.Fatalf("expected zone field to survive untouched, got %+v", md["zone"])
	}
}

func TestViewSweepUnreachableDoesNotPurge(t *testing.T) {
	self := model.Node{ID: 1}
	v := NewView(self, time.Millisecond)
	v.Merge([]Snapshot{{Node: model.Node{ID: 2, Tokens: []uint64{1}}, Clock: 1}})

	time.Sleep(5 * time.Millisecond)
	v.sweepUnreachable()

	if len(v.Ring().Iter()) != 1 {
		t.Fatalf("expected unreachable peer to drop out of the ring, not be purged from the view")
	}
	v.mu.RLock()
	_, stillKnown := v.peers[2]
	v.mu.RUnlock()
	if !stillKnown {
		t.Fatalf("expected peer 2 to still be known after sweep, only marked unreachable")
	}
}
