package cluster

import (
	"testing"

	"github.com/hamersaw/stip-sub000/internal/model"
)

func TestRingLocateWrapsAndBreaksTiesByNodeID(t *testing.T) {
	r := NewRing()
	r.Rebuild([]model.Node{
		{ID: 1, Tokens: []uint64{0x4000000000000000}},
		{ID: 2, Tokens: []uint64{0x8000000000000000}},
		{ID: 3, Tokens: []uint64{0xC000000000000000}},
	})

	owner, err := r.Locate(0x1000000000000000)
	if err != nil || owner.ID != 1 {
		t.Fatalf("expected node 1, got %+v (err=%v)", owner, err)
	}

	owner, err = r.Locate(0x9000000000000000)
	if err != nil || owner.ID != 3 {
		t.Fatalf("expected node 3, got %+v (err=%v)", owner, err)
	}

	// Key beyond the highest token wraps to the lowest.
	owner, err = r.Locate(0xFFFFFFFFFFFFFFFF)
	if err != nil || owner.ID != 1 {
		t.Fatalf("expected wrap to node 1, got %+v (err=%v)", owner, err)
	}

	// Exact token match.
	owner, err = r.Locate(0x8000000000000000)
	if err != nil || owner.ID != 2 {
		t.Fatalf("expected node 2 on exact match, got %+v (err=%v)", owner, err)
	}
}

func TestRingLocateEmptyIsNoOwner(t *testing.T) {
	r := NewRing()
	if _, err := r.Locate(42); err != ErrNoOwner {
		t.Fatalf("expected ErrNoOwner, got %v", err)
	}
}

func TestRingTieBreakOnEqualTokens(t *testing.T) {
	r := NewRing()
	r.Rebuild([]model.Node{
		{ID: 5, Tokens: []uint64{100}},
		{ID: 2, Tokens: []uint64{100}},
	})
	owner, err := r.Locate(100)
	if err != nil || owner.ID != 2 {
		t.Fatalf("expected lower node id 2 to win the tie, got %+v (err=%v)", owner, err)
	}
}
