package memstore

import (
	"testing"

	"github.com/smtree/smt/merkle"
)

func TestGetMissingReturnsFalse(t *testing.T) {
	s := New()
	if _, ok, err := s.GetBranch(merkle.Zero); ok || err != nil {
		t.Fatalf("GetBranch(zero) = (_, %v, %v), want (_, false, nil)", ok, err)
	}
	if _, ok, err := s.GetLeaf(merkle.Zero); ok || err != nil {
		t.Fatalf("GetLeaf(zero) = (_, %v, %v), want (_, false, nil)", ok, err)
	}
}

func TestInsertGetRemoveRoundTrip(t *testing.T) {
	s := New()
	var k merkle.H256
	k[0] = 1
	leaf := merkle.LeafNode{Key: k}

	if err := s.InsertLeaf(k, leaf); err != nil {
		t.Fatalf("InsertLeaf: %v", err)
	}
	got, ok, err := s.GetLeaf(k)
	if err != nil || !ok || got.Key != k {
		t.Fatalf("GetLeaf = (%v, %v, %v), want (%v, true, nil)", got, ok, err, leaf)
	}

	if err := s.RemoveLeaf(k); err != nil {
		t.Fatalf("RemoveLeaf: %v", err)
	}
	if _, ok, _ := s.GetLeaf(k); ok {
		t.Fatal("leaf still present after RemoveLeaf")
	}
}

func TestBranchesAndLeavesAreSnapshots(t *testing.T) {
	s := New()
	var k merkle.H256
	k[0] = 7
	if err := s.InsertLeaf(k, merkle.LeafNode{Key: k}); err != nil {
		t.Fatalf("InsertLeaf: %v", err)
	}
	snap := s.Leaves()
	if len(snap) != 1 {
		t.Fatalf("len(Leaves()) = %d, want 1", len(snap))
	}
	delete(snap, k)
	if _, ok, _ := s.GetLeaf(k); !ok {
		t.Fatal("mutating the snapshot mutated the store")
	}
}
