package nodecache

import (
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/smtree/smt/merkle"
)

func TestGetBranchHitsCacheAfterFirstRead(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	m := NewMockStore(mockCtrl)
	c := New(m, 16)

	var k merkle.H256
	k[0] = 1
	branch := merkle.BranchNode{Left: merkle.Child{Height: 1}}

	// Exactly one backing read, no matter how many times we ask.
	m.EXPECT().GetBranch(k).Return(branch, true, nil).Times(1)

	for i := 0; i < 3; i++ {
		got, ok, err := c.GetBranch(k)
		if err != nil || !ok || got != branch {
			t.Fatalf("GetBranch[%d] = (%v, %v, %v), want (%v, true, nil)", i, got, ok, err, branch)
		}
	}
}

func TestInsertPopulatesCacheWithoutExtraRead(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	m := NewMockStore(mockCtrl)
	c := New(m, 16)

	var k merkle.H256
	k[0] = 2
	leaf := merkle.LeafNode{Key: k}

	m.EXPECT().InsertLeaf(k, leaf).Return(nil)
	if err := c.InsertLeaf(k, leaf); err != nil {
		t.Fatalf("InsertLeaf: %v", err)
	}

	got, ok, err := c.GetLeaf(k)
	if err != nil || !ok || got.Key != k {
		t.Fatalf("GetLeaf after insert = (%v, %v, %v)", got, ok, err)
	}
}

func TestRemoveEvictsFromCache(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	m := NewMockStore(mockCtrl)
	c := New(m, 16)

	var k merkle.H256
	k[0] = 3
	branch := merkle.BranchNode{}

	m.EXPECT().InsertBranch(k, branch).Return(nil)
	m.EXPECT().RemoveBranch(k).Return(nil)
	m.EXPECT().GetBranch(k).Return(merkle.BranchNode{}, false, nil)

	if err := c.InsertBranch(k, branch); err != nil {
		t.Fatalf("InsertBranch: %v", err)
	}
	if err := c.RemoveBranch(k); err != nil {
		t.Fatalf("RemoveBranch: %v", err)
	}
	if _, ok, _ := c.GetBranch(k); ok {
		t.Fatal("GetBranch found a node that was removed")
	}
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	m := NewMockStore(mockCtrl)
	c := New(m, 2)

	var k1, k2, k3 merkle.H256
	k1[0], k2[0], k3[0] = 1, 2, 3

	m.EXPECT().InsertLeaf(k1, merkle.LeafNode{Key: k1}).Return(nil)
	m.EXPECT().InsertLeaf(k2, merkle.LeafNode{Key: k2}).Return(nil)
	m.EXPECT().InsertLeaf(k3, merkle.LeafNode{Key: k3}).Return(nil)
	// k1 is the least-recently-used entry once k2 and k3 have been
	// inserted, so it's the one that falls out of a capacity-2 cache and
	// must be re-fetched from the backing store.
	m.EXPECT().GetLeaf(k1).Return(merkle.LeafNode{Key: k1}, true, nil)

	if err := c.InsertLeaf(k1, merkle.LeafNode{Key: k1}); err != nil {
		t.Fatalf("InsertLeaf k1: %v", err)
	}
	if err := c.InsertLeaf(k2, merkle.LeafNode{Key: k2}); err != nil {
		t.Fatalf("InsertLeaf k2: %v", err)
	}
	if err := c.InsertLeaf(k3, merkle.LeafNode{Key: k3}); err != nil {
		t.Fatalf("InsertLeaf k3: %v", err)
	}

	if _, ok, _ := c.GetLeaf(k1); !ok {
		t.Fatal("GetLeaf(k1) should still succeed via the backing store")
	}
}
