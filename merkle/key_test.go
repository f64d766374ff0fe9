package merkle

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGetSetClearBit(t *testing.T) {
	var k H256
	for _, i := range []int{0, 1, 7, 8, 31, 255} {
		if k.GetBit(i) {
			t.Fatalf("bit %d: got true before SetBit, want false", i)
		}
		k.SetBit(i)
		if !k.GetBit(i) {
			t.Fatalf("bit %d: got false after SetBit, want true", i)
		}
		k.ClearBit(i)
		if k.GetBit(i) {
			t.Fatalf("bit %d: got true after ClearBit, want false", i)
		}
	}
}

func TestGetBitOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("GetBit(TreeHeight) did not panic")
		}
	}()
	var k H256
	k.GetBit(TreeHeight)
}

func TestForkHeight(t *testing.T) {
	var a, b H256
	if got := a.ForkHeight(b); got != 0 {
		t.Fatalf("ForkHeight(equal keys) = %d, want 0", got)
	}

	b.SetBit(5)
	if got := a.ForkHeight(b); got != 5 {
		t.Fatalf("ForkHeight = %d, want 5", got)
	}

	a.SetBit(200)
	if got := a.ForkHeight(b); got != 200 {
		t.Fatalf("ForkHeight = %d, want 200 (highest differing bit wins)", got)
	}
}

func TestCopyBitsFullRange(t *testing.T) {
	var k H256
	for i := 0; i < TreeHeight; i += 3 {
		k.SetBit(i)
	}
	got := k.CopyBits(0, TreeHeight)
	if !cmp.Equal(got, k) {
		t.Fatalf("CopyBits(0, TreeHeight) = %x, want %x", got, k)
	}
}

func TestCopyBitsPartialRange(t *testing.T) {
	var k H256
	for i := 0; i < TreeHeight; i++ {
		k.SetBit(i)
	}
	got := k.CopyBits(4, 20)
	for i := 0; i < TreeHeight; i++ {
		want := i >= 4 && i < 20
		if got.GetBit(i) != want {
			t.Fatalf("bit %d: got %v, want %v", i, got.GetBit(i), want)
		}
	}
}

func TestParentPath(t *testing.T) {
	var k H256
	for i := 0; i < TreeHeight; i++ {
		k.SetBit(i)
	}
	p := k.ParentPath(10)
	for i := 0; i < TreeHeight; i++ {
		want := i >= 11
		if p.GetBit(i) != want {
			t.Fatalf("bit %d: got %v, want %v", i, p.GetBit(i), want)
		}
	}
	if got := k.ParentPath(TreeHeight - 1); !got.IsZero() {
		t.Fatalf("ParentPath at top height = %x, want zero", got)
	}
}

func TestLessAgreesWithBitOrder(t *testing.T) {
	var a, b H256
	b.SetBit(TreeHeight - 1)
	if !a.Less(b) {
		t.Fatal("key with top bit unset should sort before key with top bit set")
	}
	if b.Less(a) {
		t.Fatal("Less should not be symmetric here")
	}
}
