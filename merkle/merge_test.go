package merkle

import "testing"

func TestLeafDigestZeroValueIsZero(t *testing.T) {
	k := keyFromByte(1)
	if got := LeafDigest(k, testValue(nil), newSHA256Hasher); !got.IsZero() {
		t.Fatalf("LeafDigest with zero value = %x, want zero", got)
	}
}

func TestLeafDigestDeterministic(t *testing.T) {
	k := keyFromByte(1)
	v := testValue("hello")
	a := LeafDigest(k, v, newSHA256Hasher)
	b := LeafDigest(k, v, newSHA256Hasher)
	if a != b {
		t.Fatalf("LeafDigest not deterministic: %x != %x", a, b)
	}
	if a.IsZero() {
		t.Fatal("LeafDigest of non-zero value must not be zero")
	}
}

func TestMergeBranchZeroCases(t *testing.T) {
	var left, right H256
	if got := MergeBranch(left, right, newSHA256Hasher); !got.IsZero() {
		t.Fatalf("MergeBranch(zero, zero) = %x, want zero", got)
	}

	right = keyFromByte(7)
	if got := MergeBranch(left, right, newSHA256Hasher); got != right {
		t.Fatalf("MergeBranch(zero, right) = %x, want %x (collapse)", got, right)
	}

	left, right = keyFromByte(7), Zero
	if got := MergeBranch(left, right, newSHA256Hasher); got != left {
		t.Fatalf("MergeBranch(left, zero) = %x, want %x (collapse)", got, left)
	}
}

func TestMergeBranchNeitherZeroIsHashOfBoth(t *testing.T) {
	left, right := keyFromByte(1), keyFromByte(2)
	a := MergeBranch(left, right, newSHA256Hasher)
	b := MergeBranch(right, left, newSHA256Hasher)
	if a == b {
		t.Fatal("MergeBranch must be order-sensitive when both sides are non-zero")
	}
	if a.IsZero() || b.IsZero() {
		t.Fatal("MergeBranch of two non-zero digests must not be zero")
	}
}
