// Copyright 2016 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merkle

import (
	"fmt"

	"github.com/golang/glog"
)

// For more information about how Sparse Merkle Trees work see the Revocation
// Transparency paper in the docs directory. Note that applications are not
// limited to X.509 certificates and this implementation handles arbitrary
// data.
//
// Unlike a revisioned, transaction-backed map sharded across goroutines,
// this tree is a single synchronous handle over a Store: one tree, one
// root, no background workers, no notion of a revision. Update mutates the
// store in place and returns the new root.

// Observer receives best-effort notifications about tree operations. It
// exists purely for instrumentation (see internal/metrics); a nil Observer
// does nothing, and no code path depends on it being called for
// correctness.
type Observer interface {
	OnUpdate(key H256, newRoot H256)
	OnGet(key H256, found bool)
}

// SparseMerkleTree is an authenticated key-value map whose Root commits to
// every (key, value) binding currently stored.
type SparseMerkleTree struct {
	store     Store
	newHasher HasherFactory
	root      H256
	observer  Observer
}

// New returns a SparseMerkleTree over an existing store, with the given
// root (use Zero for a fresh or empty store).
func New(store Store, newHasher HasherFactory, root H256) *SparseMerkleTree {
	return &SparseMerkleTree{store: store, newHasher: newHasher, root: root}
}

// SetObserver installs an instrumentation hook; pass nil to remove it.
func (t *SparseMerkleTree) SetObserver(o Observer) {
	t.observer = o
}

// Root returns the tree's current root digest.
func (t *SparseMerkleTree) Root() H256 {
	return t.root
}

// Store returns the backing store.
func (t *SparseMerkleTree) Store() Store {
	return t.store
}

// IsEmpty reports whether the tree currently holds no non-zero leaves.
func (t *SparseMerkleTree) IsEmpty() bool {
	return t.root.IsZero()
}

// pathEntry is one materialized BranchNode visited while walking down from
// the root toward a target key.
type pathEntry struct {
	hash     H256 // the branch's own digest (its identity in the store)
	branch   BranchNode
	height   int  // the height at which this branch itself sits (TreeHeight for the root)
	keyIsSet bool // the key's bit at height-1: which side (target) was followed
}

// walkTerminal describes what a walk bottomed out at: either an empty
// sub-tree or a leaf (possibly for a different key than the one sought).
type walkTerminal struct {
	leaf    LeafNode
	hasLeaf bool
	hash    H256 // digest of the terminal node; Zero if the sub-tree was empty
}

// walk descends from the root following key's bits, stopping at the first
// zero sub-tree or leaf it encounters, and returns every materialized
// branch visited along the way, root-first.
func (t *SparseMerkleTree) walk(key H256) ([]pathEntry, walkTerminal, error) {
	var path []pathEntry
	curHash := t.root
	curHeight := TreeHeight

	for {
		if curHash.IsZero() {
			return path, walkTerminal{hash: Zero}, nil
		}

		branch, isBranch, err := t.store.GetBranch(curHash)
		if err != nil {
			return nil, walkTerminal{}, fmt.Errorf("merkle: walk get branch %x: %w", curHash, err)
		}
		if !isBranch {
			leaf, isLeaf, err := t.store.GetLeaf(curHash)
			if err != nil {
				return nil, walkTerminal{}, fmt.Errorf("merkle: walk get leaf %x: %w", curHash, err)
			}
			if !isLeaf {
				return nil, walkTerminal{}, fmt.Errorf("merkle: walk digest %x is neither branch nor leaf: %w", curHash, ErrMissingBranch)
			}
			return path, walkTerminal{leaf: leaf, hasLeaf: true, hash: curHash}, nil
		}

		bit := key.GetBit(curHeight - 1)
		var target Child
		if bit {
			target = branch.Right
		} else {
			target = branch.Left
		}
		glog.V(4).Infof("merkle: walk height=%d branch=%x bit=%v target=%x", curHeight, curHash, bit, target.Hash)
		path = append(path, pathEntry{hash: curHash, branch: branch, height: curHeight, keyIsSet: bit})
		curHash, curHeight = target.Hash, target.Height
	}
}

// Get returns the value bound to key, or the zero value if key is absent.
// Absence is never an error: that asymmetry is what makes non-membership
// proofs possible.
func (t *SparseMerkleTree) Get(key H256) (Value, error) {
	_, term, err := t.walk(key)
	if err != nil {
		return nil, err
	}
	found := term.hasLeaf && term.leaf.Key == key
	if t.observer != nil {
		t.observer.OnGet(key, found)
	}
	if !found {
		return Zero, nil
	}
	return term.leaf.Value, nil
}

// MustGet returns the value bound to key, or ErrNonExistKey if key is
// absent. Use this only when the caller wants membership semantics; Get's
// zero-on-absence is correct everywhere else, including proof generation.
func (t *SparseMerkleTree) MustGet(key H256) (Value, error) {
	_, term, err := t.walk(key)
	if err != nil {
		return nil, err
	}
	if !term.hasLeaf || term.leaf.Key != key {
		return nil, ErrNonExistKey
	}
	return term.leaf.Value, nil
}

// Update inserts, overwrites, or deletes the binding for key and returns
// the tree's new root. Updating an absent key with the zero value is a
// no-op; updating a present key with the zero value deletes it.
func (t *SparseMerkleTree) Update(key H256, value Value) (H256, error) {
	path, term, err := t.walk(key)
	if err != nil {
		return Zero, err
	}

	sameKeyLeaf := term.hasLeaf && term.leaf.Key == key
	if value.IsZero() && !sameKeyLeaf {
		// Absent key, zero value: indistinguishable from never having
		// touched it.
		return t.root, nil
	}

	subHash, subHeight, err := t.collapseLeaf(key, value, term, sameKeyLeaf)
	if err != nil {
		return Zero, err
	}

	for i := len(path) - 1; i >= 0; i-- {
		entry := path[i]
		var left, right Child
		if entry.keyIsSet {
			left, right = entry.branch.Left, Child{Hash: subHash, Height: subHeight}
		} else {
			left, right = Child{Hash: subHash, Height: subHeight}, entry.branch.Right
		}

		if err := t.store.RemoveBranch(entry.hash); err != nil {
			return Zero, fmt.Errorf("merkle: update remove stale branch %x: %w", entry.hash, err)
		}

		merged := MergeBranch(left.Hash, right.Hash, t.newHasher)
		switch {
		case merged.IsZero():
			subHash, subHeight = Zero, 0
		case left.Hash.IsZero():
			subHash, subHeight = right.Hash, right.Height
		case right.Hash.IsZero():
			subHash, subHeight = left.Hash, left.Height
		default:
			if err := t.store.InsertBranch(merged, BranchNode{Left: left, Right: right}); err != nil {
				return Zero, fmt.Errorf("merkle: update insert branch %x: %w", merged, err)
			}
			subHash, subHeight = merged, entry.height
		}
	}

	t.root = subHash
	glog.V(2).Infof("merkle: update key=%x new root=%x", key, t.root)
	if t.observer != nil {
		t.observer.OnUpdate(key, t.root)
	}
	return t.root, nil
}

// collapseLeaf resolves the terminal node a walk stopped at into the new
// (digest, height) pair to merge up through path, performing whichever
// store mutation doesn't fall out of the upward-merge loop itself.
func (t *SparseMerkleTree) collapseLeaf(key H256, value Value, term walkTerminal, sameKeyLeaf bool) (H256, int, error) {
	switch {
	case sameKeyLeaf && value.IsZero():
		if err := t.store.RemoveLeaf(term.hash); err != nil {
			return Zero, 0, fmt.Errorf("merkle: collapse remove leaf %x: %w", term.hash, err)
		}
		return Zero, 0, nil

	case sameKeyLeaf:
		if err := t.store.RemoveLeaf(term.hash); err != nil {
			return Zero, 0, fmt.Errorf("merkle: collapse remove old leaf %x: %w", term.hash, err)
		}
		newDigest := LeafDigest(key, value, t.newHasher)
		if err := t.store.InsertLeaf(newDigest, LeafNode{Key: key, Value: value}); err != nil {
			return Zero, 0, fmt.Errorf("merkle: collapse insert leaf %x: %w", newDigest, err)
		}
		return newDigest, 0, nil

	case !term.hasLeaf:
		// Empty sub-tree: the new leaf alone becomes its digest. Path
		// compression means no BranchNode is needed at this position at
		// all.
		newDigest := LeafDigest(key, value, t.newHasher)
		if err := t.store.InsertLeaf(newDigest, LeafNode{Key: key, Value: value}); err != nil {
			return Zero, 0, fmt.Errorf("merkle: collapse insert leaf %x: %w", newDigest, err)
		}
		return newDigest, 0, nil

	default:
		// A different leaf occupies this sub-tree: fork a new branch at
		// the height the two keys first diverge, leaving the existing
		// leaf untouched in the store.
		other := term.leaf
		fh := key.ForkHeight(other.Key)
		newDigest := LeafDigest(key, value, t.newHasher)
		if err := t.store.InsertLeaf(newDigest, LeafNode{Key: key, Value: value}); err != nil {
			return Zero, 0, fmt.Errorf("merkle: collapse insert leaf %x: %w", newDigest, err)
		}
		var left, right Child
		if key.GetBit(fh) {
			left, right = Child{Hash: term.hash, Height: 0}, Child{Hash: newDigest, Height: 0}
		} else {
			left, right = Child{Hash: newDigest, Height: 0}, Child{Hash: term.hash, Height: 0}
		}
		branchDigest := MergeBranch(left.Hash, right.Hash, t.newHasher)
		if err := t.store.InsertBranch(branchDigest, BranchNode{Left: left, Right: right}); err != nil {
			return Zero, 0, fmt.Errorf("merkle: collapse insert fork branch %x: %w", branchDigest, err)
		}
		return branchDigest, fh + 1, nil
	}
}
