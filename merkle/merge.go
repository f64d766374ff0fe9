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

// LeafDigest computes the identity of a leaf: H(key || value.Hash()),
// unless value is the zero sentinel, in which case the leaf digest is
// Zero — no hashing, no allocation, which is what makes zero-valued
// leaves disappear from the tree entirely.
func LeafDigest(key H256, value Value, newHasher HasherFactory) H256 {
	if value.IsZero() {
		return Zero
	}
	h := newHasher()
	h.Write(key[:])
	valueHash := value.Hash(newHasher())
	h.Write(valueHash[:])
	return h.Sum()
}

// MergeBranch combines a branch's two children into the branch's own
// digest:
//   - both zero            -> zero
//   - exactly one zero      -> the other side, unchanged (single-chain
//     collapse: an otherwise-empty sub-tree reproduces its one leaf's
//     digest all the way up to the branch where a sibling sub-tree
//     first becomes non-zero)
//   - neither zero          -> H(left || right)
func MergeBranch(left, right H256, newHasher HasherFactory) H256 {
	if left.IsZero() && right.IsZero() {
		return Zero
	}
	if left.IsZero() {
		return right
	}
	if right.IsZero() {
		return left
	}
	h := newHasher()
	h.Write(left[:])
	h.Write(right[:])
	return h.Sum()
}

// MergeAt merges a node with its sibling at height h, where nodeBit (the
// node's own bit h) decides which of the two sits on the left: the child whose bit h is 0
// is the left argument, the child whose bit h is 1 is the right.
func MergeAt(h int, nodeBit bool, node, sibling H256, newHasher HasherFactory) H256 {
	if nodeBit {
		return MergeBranch(sibling, node, newHasher)
	}
	return MergeBranch(node, sibling, newHasher)
}
