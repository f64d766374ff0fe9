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
	"sort"

	"github.com/google/btree"
)

// ProofStep is one non-zero sibling digest encountered by the
// reconstruction walk, tagged with the height at which it must be merged
// in.
type ProofStep struct {
	Hash   H256
	Height int
}

// MerkleProof is a multi-leaf inclusion/exclusion proof: for every query
// leaf (sorted by key), the heights at which a non-zero sibling
// contributes to its path, plus the flat, shared sequence of those
// sibling digests in the order the reconstruction walk consumes them.
type MerkleProof struct {
	LeavesPath [][]int
	Proof      []ProofStep
}

// KeyValue pairs a key with the value to hash at that key; used as the
// input to MerkleProof.ComputeRoot and Verify. A zero Value proves
// non-membership.
type KeyValue struct {
	Key   H256
	Value Value
}

// treeItem is one in-flight node of MerkleProof.ComputeRoot's ordered
// priority-queue walk (Compile runs the same walk over compileItem):
// each iteration pops the smallest (height, key) pair, which is exactly
// what a google/btree ordered set gives us without re-implementing a
// sorted-map pop-min.
type treeItem struct {
	height    int
	key       H256
	leafIndex int
	node      H256
}

func (a *treeItem) Less(than btree.Item) bool {
	b := than.(*treeItem)
	if a.height != b.height {
		return a.height < b.height
	}
	return a.key.Less(b.key)
}

// ComputeRoot reconstructs the root digest implied by this proof and the
// supplied (key, value) pairs, following the ordered priority-queue walk:
// repeatedly pop the smallest (height, key) node, merge it with its
// sibling — found already in flight, or pulled next off the proof queue —
// and reinsert the parent one height up.
func (p *MerkleProof) ComputeRoot(leaves []KeyValue, newHasher HasherFactory) (H256, error) {
	if len(leaves) == 0 {
		return Zero, ErrEmptyKeys
	}
	if len(leaves) != len(p.LeavesPath) {
		return Zero, &ErrIncorrectNumberOfLeaves{Expected: len(p.LeavesPath), Actual: len(leaves)}
	}

	sorted := append([]KeyValue(nil), leaves...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key.Less(sorted[j].Key) })

	leavesPath := make([][]int, len(p.LeavesPath))
	for i := range p.LeavesPath {
		leavesPath[i] = append([]int(nil), p.LeavesPath[i]...)
	}
	proof := p.Proof
	proofIdx := 0

	tree := btree.New(16)
	for i, kv := range sorted {
		digest := LeafDigest(kv.Key, kv.Value, newHasher)
		tree.ReplaceOrInsert(&treeItem{height: 0, key: kv.Key, leafIndex: i, node: digest})
	}

	for tree.Len() > 0 {
		cur := tree.Min().(*treeItem)
		tree.Delete(cur)
		height, key, leafIndex, node := cur.height, cur.key, cur.leafIndex, cur.node

		if proofIdx == len(proof) && tree.Len() == 0 {
			return node, nil
		}
		if height == TreeHeight {
			if proofIdx != len(proof) {
				return Zero, ErrCorruptedProof
			}
			return node, nil
		}

		siblingKey := key.ParentPath(height)
		if !key.GetBit(height) {
			siblingKey.SetBit(height)
		}

		var sibling H256
		siblingHeight := height
		found := false
		if min := tree.Min(); min != nil {
			if mi := min.(*treeItem); mi.height == height && mi.key == siblingKey {
				tree.Delete(mi)
				sibling = mi.node
				found = true
			}
		}
		if !found {
			mergeHeight := height
			if len(leavesPath[leafIndex]) > 0 {
				mergeHeight = leavesPath[leafIndex][0]
			}
			if height != mergeHeight {
				parentKey := key.CopyBits(mergeHeight, TreeHeight)
				tree.ReplaceOrInsert(&treeItem{height: mergeHeight, key: parentKey, leafIndex: leafIndex, node: node})
				continue
			}
			if proofIdx >= len(proof) {
				return Zero, ErrCorruptedProof
			}
			step := proof[proofIdx]
			proofIdx++
			if step.Height < height {
				return Zero, ErrCorruptedProof
			}
			sibling = step.Hash
			siblingHeight = step.Height
		}

		if siblingHeight > height {
			height = siblingHeight
		}
		parentKey := key.ParentPath(height)
		var parent H256
		if key.GetBit(height) {
			parent = MergeBranch(sibling, node, newHasher)
		} else {
			parent = MergeBranch(node, sibling, newHasher)
		}
		if len(leavesPath[leafIndex]) > 0 {
			leavesPath[leafIndex] = leavesPath[leafIndex][1:]
		}
		tree.ReplaceOrInsert(&treeItem{height: height + 1, key: parentKey, leafIndex: leafIndex, node: parent})
	}

	return Zero, ErrCorruptedProof
}

// Verify reports whether this proof reconstructs to root for the given
// leaves.
func (p *MerkleProof) Verify(root H256, leaves []KeyValue, newHasher HasherFactory) (bool, error) {
	got, err := p.ComputeRoot(leaves, newHasher)
	if err != nil {
		return false, err
	}
	return got == root, nil
}

// sibRecord is one non-zero sibling discovered while generating a proof,
// plus every query-leaf index it applies to.
type sibRecord struct {
	height   int
	repKey   H256
	hash     H256
	affected []int
}

type genTask struct {
	height int
	hash   H256
	idx    []int
}

// MerkleProof generates a multi-leaf proof for keys by walking the tree
// top-down from the root, splitting the query set at every branch and
// recording a sibling only where the split is uneven (all query keys
// went one way) and that sibling is non-zero; an even split means both
// halves carry query keys and will reconstruct each other directly, with
// no proof entry needed.
func (t *SparseMerkleTree) MerkleProof(keys []H256) (*MerkleProof, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyKeys
	}
	sorted := append([]H256(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	leavesPath := make([][]int, len(sorted))
	var records []sibRecord

	all := make([]int, len(sorted))
	for i := range all {
		all[i] = i
	}
	stack := []genTask{{height: TreeHeight, hash: t.root, idx: all}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur.hash.IsZero() {
			continue
		}
		branch, isBranch, err := t.store.GetBranch(cur.hash)
		if err != nil {
			return nil, fmt.Errorf("merkle: generate proof get branch %x: %w", cur.hash, err)
		}
		if !isBranch {
			continue
		}

		var left, right []int
		for _, i := range cur.idx {
			if sorted[i].GetBit(cur.height - 1) {
				right = append(right, i)
			} else {
				left = append(left, i)
			}
		}

		if len(right) == 0 && !branch.Right.Hash.IsZero() {
			records = append(records, sibRecord{height: cur.height - 1, repKey: sorted[left[0]], hash: branch.Right.Hash, affected: append([]int(nil), left...)})
		}
		if len(left) == 0 && !branch.Left.Hash.IsZero() {
			records = append(records, sibRecord{height: cur.height - 1, repKey: sorted[right[0]], hash: branch.Left.Hash, affected: append([]int(nil), right...)})
		}
		if len(left) > 0 {
			stack = append(stack, genTask{height: branch.Left.Height, hash: branch.Left.Hash, idx: left})
		}
		if len(right) > 0 {
			stack = append(stack, genTask{height: branch.Right.Height, hash: branch.Right.Hash, idx: right})
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].height != records[j].height {
			return records[i].height < records[j].height
		}
		return records[i].repKey.Less(records[j].repKey)
	})

	proof := make([]ProofStep, 0, len(records))
	for _, r := range records {
		proof = append(proof, ProofStep{Hash: r.hash, Height: r.height})
		for _, i := range r.affected {
			leavesPath[i] = append(leavesPath[i], r.height)
		}
	}

	return &MerkleProof{LeavesPath: leavesPath, Proof: proof}, nil
}
