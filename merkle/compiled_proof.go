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
	"encoding/binary"
	"sort"

	"github.com/google/btree"
)

// Opcode bytes for CompiledMerkleProof's stack machine.
const (
	opLeaf  byte = 0x4C // L: push the next input leaf's hash.
	opProof byte = 0x50 // P: merge the top of stack with a literal sibling digest.
	opHash  byte = 0x48 // H: merge the top two stack entries with each other.
)

// CompiledMerkleProof is a MerkleProof linearized into a single
// reconstruction walk, so a verifier never needs the priority-queue
// bookkeeping ComputeRoot does: it just runs the bytecode.
type CompiledMerkleProof struct {
	Bytecode []byte
}

// leafRange tracks which contiguous input-leaf indices a compiled
// program's pushed value is built from; Compile refuses to merge two
// programs whose ranges aren't adjacent.
type leafRange struct {
	start, end int
}

type compiledNode struct {
	code []byte
	rng  *leafRange
}

func leafProgram(leafIndex int) compiledNode {
	return compiledNode{code: []byte{opLeaf}, rng: &leafRange{start: leafIndex, end: leafIndex + 1}}
}

func proofProgram(child compiledNode, sibling H256, height int) compiledNode {
	buf := make([]byte, len(child.code)+1+8+32)
	copy(buf, child.code)
	buf[len(child.code)] = opProof
	binary.BigEndian.PutUint64(buf[len(child.code)+1:], uint64(height))
	copy(buf[len(child.code)+9:], sibling[:])
	return compiledNode{code: buf, rng: child.rng}
}

func mergeProgram(a, b compiledNode, height int) (compiledNode, error) {
	var rng *leafRange
	switch {
	case a.rng == nil && b.rng == nil:
		rng = nil
	case a.rng == nil:
		rng = b.rng
	case b.rng == nil:
		rng = a.rng
	default:
		if a.rng.end != b.rng.start {
			return compiledNode{}, ErrNonMergableRange
		}
		rng = &leafRange{start: a.rng.start, end: b.rng.end}
	}
	buf := make([]byte, len(a.code)+len(b.code)+1+8)
	copy(buf, a.code)
	copy(buf[len(a.code):], b.code)
	buf[len(a.code)+len(b.code)] = opHash
	binary.BigEndian.PutUint64(buf[len(a.code)+len(b.code)+1:], uint64(height))
	return compiledNode{code: buf, rng: rng}, nil
}

// compileItem is the Compile-step counterpart of treeItem: the same
// ordered priority-queue walk as MerkleProof.ComputeRoot, carrying a
// partial bytecode program instead of a materialized digest.
type compileItem struct {
	height    int
	key       H256
	leafIndex int
	node      compiledNode
}

func (a *compileItem) Less(than btree.Item) bool {
	b := than.(*compileItem)
	if a.height != b.height {
		return a.height < b.height
	}
	return a.key.Less(b.key)
}

// Compile re-executes the same reconstruction walk ComputeRoot does and
// emits it as bytecode: the keys identify which leaves the resulting
// program expects, in sorted order, at run time.
func (p *MerkleProof) Compile(keys []H256) (*CompiledMerkleProof, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyKeys
	}
	if len(keys) != len(p.LeavesPath) {
		return nil, &ErrIncorrectNumberOfLeaves{Expected: len(p.LeavesPath), Actual: len(keys)}
	}

	sorted := append([]H256(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	leavesPath := make([][]int, len(p.LeavesPath))
	for i := range p.LeavesPath {
		leavesPath[i] = append([]int(nil), p.LeavesPath[i]...)
	}
	proof := p.Proof
	proofIdx := 0

	tree := btree.New(16)
	for i, key := range sorted {
		tree.ReplaceOrInsert(&compileItem{height: 0, key: key, leafIndex: i, node: leafProgram(i)})
	}

	for tree.Len() > 0 {
		cur := tree.Min().(*compileItem)
		tree.Delete(cur)
		height, key, leafIndex, node := cur.height, cur.key, cur.leafIndex, cur.node

		if proofIdx == len(proof) && tree.Len() == 0 {
			return &CompiledMerkleProof{Bytecode: node.code}, nil
		}
		if height == TreeHeight {
			if proofIdx != len(proof) {
				return nil, ErrCorruptedProof
			}
			return &CompiledMerkleProof{Bytecode: node.code}, nil
		}

		siblingKey := key.ParentPath(height)
		if !key.GetBit(height) {
			siblingKey.SetBit(height)
		}

		var parentKey H256
		var parentNode compiledNode
		parentHeight := height
		found := false
		if min := tree.Min(); min != nil {
			if mi := min.(*compileItem); mi.height == height && mi.key == siblingKey {
				tree.Delete(mi)
				merged, err := mergeProgram(node, mi.node, height)
				if err != nil {
					return nil, err
				}
				parentKey = key.ParentPath(height)
				parentNode = merged
				found = true
			}
		}
		if !found {
			mergeHeight := height
			if len(leavesPath[leafIndex]) > 0 {
				mergeHeight = leavesPath[leafIndex][0]
			}
			if height != mergeHeight {
				pk := key.CopyBits(mergeHeight, TreeHeight)
				tree.ReplaceOrInsert(&compileItem{height: mergeHeight, key: pk, leafIndex: leafIndex, node: node})
				continue
			}
			if proofIdx >= len(proof) {
				return nil, ErrCorruptedProof
			}
			step := proof[proofIdx]
			proofIdx++
			if step.Height > height {
				height = step.Height
			}
			parentKey = key.ParentPath(height)
			parentNode = proofProgram(node, step.Hash, height)
			parentHeight = height
		}

		if len(leavesPath[leafIndex]) > 0 {
			leavesPath[leafIndex] = leavesPath[leafIndex][1:]
		}
		tree.ReplaceOrInsert(&compileItem{height: parentHeight + 1, key: parentKey, leafIndex: leafIndex, node: parentNode})
	}

	return nil, ErrCorruptedProof
}

// vmEntry is one (key, digest) pair on the bytecode VM's stack.
type vmEntry struct {
	key  H256
	node H256
}

// ComputeRoot runs the bytecode against leaves (sorted by key, same as
// at compile time) and returns the resulting root digest.
func (c *CompiledMerkleProof) ComputeRoot(leaves []KeyValue, newHasher HasherFactory) (H256, error) {
	sorted := append([]KeyValue(nil), leaves...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key.Less(sorted[j].Key) })

	var stack []vmEntry
	leafIdx := 0
	code := c.Bytecode
	i := 0
	for i < len(code) {
		op := code[i]
		i++
		switch op {
		case opLeaf:
			if leafIdx >= len(sorted) {
				return Zero, ErrCorruptedStack
			}
			kv := sorted[leafIdx]
			leafIdx++
			digest := LeafDigest(kv.Key, kv.Value, newHasher)
			stack = append(stack, vmEntry{key: kv.Key, node: digest})

		case opProof:
			if len(stack) == 0 {
				return Zero, ErrCorruptedStack
			}
			if i+40 > len(code) {
				return Zero, ErrCorruptedProof
			}
			height := int(binary.BigEndian.Uint64(code[i : i+8]))
			i += 8
			var sibling H256
			copy(sibling[:], code[i:i+32])
			i += 32

			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			parentKey := top.key.ParentPath(height)
			var parent H256
			if top.key.GetBit(height) {
				parent = MergeBranch(sibling, top.node, newHasher)
			} else {
				parent = MergeBranch(top.node, sibling, newHasher)
			}
			stack = append(stack, vmEntry{key: parentKey, node: parent})

		case opHash:
			if len(stack) < 2 {
				return Zero, ErrCorruptedStack
			}
			if i+8 > len(code) {
				return Zero, ErrCorruptedProof
			}
			height := int(binary.BigEndian.Uint64(code[i : i+8]))
			i += 8

			b := stack[len(stack)-1]
			a := stack[len(stack)-2]
			stack = stack[:len(stack)-2]

			parentKeyA := a.key.CopyBits(height, TreeHeight)
			parentKeyB := b.key.CopyBits(height, TreeHeight)
			aSet := a.key.GetBit(height)
			bSet := b.key.GetBit(height)
			siblingKeyA := parentKeyA
			if !aSet {
				siblingKeyA.SetBit(height)
			}
			if siblingKeyA != parentKeyB || aSet == bSet {
				return Zero, ErrNonSiblings
			}

			var parent H256
			if aSet {
				parent = MergeBranch(b.node, a.node, newHasher)
			} else {
				parent = MergeBranch(a.node, b.node, newHasher)
			}
			stack = append(stack, vmEntry{key: parentKeyA, node: parent})

		default:
			return Zero, &ErrInvalidCode{Code: op}
		}
	}

	if len(stack) != 1 {
		return Zero, ErrCorruptedStack
	}
	return stack[0].node, nil
}

// Verify reports whether the bytecode reconstructs to root for leaves.
func (c *CompiledMerkleProof) Verify(root H256, leaves []KeyValue, newHasher HasherFactory) (bool, error) {
	got, err := c.ComputeRoot(leaves, newHasher)
	if err != nil {
		return false, err
	}
	return got == root, nil
}
