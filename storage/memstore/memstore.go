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

// Package memstore is an in-memory merkle.Store, backed by two plain
// maps behind a mutex. It has no persistence and is the default choice
// for tests, examples, and short-lived CLI invocations.
package memstore

import (
	"sync"

	"github.com/smtree/smt/merkle"
)

// Store is a merkle.Store safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	branches map[merkle.H256]merkle.BranchNode
	leaves   map[merkle.H256]merkle.LeafNode
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		branches: make(map[merkle.H256]merkle.BranchNode),
		leaves:   make(map[merkle.H256]merkle.LeafNode),
	}
}

func (s *Store) GetBranch(h merkle.H256) (merkle.BranchNode, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[h]
	return b, ok, nil
}

func (s *Store) GetLeaf(h merkle.H256) (merkle.LeafNode, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leaves[h]
	return l, ok, nil
}

func (s *Store) InsertBranch(h merkle.H256, b merkle.BranchNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches[h] = b
	return nil
}

func (s *Store) InsertLeaf(h merkle.H256, l merkle.LeafNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves[h] = l
	return nil
}

func (s *Store) RemoveBranch(h merkle.H256) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.branches, h)
	return nil
}

func (s *Store) RemoveLeaf(h merkle.H256) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leaves, h)
	return nil
}

// Branches returns a snapshot of the branch map.
func (s *Store) Branches() map[merkle.H256]merkle.BranchNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[merkle.H256]merkle.BranchNode, len(s.branches))
	for k, v := range s.branches {
		out[k] = v
	}
	return out
}

// Leaves returns a snapshot of the leaf map.
func (s *Store) Leaves() map[merkle.H256]merkle.LeafNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[merkle.H256]merkle.LeafNode, len(s.leaves))
	for k, v := range s.leaves {
		out[k] = v
	}
	return out
}
