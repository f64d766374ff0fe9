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

// Package nodecache wraps a merkle.Store with a bounded, least-recently-
// used cache over both its branch and leaf maps, so that repeated
// descents down hot paths (the top of the tree, touched by every update)
// don't round-trip to a slow backing store on every node.
package nodecache

import (
	"container/list"
	"sync"

	"github.com/golang/glog"

	"github.com/smtree/smt/merkle"
)

const defaultCapacity = 4096

// Store decorates a merkle.Store with an LRU cache. Reads check the
// cache first; writes and removes go straight through to the backing
// store and update the cache in lock-step, so the cache is never stale.
type Store struct {
	backing merkle.Store

	mu       sync.Mutex
	capacity int
	branches *lru
	leaves   *lru
}

// New wraps backing with an LRU cache of the given per-map capacity
// (branches and leaves are capped independently). A non-positive
// capacity falls back to a sensible default rather than disabling
// caching outright.
func New(backing merkle.Store, capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Store{
		backing:  backing,
		capacity: capacity,
		branches: newLRU(capacity),
		leaves:   newLRU(capacity),
	}
}

func (s *Store) GetBranch(h merkle.H256) (merkle.BranchNode, bool, error) {
	s.mu.Lock()
	if v, ok := s.branches.get(h); ok {
		s.mu.Unlock()
		return v.(merkle.BranchNode), true, nil
	}
	s.mu.Unlock()

	b, ok, err := s.backing.GetBranch(h)
	if err != nil || !ok {
		return b, ok, err
	}
	s.mu.Lock()
	s.branches.put(h, b)
	s.mu.Unlock()
	return b, true, nil
}

func (s *Store) GetLeaf(h merkle.H256) (merkle.LeafNode, bool, error) {
	s.mu.Lock()
	if v, ok := s.leaves.get(h); ok {
		s.mu.Unlock()
		return v.(merkle.LeafNode), true, nil
	}
	s.mu.Unlock()

	l, ok, err := s.backing.GetLeaf(h)
	if err != nil || !ok {
		return l, ok, err
	}
	s.mu.Lock()
	s.leaves.put(h, l)
	s.mu.Unlock()
	return l, true, nil
}

func (s *Store) InsertBranch(h merkle.H256, b merkle.BranchNode) error {
	if err := s.backing.InsertBranch(h, b); err != nil {
		return err
	}
	s.mu.Lock()
	s.branches.put(h, b)
	s.mu.Unlock()
	glog.V(4).Infof("nodecache: cached branch %x", h)
	return nil
}

func (s *Store) InsertLeaf(h merkle.H256, l merkle.LeafNode) error {
	if err := s.backing.InsertLeaf(h, l); err != nil {
		return err
	}
	s.mu.Lock()
	s.leaves.put(h, l)
	s.mu.Unlock()
	glog.V(4).Infof("nodecache: cached leaf %x", h)
	return nil
}

func (s *Store) RemoveBranch(h merkle.H256) error {
	if err := s.backing.RemoveBranch(h); err != nil {
		return err
	}
	s.mu.Lock()
	s.branches.remove(h)
	s.mu.Unlock()
	return nil
}

func (s *Store) RemoveLeaf(h merkle.H256) error {
	if err := s.backing.RemoveLeaf(h); err != nil {
		return err
	}
	s.mu.Lock()
	s.leaves.remove(h)
	s.mu.Unlock()
	return nil
}

// Branches and Leaves bypass the cache entirely: they're diagnostic
// snapshot views, not part of the hot read path.
func (s *Store) Branches() map[merkle.H256]merkle.BranchNode {
	return s.backing.Branches()
}

func (s *Store) Leaves() map[merkle.H256]merkle.LeafNode {
	return s.backing.Leaves()
}

// lru is a fixed-capacity least-recently-used cache keyed by H256. The
// ecosystem has no off-the-shelf generic LRU among this module's
// dependencies, so it's built directly on container/list, the standard
// pattern for one.
type lru struct {
	capacity int
	ll       *list.List
	items    map[merkle.H256]*list.Element
}

type lruEntry struct {
	key   merkle.H256
	value interface{}
}

func newLRU(capacity int) *lru {
	return &lru{capacity: capacity, ll: list.New(), items: make(map[merkle.H256]*list.Element)}
}

func (c *lru) get(key merkle.H256) (interface{}, bool) {
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(e)
	return e.Value.(*lruEntry).value, true
}

func (c *lru) put(key merkle.H256, value interface{}) {
	if e, ok := c.items[key]; ok {
		e.Value.(*lruEntry).value = value
		c.ll.MoveToFront(e)
		return
	}
	e := c.ll.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = e
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}

func (c *lru) remove(key merkle.H256) {
	if e, ok := c.items[key]; ok {
		c.ll.Remove(e)
		delete(c.items, key)
	}
}
