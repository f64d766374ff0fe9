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

// Package redisstore is a merkle.Store backed by Redis: branch and leaf
// nodes are serialized and kept as plain string values, under "b:" and
// "l:" key prefixes respectively.
package redisstore

import (
	"encoding/binary"
	"fmt"

	"github.com/go-redis/redis"

	"github.com/smtree/smt/merkle"
)

const (
	branchPrefix = "b:"
	leafPrefix   = "l:"
)

// ValueCodec turns a merkle.Value into bytes and back.
type ValueCodec interface {
	Encode(merkle.Value) ([]byte, error)
	Decode([]byte) (merkle.Value, error)
}

// Store is a merkle.Store over a Redis instance.
type Store struct {
	client *redis.Client
	codec  ValueCodec
}

// New wraps an already-configured *redis.Client.
func New(client *redis.Client, codec ValueCodec) *Store {
	return &Store{client: client, codec: codec}
}

func branchKey(h merkle.H256) string {
	return branchPrefix + string(h[:])
}

func leafKey(h merkle.H256) string {
	return leafPrefix + string(h[:])
}

// encodeBranch packs a BranchNode as left-hash ‖ left-height ‖ right-hash
// ‖ right-height, heights as 8-byte big-endian.
func encodeBranch(b merkle.BranchNode) []byte {
	buf := make([]byte, merkle.KeySize+8+merkle.KeySize+8)
	copy(buf, b.Left.Hash[:])
	binary.BigEndian.PutUint64(buf[merkle.KeySize:], uint64(b.Left.Height))
	copy(buf[merkle.KeySize+8:], b.Right.Hash[:])
	binary.BigEndian.PutUint64(buf[2*merkle.KeySize+8:], uint64(b.Right.Height))
	return buf
}

func decodeBranch(data []byte) (merkle.BranchNode, error) {
	if len(data) != 2*merkle.KeySize+16 {
		return merkle.BranchNode{}, fmt.Errorf("redisstore: malformed branch record (%d bytes)", len(data))
	}
	var b merkle.BranchNode
	copy(b.Left.Hash[:], data[:merkle.KeySize])
	b.Left.Height = int(binary.BigEndian.Uint64(data[merkle.KeySize:]))
	copy(b.Right.Hash[:], data[merkle.KeySize+8:2*merkle.KeySize+8])
	b.Right.Height = int(binary.BigEndian.Uint64(data[2*merkle.KeySize+8:]))
	return b, nil
}

func (s *Store) GetBranch(h merkle.H256) (merkle.BranchNode, bool, error) {
	data, err := s.client.Get(branchKey(h)).Bytes()
	if err == redis.Nil {
		return merkle.BranchNode{}, false, nil
	}
	if err != nil {
		return merkle.BranchNode{}, false, fmt.Errorf("redisstore: get branch: %w", err)
	}
	b, err := decodeBranch(data)
	if err != nil {
		return merkle.BranchNode{}, false, err
	}
	return b, true, nil
}

func (s *Store) GetLeaf(h merkle.H256) (merkle.LeafNode, bool, error) {
	data, err := s.client.Get(leafKey(h)).Bytes()
	if err == redis.Nil {
		return merkle.LeafNode{}, false, nil
	}
	if err != nil {
		return merkle.LeafNode{}, false, fmt.Errorf("redisstore: get leaf: %w", err)
	}
	if len(data) < merkle.KeySize {
		return merkle.LeafNode{}, false, fmt.Errorf("redisstore: malformed leaf record (%d bytes)", len(data))
	}
	var l merkle.LeafNode
	copy(l.Key[:], data[:merkle.KeySize])
	value, err := s.codec.Decode(data[merkle.KeySize:])
	if err != nil {
		return merkle.LeafNode{}, false, fmt.Errorf("redisstore: decode value: %w", err)
	}
	l.Value = value
	return l, true, nil
}

func (s *Store) InsertBranch(h merkle.H256, b merkle.BranchNode) error {
	if err := s.client.Set(branchKey(h), encodeBranch(b), 0).Err(); err != nil {
		return fmt.Errorf("redisstore: insert branch: %w", err)
	}
	return nil
}

func (s *Store) InsertLeaf(h merkle.H256, l merkle.LeafNode) error {
	raw, err := s.codec.Encode(l.Value)
	if err != nil {
		return fmt.Errorf("redisstore: encode value: %w", err)
	}
	buf := make([]byte, merkle.KeySize+len(raw))
	copy(buf, l.Key[:])
	copy(buf[merkle.KeySize:], raw)
	if err := s.client.Set(leafKey(h), buf, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: insert leaf: %w", err)
	}
	return nil
}

func (s *Store) RemoveBranch(h merkle.H256) error {
	if err := s.client.Del(branchKey(h)).Err(); err != nil {
		return fmt.Errorf("redisstore: remove branch: %w", err)
	}
	return nil
}

func (s *Store) RemoveLeaf(h merkle.H256) error {
	if err := s.client.Del(leafKey(h)).Err(); err != nil {
		return fmt.Errorf("redisstore: remove leaf: %w", err)
	}
	return nil
}

// Branches and Leaves scan the keyspace by prefix; acceptable for a
// diagnostic snapshot, not something the tree itself ever calls.
func (s *Store) Branches() map[merkle.H256]merkle.BranchNode {
	out := map[merkle.H256]merkle.BranchNode{}
	keys, err := s.client.Keys(branchPrefix + "*").Result()
	if err != nil {
		return out
	}
	for _, k := range keys {
		data, err := s.client.Get(k).Bytes()
		if err != nil {
			continue
		}
		b, err := decodeBranch(data)
		if err != nil {
			continue
		}
		var h merkle.H256
		copy(h[:], []byte(k)[len(branchPrefix):])
		out[h] = b
	}
	return out
}

func (s *Store) Leaves() map[merkle.H256]merkle.LeafNode {
	out := map[merkle.H256]merkle.LeafNode{}
	keys, err := s.client.Keys(leafPrefix + "*").Result()
	if err != nil {
		return out
	}
	for _, k := range keys {
		data, err := s.client.Get(k).Bytes()
		if err != nil || len(data) < merkle.KeySize {
			continue
		}
		var l merkle.LeafNode
		copy(l.Key[:], data[:merkle.KeySize])
		value, err := s.codec.Decode(data[merkle.KeySize:])
		if err != nil {
			continue
		}
		l.Value = value
		var h merkle.H256
		copy(h[:], []byte(k)[len(leafPrefix):])
		out[h] = l
	}
	return out
}
