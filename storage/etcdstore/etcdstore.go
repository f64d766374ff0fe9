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

// Package etcdstore is a merkle.Store backed by etcd, useful when a
// tree's store needs to be replicated and watched rather than merely
// persisted.
package etcdstore

import (
	"context"
	"encoding/binary"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/smtree/smt/merkle"
)

const (
	branchPrefix = "/smt/branch/"
	leafPrefix   = "/smt/leaf/"
)

// ValueCodec turns a merkle.Value into bytes and back.
type ValueCodec interface {
	Encode(merkle.Value) ([]byte, error)
	Decode([]byte) (merkle.Value, error)
}

// Store is a merkle.Store over an etcd cluster.
type Store struct {
	client *clientv3.Client
	codec  ValueCodec
}

// New wraps an already-configured *clientv3.Client.
func New(client *clientv3.Client, codec ValueCodec) *Store {
	return &Store{client: client, codec: codec}
}

func branchKey(h merkle.H256) string {
	return branchPrefix + string(h[:])
}

func leafKey(h merkle.H256) string {
	return leafPrefix + string(h[:])
}

func encodeBranch(b merkle.BranchNode) []byte {
	buf := make([]byte, 2*merkle.KeySize+16)
	copy(buf, b.Left.Hash[:])
	binary.BigEndian.PutUint64(buf[merkle.KeySize:], uint64(b.Left.Height))
	copy(buf[merkle.KeySize+8:], b.Right.Hash[:])
	binary.BigEndian.PutUint64(buf[2*merkle.KeySize+8:], uint64(b.Right.Height))
	return buf
}

func decodeBranch(data []byte) (merkle.BranchNode, error) {
	if len(data) != 2*merkle.KeySize+16 {
		return merkle.BranchNode{}, fmt.Errorf("etcdstore: malformed branch record (%d bytes)", len(data))
	}
	var b merkle.BranchNode
	copy(b.Left.Hash[:], data[:merkle.KeySize])
	b.Left.Height = int(binary.BigEndian.Uint64(data[merkle.KeySize:]))
	copy(b.Right.Hash[:], data[merkle.KeySize+8:2*merkle.KeySize+8])
	b.Right.Height = int(binary.BigEndian.Uint64(data[2*merkle.KeySize+8:]))
	return b, nil
}

func (s *Store) GetBranch(h merkle.H256) (merkle.BranchNode, bool, error) {
	resp, err := s.client.Get(context.Background(), branchKey(h))
	if err != nil {
		return merkle.BranchNode{}, false, fmt.Errorf("etcdstore: get branch: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return merkle.BranchNode{}, false, nil
	}
	b, err := decodeBranch(resp.Kvs[0].Value)
	if err != nil {
		return merkle.BranchNode{}, false, err
	}
	return b, true, nil
}

func (s *Store) GetLeaf(h merkle.H256) (merkle.LeafNode, bool, error) {
	resp, err := s.client.Get(context.Background(), leafKey(h))
	if err != nil {
		return merkle.LeafNode{}, false, fmt.Errorf("etcdstore: get leaf: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return merkle.LeafNode{}, false, nil
	}
	data := resp.Kvs[0].Value
	if len(data) < merkle.KeySize {
		return merkle.LeafNode{}, false, fmt.Errorf("etcdstore: malformed leaf record (%d bytes)", len(data))
	}
	var l merkle.LeafNode
	copy(l.Key[:], data[:merkle.KeySize])
	value, err := s.codec.Decode(data[merkle.KeySize:])
	if err != nil {
		return merkle.LeafNode{}, false, fmt.Errorf("etcdstore: decode value: %w", err)
	}
	l.Value = value
	return l, true, nil
}

func (s *Store) InsertBranch(h merkle.H256, b merkle.BranchNode) error {
	_, err := s.client.Put(context.Background(), branchKey(h), string(encodeBranch(b)))
	if err != nil {
		return fmt.Errorf("etcdstore: insert branch: %w", err)
	}
	return nil
}

func (s *Store) InsertLeaf(h merkle.H256, l merkle.LeafNode) error {
	raw, err := s.codec.Encode(l.Value)
	if err != nil {
		return fmt.Errorf("etcdstore: encode value: %w", err)
	}
	buf := make([]byte, merkle.KeySize+len(raw))
	copy(buf, l.Key[:])
	copy(buf[merkle.KeySize:], raw)
	if _, err := s.client.Put(context.Background(), leafKey(h), string(buf)); err != nil {
		return fmt.Errorf("etcdstore: insert leaf: %w", err)
	}
	return nil
}

func (s *Store) RemoveBranch(h merkle.H256) error {
	if _, err := s.client.Delete(context.Background(), branchKey(h)); err != nil {
		return fmt.Errorf("etcdstore: remove branch: %w", err)
	}
	return nil
}

func (s *Store) RemoveLeaf(h merkle.H256) error {
	if _, err := s.client.Delete(context.Background(), leafKey(h)); err != nil {
		return fmt.Errorf("etcdstore: remove leaf: %w", err)
	}
	return nil
}

func (s *Store) Branches() map[merkle.H256]merkle.BranchNode {
	out := map[merkle.H256]merkle.BranchNode{}
	resp, err := s.client.Get(context.Background(), branchPrefix, clientv3.WithPrefix())
	if err != nil {
		return out
	}
	for _, kv := range resp.Kvs {
		b, err := decodeBranch(kv.Value)
		if err != nil {
			continue
		}
		var h merkle.H256
		copy(h[:], kv.Key[len(branchPrefix):])
		out[h] = b
	}
	return out
}

func (s *Store) Leaves() map[merkle.H256]merkle.LeafNode {
	out := map[merkle.H256]merkle.LeafNode{}
	resp, err := s.client.Get(context.Background(), leafPrefix, clientv3.WithPrefix())
	if err != nil {
		return out
	}
	for _, kv := range resp.Kvs {
		if len(kv.Value) < merkle.KeySize {
			continue
		}
		var l merkle.LeafNode
		copy(l.Key[:], kv.Value[:merkle.KeySize])
		value, err := s.codec.Decode(kv.Value[merkle.KeySize:])
		if err != nil {
			continue
		}
		l.Value = value
		var h merkle.H256
		copy(h[:], kv.Key[len(leafPrefix):])
		out[h] = l
	}
	return out
}
