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

// Package spannerstore is a merkle.Store backed by Cloud Spanner,
// for deployments that already run their ledger of record there.
package spannerstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"

	"github.com/smtree/smt/merkle"
)

const (
	branchesTable = "SmtBranches"
	leavesTable   = "SmtLeaves"
)

// ValueCodec turns a merkle.Value into bytes and back.
type ValueCodec interface {
	Encode(merkle.Value) ([]byte, error)
	Decode([]byte) (merkle.Value, error)
}

// Store is a merkle.Store over a Cloud Spanner database. The database
// is expected to already contain:
//
//	CREATE TABLE SmtBranches (
//	  Digest      BYTES(32) NOT NULL,
//	  LeftHash    BYTES(32) NOT NULL,
//	  LeftHeight  INT64 NOT NULL,
//	  RightHash   BYTES(32) NOT NULL,
//	  RightHeight INT64 NOT NULL,
//	) PRIMARY KEY (Digest);
//
//	CREATE TABLE SmtLeaves (
//	  Digest  BYTES(32) NOT NULL,
//	  LeafKey BYTES(32) NOT NULL,
//	  Value   BYTES(MAX) NOT NULL,
//	) PRIMARY KEY (Digest);
type Store struct {
	client *spanner.Client
	codec  ValueCodec
}

// New wraps an already-configured *spanner.Client.
func New(client *spanner.Client, codec ValueCodec) *Store {
	return &Store{client: client, codec: codec}
}

func (s *Store) Close() {
	s.client.Close()
}

func (s *Store) GetBranch(h merkle.H256) (merkle.BranchNode, bool, error) {
	ctx := context.Background()
	row, err := s.client.Single().ReadRow(ctx, branchesTable, spanner.Key{h[:]},
		[]string{"LeftHash", "LeftHeight", "RightHash", "RightHeight"})
	if spanner.ErrCode(err) == codes.NotFound {
		return merkle.BranchNode{}, false, nil
	}
	if err != nil {
		return merkle.BranchNode{}, false, fmt.Errorf("spannerstore: get branch: %w", err)
	}
	var left, right []byte
	var b merkle.BranchNode
	if err := row.Columns(&left, &b.Left.Height, &right, &b.Right.Height); err != nil {
		return merkle.BranchNode{}, false, err
	}
	copy(b.Left.Hash[:], left)
	copy(b.Right.Hash[:], right)
	return b, true, nil
}

func (s *Store) GetLeaf(h merkle.H256) (merkle.LeafNode, bool, error) {
	ctx := context.Background()
	row, err := s.client.Single().ReadRow(ctx, leavesTable, spanner.Key{h[:]}, []string{"LeafKey", "Value"})
	if spanner.ErrCode(err) == codes.NotFound {
		return merkle.LeafNode{}, false, nil
	}
	if err != nil {
		return merkle.LeafNode{}, false, fmt.Errorf("spannerstore: get leaf: %w", err)
	}
	var key, raw []byte
	if err := row.Columns(&key, &raw); err != nil {
		return merkle.LeafNode{}, false, err
	}
	value, err := s.codec.Decode(raw)
	if err != nil {
		return merkle.LeafNode{}, false, err
	}
	var l merkle.LeafNode
	copy(l.Key[:], key)
	l.Value = value
	return l, true, nil
}

func (s *Store) InsertBranch(h merkle.H256, b merkle.BranchNode) error {
	ctx := context.Background()
	m := spanner.InsertOrUpdate(branchesTable,
		[]string{"Digest", "LeftHash", "LeftHeight", "RightHash", "RightHeight"},
		[]interface{}{h[:], b.Left.Hash[:], b.Left.Height, b.Right.Hash[:], b.Right.Height})
	_, err := s.client.Apply(ctx, []*spanner.Mutation{m})
	return err
}

func (s *Store) InsertLeaf(h merkle.H256, l merkle.LeafNode) error {
	raw, err := s.codec.Encode(l.Value)
	if err != nil {
		return err
	}
	ctx := context.Background()
	m := spanner.InsertOrUpdate(leavesTable, []string{"Digest", "LeafKey", "Value"},
		[]interface{}{h[:], l.Key[:], raw})
	_, err = s.client.Apply(ctx, []*spanner.Mutation{m})
	return err
}

func (s *Store) RemoveBranch(h merkle.H256) error {
	ctx := context.Background()
	m := spanner.Delete(branchesTable, spanner.Key{h[:]})
	_, err := s.client.Apply(ctx, []*spanner.Mutation{m})
	return err
}

func (s *Store) RemoveLeaf(h merkle.H256) error {
	ctx := context.Background()
	m := spanner.Delete(leavesTable, spanner.Key{h[:]})
	_, err := s.client.Apply(ctx, []*spanner.Mutation{m})
	return err
}

func (s *Store) Branches() map[merkle.H256]merkle.BranchNode {
	out := map[merkle.H256]merkle.BranchNode{}
	ctx := context.Background()
	iter := s.client.Single().Read(ctx, branchesTable, spanner.AllKeys(),
		[]string{"Digest", "LeftHash", "LeftHeight", "RightHash", "RightHeight"})
	defer iter.Stop()
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return out
		}
		var digest, left, right []byte
		var b merkle.BranchNode
		if err := row.Columns(&digest, &left, &b.Left.Height, &right, &b.Right.Height); err != nil {
			continue
		}
		var h merkle.H256
		copy(h[:], digest)
		copy(b.Left.Hash[:], left)
		copy(b.Right.Hash[:], right)
		out[h] = b
	}
	return out
}

func (s *Store) Leaves() map[merkle.H256]merkle.LeafNode {
	out := map[merkle.H256]merkle.LeafNode{}
	ctx := context.Background()
	iter := s.client.Single().Read(ctx, leavesTable, spanner.AllKeys(), []string{"Digest", "LeafKey", "Value"})
	defer iter.Stop()
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return out
		}
		var digest, key, raw []byte
		if err := row.Columns(&digest, &key, &raw); err != nil {
			continue
		}
		value, err := s.codec.Decode(raw)
		if err != nil {
			continue
		}
		var h merkle.H256
		var l merkle.LeafNode
		copy(h[:], digest)
		copy(l.Key[:], key)
		l.Value = value
		out[h] = l
	}
	return out
}
