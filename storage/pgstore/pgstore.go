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

// Package pgstore is a merkle.Store backed by PostgreSQL.
package pgstore

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/smtree/smt/merkle"
)

const schema = `
CREATE TABLE IF NOT EXISTS smt_branches (
	digest BYTEA PRIMARY KEY,
	left_hash BYTEA NOT NULL,
	left_height INTEGER NOT NULL,
	right_hash BYTEA NOT NULL,
	right_height INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS smt_leaves (
	digest BYTEA PRIMARY KEY,
	leaf_key BYTEA NOT NULL,
	value BYTEA NOT NULL
);
`

// ValueCodec turns a merkle.Value into bytes and back.
type ValueCodec interface {
	Encode(merkle.Value) ([]byte, error)
	Decode([]byte) (merkle.Value, error)
}

// Store is a merkle.Store over a PostgreSQL database.
type Store struct {
	db    *sql.DB
	codec ValueCodec
}

// Open connects to connStr (a lib/pq connection string) and ensures the
// backing tables exist.
func Open(connStr string, codec ValueCodec) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("pgstore: create schema: %w", err)
	}
	return &Store{db: db, codec: codec}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetBranch(h merkle.H256) (merkle.BranchNode, bool, error) {
	row := s.db.QueryRow(`SELECT left_hash, left_height, right_hash, right_height FROM smt_branches WHERE digest = $1`, h[:])
	var b merkle.BranchNode
	var left, right []byte
	if err := row.Scan(&left, &b.Left.Height, &right, &b.Right.Height); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return merkle.BranchNode{}, false, nil
		}
		return merkle.BranchNode{}, false, fmt.Errorf("pgstore: get branch: %w", err)
	}
	copy(b.Left.Hash[:], left)
	copy(b.Right.Hash[:], right)
	return b, true, nil
}

func (s *Store) GetLeaf(h merkle.H256) (merkle.LeafNode, bool, error) {
	row := s.db.QueryRow(`SELECT leaf_key, value FROM smt_leaves WHERE digest = $1`, h[:])
	var key, raw []byte
	if err := row.Scan(&key, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return merkle.LeafNode{}, false, nil
		}
		return merkle.LeafNode{}, false, fmt.Errorf("pgstore: get leaf: %w", err)
	}
	value, err := s.codec.Decode(raw)
	if err != nil {
		return merkle.LeafNode{}, false, fmt.Errorf("pgstore: decode value: %w", err)
	}
	var l merkle.LeafNode
	copy(l.Key[:], key)
	l.Value = value
	return l, true, nil
}

func (s *Store) InsertBranch(h merkle.H256, b merkle.BranchNode) error {
	_, err := s.db.Exec(
		`INSERT INTO smt_branches (digest, left_hash, left_height, right_hash, right_height)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (digest) DO UPDATE SET left_hash = EXCLUDED.left_hash, left_height = EXCLUDED.left_height,
		 right_hash = EXCLUDED.right_hash, right_height = EXCLUDED.right_height`,
		h[:], b.Left.Hash[:], b.Left.Height, b.Right.Hash[:], b.Right.Height)
	if err != nil {
		return fmt.Errorf("pgstore: insert branch: %w", err)
	}
	return nil
}

func (s *Store) InsertLeaf(h merkle.H256, l merkle.LeafNode) error {
	raw, err := s.codec.Encode(l.Value)
	if err != nil {
		return fmt.Errorf("pgstore: encode value: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO smt_leaves (digest, leaf_key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (digest) DO UPDATE SET leaf_key = EXCLUDED.leaf_key, value = EXCLUDED.value`,
		h[:], l.Key[:], raw)
	if err != nil {
		return fmt.Errorf("pgstore: insert leaf: %w", err)
	}
	return nil
}

func (s *Store) RemoveBranch(h merkle.H256) error {
	if _, err := s.db.Exec(`DELETE FROM smt_branches WHERE digest = $1`, h[:]); err != nil {
		return fmt.Errorf("pgstore: remove branch: %w", err)
	}
	return nil
}

func (s *Store) RemoveLeaf(h merkle.H256) error {
	if _, err := s.db.Exec(`DELETE FROM smt_leaves WHERE digest = $1`, h[:]); err != nil {
		return fmt.Errorf("pgstore: remove leaf: %w", err)
	}
	return nil
}

func (s *Store) Branches() map[merkle.H256]merkle.BranchNode {
	out := map[merkle.H256]merkle.BranchNode{}
	rows, err := s.db.Query(`SELECT digest, left_hash, left_height, right_hash, right_height FROM smt_branches`)
	if err != nil {
		return out
	}
	defer rows.Close()
	for rows.Next() {
		var digest, left, right []byte
		var b merkle.BranchNode
		if err := rows.Scan(&digest, &left, &b.Left.Height, &right, &b.Right.Height); err != nil {
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
	rows, err := s.db.Query(`SELECT digest, leaf_key, value FROM smt_leaves`)
	if err != nil {
		return out
	}
	defer rows.Close()
	for rows.Next() {
		var digest, key, raw []byte
		if err := rows.Scan(&digest, &key, &raw); err != nil {
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
