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

// Package mysqlstore is a merkle.Store backed by MySQL, storing branch
// and leaf nodes as two tables keyed by their digest.
package mysqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/smtree/smt/merkle"
)

// schema holds one statement per element: the MySQL driver rejects
// several statements in a single Exec unless the DSN enables them.
var schema = []string{`
CREATE TABLE IF NOT EXISTS smt_branches (
	digest BINARY(32) NOT NULL PRIMARY KEY,
	left_hash BINARY(32) NOT NULL,
	left_height INT NOT NULL,
	right_hash BINARY(32) NOT NULL,
	right_height INT NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS smt_leaves (
	digest BINARY(32) NOT NULL PRIMARY KEY,
	leaf_key BINARY(32) NOT NULL,
	value BLOB NOT NULL
)`}

// ValueCodec turns a merkle.Value into bytes and back, so the store
// doesn't need to know anything about the application's value type.
type ValueCodec interface {
	Encode(merkle.Value) ([]byte, error)
	Decode([]byte) (merkle.Value, error)
}

// Store is a merkle.Store over a MySQL database.
type Store struct {
	db    *sql.DB
	codec ValueCodec
}

// Open connects to dsn (a go-sql-driver/mysql data source name) and
// ensures the backing tables exist.
func Open(dsn string, codec ValueCodec) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("mysqlstore: ping: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("mysqlstore: create schema: %w", err)
		}
	}
	return &Store{db: db, codec: codec}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetBranch(h merkle.H256) (merkle.BranchNode, bool, error) {
	row := s.db.QueryRow(`SELECT left_hash, left_height, right_hash, right_height FROM smt_branches WHERE digest = ?`, h[:])
	var b merkle.BranchNode
	var left, right []byte
	if err := row.Scan(&left, &b.Left.Height, &right, &b.Right.Height); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return merkle.BranchNode{}, false, nil
		}
		return merkle.BranchNode{}, false, fmt.Errorf("mysqlstore: get branch: %w", err)
	}
	copy(b.Left.Hash[:], left)
	copy(b.Right.Hash[:], right)
	return b, true, nil
}

func (s *Store) GetLeaf(h merkle.H256) (merkle.LeafNode, bool, error) {
	row := s.db.QueryRow(`SELECT leaf_key, value FROM smt_leaves WHERE digest = ?`, h[:])
	var key, raw []byte
	if err := row.Scan(&key, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return merkle.LeafNode{}, false, nil
		}
		return merkle.LeafNode{}, false, fmt.Errorf("mysqlstore: get leaf: %w", err)
	}
	value, err := s.codec.Decode(raw)
	if err != nil {
		return merkle.LeafNode{}, false, fmt.Errorf("mysqlstore: decode value: %w", err)
	}
	var l merkle.LeafNode
	copy(l.Key[:], key)
	l.Value = value
	return l, true, nil
}

func (s *Store) InsertBranch(h merkle.H256, b merkle.BranchNode) error {
	_, err := s.db.Exec(
		`INSERT INTO smt_branches (digest, left_hash, left_height, right_hash, right_height)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE left_hash = VALUES(left_hash), left_height = VALUES(left_height),
		 right_hash = VALUES(right_hash), right_height = VALUES(right_height)`,
		h[:], b.Left.Hash[:], b.Left.Height, b.Right.Hash[:], b.Right.Height)
	if err != nil {
		return fmt.Errorf("mysqlstore: insert branch: %w", err)
	}
	return nil
}

func (s *Store) InsertLeaf(h merkle.H256, l merkle.LeafNode) error {
	raw, err := s.codec.Encode(l.Value)
	if err != nil {
		return fmt.Errorf("mysqlstore: encode value: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO smt_leaves (digest, leaf_key, value) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE leaf_key = VALUES(leaf_key), value = VALUES(value)`,
		h[:], l.Key[:], raw)
	if err != nil {
		return fmt.Errorf("mysqlstore: insert leaf: %w", err)
	}
	return nil
}

func (s *Store) RemoveBranch(h merkle.H256) error {
	if _, err := s.db.Exec(`DELETE FROM smt_branches WHERE digest = ?`, h[:]); err != nil {
		return fmt.Errorf("mysqlstore: remove branch: %w", err)
	}
	return nil
}

func (s *Store) RemoveLeaf(h merkle.H256) error {
	if _, err := s.db.Exec(`DELETE FROM smt_leaves WHERE digest = ?`, h[:]); err != nil {
		return fmt.Errorf("mysqlstore: remove leaf: %w", err)
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
