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

// Command smtcli is a small command-line front end over an in-memory
// sparse Merkle tree, useful for exercising the library without writing
// Go: update and query a tree, and generate or verify proofs against it.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/creachadair/shell"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/smtree/smt/hashers/blake2b"
	"github.com/smtree/smt/merkle"
	"github.com/smtree/smt/storage/memstore"
)

// byteValue is the merkle.Value used throughout the CLI: raw bytes,
// hex-encoded on input and output.
type byteValue []byte

func (v byteValue) Equal(other merkle.Value) bool {
	o, ok := other.(byteValue)
	if !ok {
		return false
	}
	return string(v) == string(o)
}

func (v byteValue) Hash(h merkle.Hasher) merkle.H256 {
	h.Write(v)
	return h.Sum()
}

func (v byteValue) IsZero() bool {
	return len(v) == 0
}

func main() {
	flag.Parse()
	defer glog.Flush()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: smtcli <update|get|prove|verify|verify-batch|repl> [args...]")
		os.Exit(2)
	}

	tree := merkle.New(memstore.New(), blake2b.New, merkle.H256{})

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "update":
		err = runUpdate(tree, rest)
	case "get":
		err = runGet(tree, rest)
	case "prove":
		err = runProve(tree, rest)
	case "verify":
		err = runVerify(tree, rest)
	case "verify-batch":
		err = runVerifyBatch(tree, rest)
	case "repl":
		err = runREPL(tree)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		glog.Errorf("smtcli: %s: %v", cmd, err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseKey(s string) (merkle.H256, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return merkle.H256{}, fmt.Errorf("invalid hex key %q: %w", s, err)
	}
	if len(raw) != merkle.KeySize {
		return merkle.H256{}, fmt.Errorf("key %q must be %d bytes, got %d", s, merkle.KeySize, len(raw))
	}
	var h merkle.H256
	copy(h[:], raw)
	return h, nil
}

func runUpdate(t *merkle.SparseMerkleTree, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("update needs <hex-key> <hex-value>")
	}
	key, err := parseKey(args[0])
	if err != nil {
		return err
	}
	value, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("invalid hex value: %w", err)
	}
	root, err := t.Update(key, byteValue(value))
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(root[:]))
	return nil
}

func runGet(t *merkle.SparseMerkleTree, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("get needs <hex-key>")
	}
	key, err := parseKey(args[0])
	if err != nil {
		return err
	}
	value, err := t.Get(key)
	if err != nil {
		return err
	}
	v, _ := value.(byteValue)
	fmt.Println(hex.EncodeToString(v))
	return nil
}

func runProve(t *merkle.SparseMerkleTree, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("prove needs at least one <hex-key>")
	}
	keys := make([]merkle.H256, len(args))
	for i, a := range args {
		k, err := parseKey(a)
		if err != nil {
			return err
		}
		keys[i] = k
	}
	proof, err := t.MerkleProof(keys)
	if err != nil {
		return err
	}
	for _, step := range proof.Proof {
		fmt.Printf("%d:%s\n", step.Height, hex.EncodeToString(step.Hash[:]))
	}
	return nil
}

func runVerify(t *merkle.SparseMerkleTree, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("verify needs <hex-root> <hex-key>=<hex-value> [...]")
	}
	root, err := parseKey(args[0])
	if err != nil {
		return err
	}
	leaves, err := parseLeaves(args[1:])
	if err != nil {
		return err
	}
	proof, err := t.MerkleProof(keysOf(leaves))
	if err != nil {
		return err
	}
	ok, err := proof.Verify(root, leaves, blake2b.New)
	if err != nil {
		return err
	}
	fmt.Println(ok)
	return nil
}

// runVerifyBatch verifies several independent (root, leaves) claims
// concurrently, printing one line of output per claim in input order.
// Claims are read one per line from stdin as:
//
//	<hex-root> <hex-key>=<hex-value> [<hex-key>=<hex-value> ...]
func runVerifyBatch(t *merkle.SparseMerkleTree, args []string) error {
	scanner := bufio.NewScanner(os.Stdin)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	results := make([]bool, len(lines))
	g, _ := errgroup.WithContext(context.Background())
	for i, line := range lines {
		i, line := i, line
		g.Go(func() error {
			fields, ok := shell.Split(line)
			if !ok {
				return fmt.Errorf("line %d: unbalanced quoting", i+1)
			}
			if len(fields) < 2 {
				return fmt.Errorf("line %d: need <hex-root> <hex-key>=<hex-value> [...]", i+1)
			}
			root, err := parseKey(fields[0])
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			leaves, err := parseLeaves(fields[1:])
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			proof, err := t.MerkleProof(keysOf(leaves))
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			ok2, err := proof.Verify(root, leaves, blake2b.New)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			results[i] = ok2
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, ok := range results {
		fmt.Println(ok)
	}
	return nil
}

func parseLeaves(fields []string) ([]merkle.KeyValue, error) {
	leaves := make([]merkle.KeyValue, len(fields))
	for i, f := range fields {
		parts := strings.SplitN(f, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("leaf %q must be <hex-key>=<hex-value>", f)
		}
		key, err := parseKey(parts[0])
		if err != nil {
			return nil, err
		}
		value, err := hex.DecodeString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid hex value in %q: %w", f, err)
		}
		leaves[i] = merkle.KeyValue{Key: key, Value: byteValue(value)}
	}
	return leaves, nil
}

func keysOf(leaves []merkle.KeyValue) []merkle.H256 {
	keys := make([]merkle.H256, len(leaves))
	for i, l := range leaves {
		keys[i] = l.Key
	}
	return keys
}

// runREPL reads update/get/prove commands one per line, shell-quoted, so a
// session can be scripted and replayed with ordinary shell tooling.
func runREPL(t *merkle.SparseMerkleTree) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields, ok := shell.Split(line)
		if !ok || len(fields) == 0 {
			fmt.Fprintln(os.Stderr, "error: unbalanced quoting")
			continue
		}
		var err error
		switch fields[0] {
		case "update":
			err = runUpdate(t, fields[1:])
		case "get":
			err = runGet(t, fields[1:])
		case "prove":
			err = runProve(t, fields[1:])
		default:
			err = fmt.Errorf("unknown command %q", fields[0])
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return scanner.Err()
}
