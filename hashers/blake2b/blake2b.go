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

// Package blake2b provides the default merkle.Hasher: blake2b-256,
// personalized so that a digest computed for this tree can never be
// confused with a blake2b digest computed for an unrelated purpose.
package blake2b

import (
	"fmt"
	"hash"

	"github.com/minio/blake2b-simd"

	"github.com/smtree/smt/merkle"
)

var personalization = []byte("SMT")

type hasher struct {
	h hash.Hash
}

// New returns a fresh merkle.Hasher. It satisfies merkle.HasherFactory
// and is the default factory every Store-backed tree in this module
// should use unless a caller has a specific reason to swap it out.
func New() merkle.Hasher {
	h, err := blake2b.New(&blake2b.Config{Size: uint8(merkle.KeySize), Person: personalization})
	if err != nil {
		// Size and Person are both fixed, valid constants: this can only
		// fail if the blake2b-simd build itself is broken.
		panic(fmt.Sprintf("hashers/blake2b: %v", err))
	}
	return &hasher{h: h}
}

func (w *hasher) Write(data []byte) {
	w.h.Write(data)
}

func (w *hasher) Sum() merkle.H256 {
	var out merkle.H256
	copy(out[:], w.h.Sum(nil))
	return out
}
