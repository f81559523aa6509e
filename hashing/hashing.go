// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hashing provides the two hash capabilities of the protocol:
// Blake2b-256 for every commitment except the accumulation range, which
// uses legacy Keccak-256 for external proof compatibility.
package hashing

import (
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/luxfi/ids"
)

// HashLen is the octet length of every digest.
const HashLen = 32

// Hasher bundles the two hash functions so components declare which one
// they commit with instead of reaching for a global.
type Hasher struct{}

// H computes the Blake2b-256 digest of the concatenation of [bs].
func (Hasher) H(bs ...[]byte) ids.ID {
	h, _ := blake2b.New256(nil)
	for _, b := range bs {
		h.Write(b)
	}
	var out ids.ID
	h.Sum(out[:0])
	return out
}

// HK computes the legacy Keccak-256 digest of the concatenation of [bs].
func (Hasher) HK(bs ...[]byte) ids.ID {
	h := sha3.NewLegacyKeccak256()
	for _, b := range bs {
		h.Write(b)
	}
	var out ids.ID
	h.Sum(out[:0])
	return out
}
