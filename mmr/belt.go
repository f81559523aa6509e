// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mmr

import (
	"encoding/binary"

	"github.com/luxfi/ids"

	"github.com/luxfi/jam/hashing"
)

const accOutPrefix = "accout"

// Belt commits to the ordered accumulation outputs of services. Each
// appended output becomes a leaf binding the producing service to the
// output hash.
type Belt struct {
	Range MMR
}

// AppendOutput derives the leaf for [service]'s [output] and appends it.
func (b *Belt) AppendOutput(h *hashing.Hasher, service uint32, output ids.ID) {
	var sid [4]byte
	binary.BigEndian.PutUint32(sid[:], service)
	leaf := h.HK([]byte(accOutPrefix), sid[:], output[:])
	b.Range.Append(h, leaf)
}

// Root returns the super-peak of the underlying range.
func (b *Belt) Root(h *hashing.Hasher) ids.ID {
	return b.Range.SuperPeak(h)
}

// Clone returns a deep copy of the belt.
func (b *Belt) Clone() Belt {
	return Belt{Range: b.Range.Clone()}
}
