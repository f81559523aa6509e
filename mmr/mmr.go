// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mmr implements the append-only Merkle Mountain Range used to
// commit to the accumulation-output history, and the Belt wrapper that
// derives leaves from per-service outputs.
package mmr

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/jam/codec"
	"github.com/luxfi/jam/hashing"
)

const peakPrefix = "peak"

// MMR is an ordered list of optional peaks. Peak [i], when present, is the
// root of a complete binary tree over 2^i leaves.
type MMR struct {
	Peaks []*ids.ID
}

// Append folds [leaf] into the range: it merges with each populated peak
// from position zero upward until a free slot is found.
func (m *MMR) Append(h *hashing.Hasher, leaf ids.ID) {
	pos := 0
	for {
		if pos == len(m.Peaks) {
			m.Peaks = append(m.Peaks, &leaf)
			return
		}
		if m.Peaks[pos] == nil {
			m.Peaks[pos] = &leaf
			return
		}
		leaf = h.HK(m.Peaks[pos][:], leaf[:])
		m.Peaks[pos] = nil
		pos++
	}
}

// SuperPeak folds all populated peaks left to right into a single
// commitment. An empty range commits to the zero hash; a single peak is
// its own commitment.
func (m *MMR) SuperPeak(h *hashing.Hasher) ids.ID {
	var populated []ids.ID
	for _, p := range m.Peaks {
		if p != nil {
			populated = append(populated, *p)
		}
	}
	switch len(populated) {
	case 0:
		return ids.Empty
	case 1:
		return populated[0]
	}
	acc := populated[0]
	for _, next := range populated[1:] {
		acc = h.HK([]byte(peakPrefix), acc[:], next[:])
	}
	return acc
}

// Clone returns a deep copy so a scratch transition cannot alias the
// committed range.
func (m *MMR) Clone() MMR {
	out := MMR{Peaks: make([]*ids.ID, len(m.Peaks))}
	for i, p := range m.Peaks {
		if p != nil {
			v := *p
			out.Peaks[i] = &v
		}
	}
	return out
}

// EncodeTo writes the peak list as a sequence of optional hashes.
func (m *MMR) EncodeTo(e *codec.Encoder) {
	e.Length(len(m.Peaks))
	for _, p := range m.Peaks {
		if e.Optional(p != nil) {
			e.Raw(p[:])
		}
	}
}

// DecodeFrom reads the peak list written by EncodeTo.
func (m *MMR) DecodeFrom(d *codec.Decoder) {
	n := d.Length()
	m.Peaks = make([]*ids.ID, n)
	for i := 0; i < n; i++ {
		if d.Optional() {
			var v ids.ID
			copy(v[:], d.Raw(hashing.HashLen))
			m.Peaks[i] = &v
		}
	}
}
