// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"sort"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/luxfi/jam/codec"
)

// ValidatorStats tallies one validator's activity within an epoch.
type ValidatorStats struct {
	Blocks         uint32
	Tickets        uint32
	Preimages      uint32
	PreimageOctets uint64
	Guarantees     uint32
	Assurances     uint32
}

// CoreStats tallies one core's processed reports. The tallies run across
// epochs: RotateEpoch does not reset them.
type CoreStats struct {
	Reports uint32
	GasUsed uint64
}

// ServiceStats tallies one service's accumulation activity.
type ServiceStats struct {
	Accumulations uint32
	AccumulateGas uint64
}

// Statistics is π: the activity record swapped at epoch boundaries.
type Statistics struct {
	Current  []ValidatorStats
	Previous []ValidatorStats
	Cores    []CoreStats
	Services map[ServiceID]ServiceStats
}

// NewStatistics returns zeroed tallies for [validators] and [cores].
func NewStatistics(validators, cores int) Statistics {
	return Statistics{
		Current:  make([]ValidatorStats, validators),
		Previous: make([]ValidatorStats, validators),
		Cores:    make([]CoreStats, cores),
		Services: map[ServiceID]ServiceStats{},
	}
}

// RotateEpoch moves the current tallies into previous and zeroes current.
func (s *Statistics) RotateEpoch() {
	s.Previous = s.Current
	s.Current = make([]ValidatorStats, len(s.Previous))
}

// Clone returns a deep copy.
func (s *Statistics) Clone() Statistics {
	return Statistics{
		Current:  slices.Clone(s.Current),
		Previous: slices.Clone(s.Previous),
		Cores:    slices.Clone(s.Cores),
		Services: maps.Clone(s.Services),
	}
}

func (s *Statistics) EncodeTo(e *codec.Encoder) {
	encodeValidatorStats(e, s.Current)
	encodeValidatorStats(e, s.Previous)
	e.Length(len(s.Cores))
	for _, c := range s.Cores {
		e.Uint32(c.Reports)
		e.Uint64(c.GasUsed)
	}
	ks := maps.Keys(s.Services)
	sort.Slice(ks, func(i, j int) bool { return ks[i] < ks[j] })
	e.Length(len(ks))
	for _, k := range ks {
		v := s.Services[k]
		e.Uint32(uint32(k))
		e.Uint32(v.Accumulations)
		e.Uint64(v.AccumulateGas)
	}
}

func (s *Statistics) DecodeFrom(d *codec.Decoder) {
	s.Current = decodeValidatorStats(d)
	s.Previous = decodeValidatorStats(d)
	n := d.Length()
	s.Cores = make([]CoreStats, n)
	for i := range s.Cores {
		s.Cores[i].Reports = d.Uint32()
		s.Cores[i].GasUsed = d.Uint64()
	}
	n = d.Length()
	s.Services = make(map[ServiceID]ServiceStats, n)
	for i := 0; i < n; i++ {
		k := ServiceID(d.Uint32())
		var v ServiceStats
		v.Accumulations = d.Uint32()
		v.AccumulateGas = d.Uint64()
		s.Services[k] = v
	}
}

func encodeValidatorStats(e *codec.Encoder, vs []ValidatorStats) {
	e.Length(len(vs))
	for _, v := range vs {
		e.Uint32(v.Blocks)
		e.Uint32(v.Tickets)
		e.Uint32(v.Preimages)
		e.Uint64(v.PreimageOctets)
		e.Uint32(v.Guarantees)
		e.Uint32(v.Assurances)
	}
}

func decodeValidatorStats(d *codec.Decoder) []ValidatorStats {
	n := d.Length()
	vs := make([]ValidatorStats, n)
	for i := range vs {
		vs[i].Blocks = d.Uint32()
		vs[i].Tickets = d.Uint32()
		vs[i].Preimages = d.Uint32()
		vs[i].PreimageOctets = d.Uint64()
		vs[i].Guarantees = d.Uint32()
		vs[i].Assurances = d.Uint32()
	}
	return vs
}
