// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"github.com/luxfi/ids"
	"golang.org/x/exp/slices"

	"github.com/luxfi/jam/codec"
	"github.com/luxfi/jam/keys"
	"github.com/luxfi/jam/utils/set"
)

// ValidatorSet is an ordered validator vector. Indexes into the vector
// identify signers in extrinsics.
type ValidatorSet []keys.Validator

// Clone returns a copy the caller may mutate.
func (vs ValidatorSet) Clone() ValidatorSet {
	return slices.Clone(vs)
}

// BandersnatchKeys returns the vector's Bandersnatch keys in order, the
// ring for commitment computation and the fallback seal-key source.
func (vs ValidatorSet) BandersnatchKeys() []keys.BandersnatchKey {
	out := make([]keys.BandersnatchKey, len(vs))
	for i, v := range vs {
		out[i] = v.Bandersnatch
	}
	return out
}

// WithOffendersZeroed returns a copy in which every validator whose
// Ed25519 key is in [offenders] is replaced by the zero validator. The
// vector keeps its length so indexes stay stable.
func (vs ValidatorSet) WithOffendersZeroed(offenders set.Set[keys.Ed25519Key]) ValidatorSet {
	out := vs.Clone()
	for i := range out {
		if offenders.Contains(out[i].Ed25519) {
			out[i] = keys.Validator{}
		}
	}
	return out
}

func (vs ValidatorSet) EncodeTo(e *codec.Encoder) {
	e.Length(len(vs))
	for i := range vs {
		vs[i].EncodeTo(e)
	}
}

func (vs *ValidatorSet) DecodeFrom(d *codec.Decoder) {
	n := d.Length()
	*vs = ValidatorSet(codec.SliceOf[keys.Validator](n))
	for i := range *vs {
		(*vs)[i].DecodeFrom(d)
	}
}

// SafroleState is γ: the pending validator set with its ring commitment,
// the sealing-key table for the current epoch, and the accumulator of
// admitted tickets for the next.
type SafroleState struct {
	Pending     ValidatorSet
	EpochRoot   ids.ID
	SealKeys    SealKeys
	Accumulator []Ticket
}

// Clone returns a deep copy.
func (s *SafroleState) Clone() SafroleState {
	return SafroleState{
		Pending:     s.Pending.Clone(),
		EpochRoot:   s.EpochRoot,
		SealKeys:    s.SealKeys.Clone(),
		Accumulator: slices.Clone(s.Accumulator),
	}
}

func (s *SafroleState) EncodeTo(e *codec.Encoder) {
	s.Pending.EncodeTo(e)
	e.Raw(s.EpochRoot[:])
	s.SealKeys.EncodeTo(e)
	e.Length(len(s.Accumulator))
	for i := range s.Accumulator {
		s.Accumulator[i].EncodeTo(e)
	}
}

func (s *SafroleState) DecodeFrom(d *codec.Decoder) {
	s.Pending.DecodeFrom(d)
	copy(s.EpochRoot[:], d.Raw(32))
	s.SealKeys.DecodeFrom(d)
	n := d.Length()
	s.Accumulator = codec.SliceOf[Ticket](n)
	for i := range s.Accumulator {
		s.Accumulator[i].DecodeFrom(d)
	}
}

// SealKeys is the per-epoch sealing-key table: exactly one of the ticket
// table (ticket mode) or the Bandersnatch key table (fallback mode) is
// populated, each with one entry per slot of the epoch.
type SealKeys struct {
	Tickets  []Ticket
	Fallback []keys.BandersnatchKey
}

// TicketMode reports whether the epoch seals with tickets.
func (k *SealKeys) TicketMode() bool {
	return k.Tickets != nil
}

// Clone returns a deep copy.
func (k *SealKeys) Clone() SealKeys {
	return SealKeys{
		Tickets:  slices.Clone(k.Tickets),
		Fallback: slices.Clone(k.Fallback),
	}
}

func (k *SealKeys) EncodeTo(e *codec.Encoder) {
	if k.TicketMode() {
		e.Discriminant(0)
		e.Length(len(k.Tickets))
		for i := range k.Tickets {
			k.Tickets[i].EncodeTo(e)
		}
		return
	}
	e.Discriminant(1)
	e.Length(len(k.Fallback))
	for i := range k.Fallback {
		e.Raw(k.Fallback[i][:])
	}
}

func (k *SealKeys) DecodeFrom(d *codec.Decoder) {
	switch d.Discriminant(2) {
	case 0:
		n := d.Length()
		k.Tickets = make([]Ticket, n)
		for i := range k.Tickets {
			k.Tickets[i].DecodeFrom(d)
		}
		k.Fallback = nil
	case 1:
		n := d.Length()
		k.Fallback = make([]keys.BandersnatchKey, n)
		for i := range k.Fallback {
			copy(k.Fallback[i][:], d.Raw(keys.BandersnatchKeyLen))
		}
		k.Tickets = nil
	}
}
