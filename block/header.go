// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package block defines the block wire format: the sealed header and the
// five extrinsic lists, each with its canonical encoding.
package block

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/jam/codec"
	"github.com/luxfi/jam/hashing"
	"github.com/luxfi/jam/keys"
	"github.com/luxfi/jam/state"
)

// EpochMarkerKeys is one validator entry of an epoch marker.
type EpochMarkerKeys struct {
	Bandersnatch keys.BandersnatchKey
	Ed25519      keys.Ed25519Key
}

// EpochMarker announces an epoch change: the entropy snapshots the new
// epoch seals with and the incoming pending validator keys.
type EpochMarker struct {
	Entropy        ids.ID
	TicketsEntropy ids.ID
	Validators     []EpochMarkerKeys
}

func (m *EpochMarker) EncodeTo(e *codec.Encoder) {
	e.Raw(m.Entropy[:])
	e.Raw(m.TicketsEntropy[:])
	e.Length(len(m.Validators))
	for i := range m.Validators {
		e.Raw(m.Validators[i].Bandersnatch[:])
		e.Raw(m.Validators[i].Ed25519[:])
	}
}

func (m *EpochMarker) DecodeFrom(d *codec.Decoder) {
	copy(m.Entropy[:], d.Raw(32))
	copy(m.TicketsEntropy[:], d.Raw(32))
	n := d.Length()
	m.Validators = codec.SliceOf[EpochMarkerKeys](n)
	for i := range m.Validators {
		copy(m.Validators[i].Bandersnatch[:], d.Raw(keys.BandersnatchKeyLen))
		copy(m.Validators[i].Ed25519[:], d.Raw(keys.Ed25519KeyLen))
	}
}

// Header is the sealed block header.
type Header struct {
	ParentHash     ids.ID
	StateRoot      ids.ID
	ExtrinsicHash  ids.ID
	Timeslot       state.TimeSlot
	EpochMarker    *EpochMarker
	WinningTickets []state.Ticket
	Offenders      []keys.Ed25519Key
	AuthorIndex    state.ValidatorIndex
	VRFSig         [keys.BandersnatchSigLen]byte
	Seal           [keys.BandersnatchSigLen]byte
}

// EncodeTo writes the sealed header.
func (h *Header) EncodeTo(e *codec.Encoder) {
	h.encodeUnsealed(e)
	e.Raw(h.Seal[:])
}

// DecodeFrom reads the sealed header.
func (h *Header) DecodeFrom(d *codec.Decoder) {
	copy(h.ParentHash[:], d.Raw(32))
	copy(h.StateRoot[:], d.Raw(32))
	copy(h.ExtrinsicHash[:], d.Raw(32))
	h.Timeslot = state.TimeSlot(d.Uint32())
	if d.Optional() {
		h.EpochMarker = &EpochMarker{}
		h.EpochMarker.DecodeFrom(d)
	} else {
		h.EpochMarker = nil
	}
	if d.Optional() {
		n := d.Length()
		h.WinningTickets = make([]state.Ticket, n)
		for i := range h.WinningTickets {
			h.WinningTickets[i].DecodeFrom(d)
		}
	} else {
		h.WinningTickets = nil
	}
	n := d.Length()
	h.Offenders = codec.SliceOf[keys.Ed25519Key](n)
	for i := range h.Offenders {
		copy(h.Offenders[i][:], d.Raw(keys.Ed25519KeyLen))
	}
	h.AuthorIndex = state.ValidatorIndex(d.Uint16())
	copy(h.VRFSig[:], d.Raw(keys.BandersnatchSigLen))
	copy(h.Seal[:], d.Raw(keys.BandersnatchSigLen))
}

func (h *Header) encodeUnsealed(e *codec.Encoder) {
	e.Raw(h.ParentHash[:])
	e.Raw(h.StateRoot[:])
	e.Raw(h.ExtrinsicHash[:])
	e.Uint32(uint32(h.Timeslot))
	if e.Optional(h.EpochMarker != nil) {
		h.EpochMarker.EncodeTo(e)
	}
	if e.Optional(h.WinningTickets != nil) {
		e.Length(len(h.WinningTickets))
		for i := range h.WinningTickets {
			h.WinningTickets[i].EncodeTo(e)
		}
	}
	e.Length(len(h.Offenders))
	for i := range h.Offenders {
		e.Raw(h.Offenders[i][:])
	}
	e.Uint16(uint16(h.AuthorIndex))
	e.Raw(h.VRFSig[:])
}

// UnsealedBytes returns the header encoding with the seal omitted, the
// message the seal signature is made over.
func (h *Header) UnsealedBytes() []byte {
	e := codec.NewEncoder()
	h.encodeUnsealed(e)
	return e.Bytes()
}

// Hash returns the hash of the sealed header encoding.
func (h *Header) Hash(hs *hashing.Hasher) ids.ID {
	return hs.H(codec.Encode(h))
}
