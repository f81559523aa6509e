// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state holds the full on-chain state container and every entity
// it is composed of, together with their canonical encodings. The state
// root is the hash of the container's canonical serialization, so the
// field declarations here are consensus-critical: reordering them changes
// every root.
package state

import (
	"bytes"

	"github.com/luxfi/ids"

	"github.com/luxfi/jam/codec"
)

// TimeSlot counts slots since genesis.
type TimeSlot uint32

// ServiceID identifies a service account.
type ServiceID uint32

// CoreID identifies an execution lane.
type CoreID uint16

// ValidatorIndex identifies a validator within a validator vector.
type ValidatorIndex uint16

// Gas is a metering quantity. It is signed so a single instruction may
// drive the counter below zero before out-of-gas is reported.
type Gas int64

// Ticket is a Safrole entry ticket: the output hash of a ring-VRF proof
// and the attempt counter it was made with. Tickets order lexicographically
// by identifier.
type Ticket struct {
	ID      ids.ID
	Attempt uint8
}

// Less orders tickets by identifier.
func (t Ticket) Less(o Ticket) bool {
	return bytes.Compare(t.ID[:], o.ID[:]) < 0
}

func (t *Ticket) EncodeTo(e *codec.Encoder) {
	e.Raw(t.ID[:])
	e.Uint8(t.Attempt)
}

func (t *Ticket) DecodeFrom(d *codec.Decoder) {
	copy(t.ID[:], d.Raw(32))
	t.Attempt = d.Uint8()
}

// EntropyPool is the rolling entropy accumulator η. Index 0 receives the
// per-block VRF output; indexes 1..3 are the snapshots of the previous
// three epochs, rotated at each epoch boundary.
type EntropyPool [4]ids.ID

// Rotate shifts the epoch snapshots: η3←η2, η2←η1, η1←η0.
func (p *EntropyPool) Rotate() {
	p[3] = p[2]
	p[2] = p[1]
	p[1] = p[0]
}

func (p *EntropyPool) EncodeTo(e *codec.Encoder) {
	for i := range p {
		e.Raw(p[i][:])
	}
}

func (p *EntropyPool) DecodeFrom(d *codec.Decoder) {
	for i := range p {
		copy(p[i][:], d.Raw(32))
	}
}
