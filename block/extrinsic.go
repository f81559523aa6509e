// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package block

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/jam/codec"
	"github.com/luxfi/jam/keys"
	"github.com/luxfi/jam/state"
)

// TicketEnvelope is a submitted entry ticket: the attempt counter and the
// ring-VRF proof whose output becomes the ticket identifier.
type TicketEnvelope struct {
	Attempt uint8
	Proof   []byte
}

func (t *TicketEnvelope) EncodeTo(e *codec.Encoder) {
	e.Uint8(t.Attempt)
	e.Raw(t.Proof)
}

func (t *TicketEnvelope) DecodeFrom(d *codec.Decoder) {
	t.Attempt = d.Uint8()
	t.Proof = append([]byte(nil), d.Raw(keys.RingProofLen)...)
}

// Preimage is a supplied blob for a soliciting service.
type Preimage struct {
	Service state.ServiceID
	Blob    []byte
}

func (p *Preimage) EncodeTo(e *codec.Encoder) {
	e.Uint32(uint32(p.Service))
	e.Blob(p.Blob)
}

func (p *Preimage) DecodeFrom(d *codec.Decoder) {
	p.Service = state.ServiceID(d.Uint32())
	p.Blob = d.Blob()
}

// Credential is one guarantor signature over a report hash.
type Credential struct {
	Index     state.ValidatorIndex
	Signature [keys.Ed25519SigLen]byte
}

// Guarantee attests that a core's guarantors stand behind a report.
type Guarantee struct {
	Report      state.WorkReport
	Slot        state.TimeSlot
	Credentials []Credential
}

func (g *Guarantee) EncodeTo(e *codec.Encoder) {
	g.Report.EncodeTo(e)
	e.Uint32(uint32(g.Slot))
	e.Length(len(g.Credentials))
	for i := range g.Credentials {
		e.Uint16(uint16(g.Credentials[i].Index))
		e.Raw(g.Credentials[i].Signature[:])
	}
}

func (g *Guarantee) DecodeFrom(d *codec.Decoder) {
	g.Report.DecodeFrom(d)
	g.Slot = state.TimeSlot(d.Uint32())
	n := d.Length()
	g.Credentials = codec.SliceOf[Credential](n)
	for i := range g.Credentials {
		g.Credentials[i].Index = state.ValidatorIndex(d.Uint16())
		copy(g.Credentials[i].Signature[:], d.Raw(keys.Ed25519SigLen))
	}
}

// Assurance is one validator's availability bitfield over all cores.
type Assurance struct {
	Anchor    ids.ID
	Bitfield  []bool
	Index     state.ValidatorIndex
	Signature [keys.Ed25519SigLen]byte
}

func (a *Assurance) EncodeTo(e *codec.Encoder) {
	e.Raw(a.Anchor[:])
	e.BitSeq(a.Bitfield)
	e.Uint16(uint16(a.Index))
	e.Raw(a.Signature[:])
}

func (a *Assurance) DecodeFrom(d *codec.Decoder) {
	copy(a.Anchor[:], d.Raw(32))
	a.Bitfield = d.BitSeq()
	a.Index = state.ValidatorIndex(d.Uint16())
	copy(a.Signature[:], d.Raw(keys.Ed25519SigLen))
}

// Judgment is one juror's vote within a verdict.
type Judgment struct {
	Vote      bool
	Index     state.ValidatorIndex
	Signature [keys.Ed25519SigLen]byte
}

// Verdict is a jury's decision about one report.
type Verdict struct {
	Target    ids.ID
	Age       uint32
	Judgments []Judgment
}

// Culprit names a guarantor of a bad report.
type Culprit struct {
	Target    ids.ID
	Key       keys.Ed25519Key
	Signature [keys.Ed25519SigLen]byte
}

// Fault names a judge who voted against the verdict.
type Fault struct {
	Target    ids.ID
	Vote      bool
	Key       keys.Ed25519Key
	Signature [keys.Ed25519SigLen]byte
}

// Dispute carries the verdicts, culprits and faults of the dispute
// extrinsic.
type Dispute struct {
	Verdicts []Verdict
	Culprits []Culprit
	Faults   []Fault
}

func (v *Verdict) EncodeTo(e *codec.Encoder) {
	e.Raw(v.Target[:])
	e.Uint32(v.Age)
	e.Length(len(v.Judgments))
	for i := range v.Judgments {
		e.Bool(v.Judgments[i].Vote)
		e.Uint16(uint16(v.Judgments[i].Index))
		e.Raw(v.Judgments[i].Signature[:])
	}
}

func (v *Verdict) DecodeFrom(d *codec.Decoder) {
	copy(v.Target[:], d.Raw(32))
	v.Age = d.Uint32()
	n := d.Length()
	v.Judgments = codec.SliceOf[Judgment](n)
	for i := range v.Judgments {
		v.Judgments[i].Vote = d.Bool()
		v.Judgments[i].Index = state.ValidatorIndex(d.Uint16())
		copy(v.Judgments[i].Signature[:], d.Raw(keys.Ed25519SigLen))
	}
}

func (dp *Dispute) EncodeTo(e *codec.Encoder) {
	e.Length(len(dp.Verdicts))
	for i := range dp.Verdicts {
		dp.Verdicts[i].EncodeTo(e)
	}
	e.Length(len(dp.Culprits))
	for i := range dp.Culprits {
		e.Raw(dp.Culprits[i].Target[:])
		e.Raw(dp.Culprits[i].Key[:])
		e.Raw(dp.Culprits[i].Signature[:])
	}
	e.Length(len(dp.Faults))
	for i := range dp.Faults {
		e.Raw(dp.Faults[i].Target[:])
		e.Bool(dp.Faults[i].Vote)
		e.Raw(dp.Faults[i].Key[:])
		e.Raw(dp.Faults[i].Signature[:])
	}
}

func (dp *Dispute) DecodeFrom(d *codec.Decoder) {
	n := d.Length()
	dp.Verdicts = codec.SliceOf[Verdict](n)
	for i := range dp.Verdicts {
		dp.Verdicts[i].DecodeFrom(d)
	}
	n = d.Length()
	dp.Culprits = codec.SliceOf[Culprit](n)
	for i := range dp.Culprits {
		copy(dp.Culprits[i].Target[:], d.Raw(32))
		copy(dp.Culprits[i].Key[:], d.Raw(keys.Ed25519KeyLen))
		copy(dp.Culprits[i].Signature[:], d.Raw(keys.Ed25519SigLen))
	}
	n = d.Length()
	dp.Faults = codec.SliceOf[Fault](n)
	for i := range dp.Faults {
		copy(dp.Faults[i].Target[:], d.Raw(32))
		dp.Faults[i].Vote = d.Bool()
		copy(dp.Faults[i].Key[:], d.Raw(keys.Ed25519KeyLen))
		copy(dp.Faults[i].Signature[:], d.Raw(keys.Ed25519SigLen))
	}
}

// Extrinsic is the block body: the five operation lists in wire order.
type Extrinsic struct {
	Tickets    []TicketEnvelope
	Preimages  []Preimage
	Guarantees []Guarantee
	Assurances []Assurance
	Disputes   Dispute
}

func (x *Extrinsic) EncodeTo(e *codec.Encoder) {
	e.Length(len(x.Tickets))
	for i := range x.Tickets {
		x.Tickets[i].EncodeTo(e)
	}
	e.Length(len(x.Preimages))
	for i := range x.Preimages {
		x.Preimages[i].EncodeTo(e)
	}
	e.Length(len(x.Guarantees))
	for i := range x.Guarantees {
		x.Guarantees[i].EncodeTo(e)
	}
	e.Length(len(x.Assurances))
	for i := range x.Assurances {
		x.Assurances[i].EncodeTo(e)
	}
	x.Disputes.EncodeTo(e)
}

func (x *Extrinsic) DecodeFrom(d *codec.Decoder) {
	n := d.Length()
	x.Tickets = codec.SliceOf[TicketEnvelope](n)
	for i := range x.Tickets {
		x.Tickets[i].DecodeFrom(d)
	}
	n = d.Length()
	x.Preimages = codec.SliceOf[Preimage](n)
	for i := range x.Preimages {
		x.Preimages[i].DecodeFrom(d)
	}
	n = d.Length()
	x.Guarantees = codec.SliceOf[Guarantee](n)
	for i := range x.Guarantees {
		x.Guarantees[i].DecodeFrom(d)
	}
	n = d.Length()
	x.Assurances = codec.SliceOf[Assurance](n)
	for i := range x.Assurances {
		x.Assurances[i].DecodeFrom(d)
	}
	x.Disputes.DecodeFrom(d)
}
