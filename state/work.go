// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/jam/codec"
)

// RefinementContext anchors a work package to the chain state it was
// refined against.
type RefinementContext struct {
	Anchor           ids.ID
	StateRoot        ids.ID
	AccumulationRoot ids.ID
	LookupAnchor     ids.ID
	LookupSlot       TimeSlot
	Prerequisites    []ids.ID
}

func (c *RefinementContext) EncodeTo(e *codec.Encoder) {
	e.Raw(c.Anchor[:])
	e.Raw(c.StateRoot[:])
	e.Raw(c.AccumulationRoot[:])
	e.Raw(c.LookupAnchor[:])
	e.Uint32(uint32(c.LookupSlot))
	e.Length(len(c.Prerequisites))
	for i := range c.Prerequisites {
		e.Raw(c.Prerequisites[i][:])
	}
}

func (c *RefinementContext) DecodeFrom(d *codec.Decoder) {
	copy(c.Anchor[:], d.Raw(32))
	copy(c.StateRoot[:], d.Raw(32))
	copy(c.AccumulationRoot[:], d.Raw(32))
	copy(c.LookupAnchor[:], d.Raw(32))
	c.LookupSlot = TimeSlot(d.Uint32())
	n := d.Length()
	c.Prerequisites = codec.SliceOf[ids.ID](n)
	for i := range c.Prerequisites {
		copy(c.Prerequisites[i][:], d.Raw(32))
	}
}

// WorkItem is one unit of computation within a package.
type WorkItem struct {
	Service       ServiceID
	CodeHash      ids.ID
	Payload       []byte
	GasRefine     Gas
	GasAccumulate Gas
	ExportCount   uint16
}

func (w *WorkItem) EncodeTo(e *codec.Encoder) {
	e.Uint32(uint32(w.Service))
	e.Raw(w.CodeHash[:])
	e.Blob(w.Payload)
	e.Uint64(uint64(w.GasRefine))
	e.Uint64(uint64(w.GasAccumulate))
	e.Uint16(w.ExportCount)
}

func (w *WorkItem) DecodeFrom(d *codec.Decoder) {
	w.Service = ServiceID(d.Uint32())
	copy(w.CodeHash[:], d.Raw(32))
	w.Payload = d.Blob()
	w.GasRefine = Gas(d.Uint64())
	w.GasAccumulate = Gas(d.Uint64())
	w.ExportCount = d.Uint16()
}

// PackageSpec identifies a work package and its erasure commitments.
type PackageSpec struct {
	Hash         ids.ID
	Length       uint32
	ErasureRoot  ids.ID
	ExportsRoot  ids.ID
	ExportsCount uint16
}

func (s *PackageSpec) EncodeTo(e *codec.Encoder) {
	e.Raw(s.Hash[:])
	e.Uint32(s.Length)
	e.Raw(s.ErasureRoot[:])
	e.Raw(s.ExportsRoot[:])
	e.Uint16(s.ExportsCount)
}

func (s *PackageSpec) DecodeFrom(d *codec.Decoder) {
	copy(s.Hash[:], d.Raw(32))
	s.Length = d.Uint32()
	copy(s.ErasureRoot[:], d.Raw(32))
	copy(s.ExportsRoot[:], d.Raw(32))
	s.ExportsCount = d.Uint16()
}

// WorkError tags a failed digest result. A zero tag means the result
// octets are the successful output.
type WorkError uint8

const (
	WorkOK WorkError = iota
	WorkOutOfGas
	WorkPanic
	WorkBadExportCount
	WorkBadImport
	WorkBadCode
	WorkCodeTooLarge
)

// WorkDigest is the per-item result carried in a report.
type WorkDigest struct {
	Service       ServiceID
	CodeHash      ids.ID
	PayloadHash   ids.ID
	GasAccumulate Gas
	Error         WorkError
	Output        []byte
	GasUsed       Gas
}

// OK reports whether the digest carries a successful output.
func (w *WorkDigest) OK() bool {
	return w.Error == WorkOK
}

func (w *WorkDigest) EncodeTo(e *codec.Encoder) {
	e.Uint32(uint32(w.Service))
	e.Raw(w.CodeHash[:])
	e.Raw(w.PayloadHash[:])
	e.Uint64(uint64(w.GasAccumulate))
	e.Discriminant(uint8(w.Error))
	if w.Error == WorkOK {
		e.Blob(w.Output)
	}
	e.Uint64(uint64(w.GasUsed))
}

func (w *WorkDigest) DecodeFrom(d *codec.Decoder) {
	w.Service = ServiceID(d.Uint32())
	copy(w.CodeHash[:], d.Raw(32))
	copy(w.PayloadHash[:], d.Raw(32))
	w.GasAccumulate = Gas(d.Uint64())
	w.Error = WorkError(d.Discriminant(uint8(WorkCodeTooLarge) + 1))
	if w.Error == WorkOK {
		w.Output = d.Blob()
	} else {
		w.Output = nil
	}
	w.GasUsed = Gas(d.Uint64())
}

// WorkReport is a guarantor's claim about a refined package.
type WorkReport struct {
	Spec           PackageSpec
	Context        RefinementContext
	Core           CoreID
	AuthorizerHash ids.ID
	AuthGasUsed    Gas
	Trace          []byte
	SegmentRoots   map[ids.ID]ids.ID
	Digests        []WorkDigest
}

func (r *WorkReport) EncodeTo(e *codec.Encoder) {
	r.Spec.EncodeTo(e)
	r.Context.EncodeTo(e)
	e.Uint16(uint16(r.Core))
	e.Raw(r.AuthorizerHash[:])
	e.Uint64(uint64(r.AuthGasUsed))
	e.Blob(r.Trace)
	encodeIDMap(e, r.SegmentRoots)
	e.Length(len(r.Digests))
	for i := range r.Digests {
		r.Digests[i].EncodeTo(e)
	}
}

func (r *WorkReport) DecodeFrom(d *codec.Decoder) {
	r.Spec.DecodeFrom(d)
	r.Context.DecodeFrom(d)
	r.Core = CoreID(d.Uint16())
	copy(r.AuthorizerHash[:], d.Raw(32))
	r.AuthGasUsed = Gas(d.Uint64())
	r.Trace = d.Blob()
	r.SegmentRoots = decodeIDMap(d)
	n := d.Length()
	r.Digests = codec.SliceOf[WorkDigest](n)
	for i := range r.Digests {
		r.Digests[i].DecodeFrom(d)
	}
}

// Clone returns a deep copy of the report.
func (r *WorkReport) Clone() WorkReport {
	out := *r
	out.Trace = append([]byte(nil), r.Trace...)
	out.SegmentRoots = make(map[ids.ID]ids.ID, len(r.SegmentRoots))
	for k, v := range r.SegmentRoots {
		out.SegmentRoots[k] = v
	}
	out.Digests = make([]WorkDigest, len(r.Digests))
	copy(out.Digests, r.Digests)
	for i := range out.Digests {
		out.Digests[i].Output = append([]byte(nil), r.Digests[i].Output...)
	}
	out.Context.Prerequisites = append([]ids.ID(nil), r.Context.Prerequisites...)
	return out
}
