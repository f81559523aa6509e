// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"bytes"
	"sort"

	"github.com/luxfi/ids"
	"golang.org/x/exp/maps"

	"github.com/luxfi/jam/codec"
	"github.com/luxfi/jam/keys"
	"github.com/luxfi/jam/mmr"
	"github.com/luxfi/jam/utils/set"
)

func encodeIDMap(e *codec.Encoder, m map[ids.ID]ids.ID) {
	ks := maps.Keys(m)
	sort.Slice(ks, func(i, j int) bool {
		return bytes.Compare(ks[i][:], ks[j][:]) < 0
	})
	e.Length(len(ks))
	for _, k := range ks {
		v := m[k]
		e.Raw(k[:])
		e.Raw(v[:])
	}
}

func decodeIDMap(d *codec.Decoder) map[ids.ID]ids.ID {
	n := d.Length()
	m := make(map[ids.ID]ids.ID, n)
	for i := 0; i < n; i++ {
		var k, v ids.ID
		copy(k[:], d.Raw(32))
		copy(v[:], d.Raw(32))
		m[k] = v
	}
	return m
}

func encodeIDSet(e *codec.Encoder, s set.Set[ids.ID]) {
	ks := s.List()
	sort.Slice(ks, func(i, j int) bool {
		return bytes.Compare(ks[i][:], ks[j][:]) < 0
	})
	e.Length(len(ks))
	for _, k := range ks {
		e.Raw(k[:])
	}
}

func decodeIDSet(d *codec.Decoder) set.Set[ids.ID] {
	n := d.Length()
	s := set.NewSet[ids.ID](n)
	for i := 0; i < n; i++ {
		var k ids.ID
		copy(k[:], d.Raw(32))
		s.Add(k)
	}
	return s
}

// RecentBlock is one entry of β.
type RecentBlock struct {
	HeaderHash       ids.ID
	StateRoot        ids.ID
	AccumulationRoot ids.ID
	Reported         set.Set[ids.ID]
	Seal             [keys.BandersnatchSigLen]byte
}

func (b *RecentBlock) EncodeTo(e *codec.Encoder) {
	e.Raw(b.HeaderHash[:])
	e.Raw(b.StateRoot[:])
	e.Raw(b.AccumulationRoot[:])
	encodeIDSet(e, b.Reported)
	e.Raw(b.Seal[:])
}

func (b *RecentBlock) DecodeFrom(d *codec.Decoder) {
	copy(b.HeaderHash[:], d.Raw(32))
	copy(b.StateRoot[:], d.Raw(32))
	copy(b.AccumulationRoot[:], d.Raw(32))
	b.Reported = decodeIDSet(d)
	copy(b.Seal[:], d.Raw(keys.BandersnatchSigLen))
}

// RecentHistory is β: the bounded list of recent blocks plus the belt of
// accumulation outputs whose super-peak each entry commits to.
type RecentHistory struct {
	Blocks []RecentBlock
	Belt   mmr.Belt
}

// Push appends an entry, dropping the oldest beyond [depth].
func (h *RecentHistory) Push(b RecentBlock, depth int) {
	h.Blocks = append(h.Blocks, b)
	if len(h.Blocks) > depth {
		h.Blocks = h.Blocks[len(h.Blocks)-depth:]
	}
}

// Contains reports whether a header hash is in the recent list.
func (h *RecentHistory) Contains(headerHash ids.ID) bool {
	for i := range h.Blocks {
		if h.Blocks[i].HeaderHash == headerHash {
			return true
		}
	}
	return false
}

// Latest returns the most recent entry, or nil on a fresh chain.
func (h *RecentHistory) Latest() *RecentBlock {
	if len(h.Blocks) == 0 {
		return nil
	}
	return &h.Blocks[len(h.Blocks)-1]
}

// Clone returns a deep copy.
func (h *RecentHistory) Clone() RecentHistory {
	out := RecentHistory{
		Blocks: make([]RecentBlock, len(h.Blocks)),
		Belt:   h.Belt.Clone(),
	}
	copy(out.Blocks, h.Blocks)
	for i := range out.Blocks {
		out.Blocks[i].Reported = h.Blocks[i].Reported.Clone()
	}
	return out
}

func (h *RecentHistory) EncodeTo(e *codec.Encoder) {
	e.Length(len(h.Blocks))
	for i := range h.Blocks {
		h.Blocks[i].EncodeTo(e)
	}
	h.Belt.Range.EncodeTo(e)
}

func (h *RecentHistory) DecodeFrom(d *codec.Decoder) {
	n := d.Length()
	h.Blocks = codec.SliceOf[RecentBlock](n)
	for i := range h.Blocks {
		h.Blocks[i].DecodeFrom(d)
	}
	h.Belt.Range.DecodeFrom(d)
}

// PendingReport is ρ[core]: a guaranteed report awaiting availability.
type PendingReport struct {
	Report     WorkReport
	AdmittedAt TimeSlot
}

// TimedOut reports whether the report has waited past [maxAge] slots.
func (p *PendingReport) TimedOut(now TimeSlot, maxAge uint32) bool {
	return now >= p.AdmittedAt+TimeSlot(maxAge)
}

func (p *PendingReport) EncodeTo(e *codec.Encoder) {
	p.Report.EncodeTo(e)
	e.Uint32(uint32(p.AdmittedAt))
}

func (p *PendingReport) DecodeFrom(d *codec.Decoder) {
	p.Report.DecodeFrom(d)
	p.AdmittedAt = TimeSlot(d.Uint32())
}

// ReadyRecord is one entry of ω: an available report still waiting on
// prerequisite packages.
type ReadyRecord struct {
	Report WorkReport
	Deps   set.Set[ids.ID]
}

func (r *ReadyRecord) EncodeTo(e *codec.Encoder) {
	r.Report.EncodeTo(e)
	encodeIDSet(e, r.Deps)
}

func (r *ReadyRecord) DecodeFrom(d *codec.Decoder) {
	r.Report.DecodeFrom(d)
	r.Deps = decodeIDSet(d)
}

// ServiceOutput is one θ entry: the accumulation output hash a service
// produced this block.
type ServiceOutput struct {
	Service ServiceID
	Output  ids.ID
}

func (o *ServiceOutput) EncodeTo(e *codec.Encoder) {
	e.Uint32(uint32(o.Service))
	e.Raw(o.Output[:])
}

func (o *ServiceOutput) DecodeFrom(d *codec.Decoder) {
	o.Service = ServiceID(d.Uint32())
	copy(o.Output[:], d.Raw(32))
}
