// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"bytes"
	"sort"

	"github.com/luxfi/ids"
	"golang.org/x/exp/slices"

	"github.com/luxfi/jam/codec"
	"github.com/luxfi/jam/keys"
	"github.com/luxfi/jam/utils/set"
)

// AlwaysAccess grants a service accumulation gas every block whether or
// not it produced reports.
type AlwaysAccess struct {
	Service ServiceID
	Gas     Gas
}

// PrivilegedState is χ: the services holding protocol powers.
type PrivilegedState struct {
	Manager   ServiceID
	Assigners []ServiceID // one per core
	Delegator ServiceID
	Registrar ServiceID
	Always    []AlwaysAccess
}

// Clone returns a deep copy.
func (p *PrivilegedState) Clone() PrivilegedState {
	out := *p
	out.Assigners = slices.Clone(p.Assigners)
	out.Always = slices.Clone(p.Always)
	return out
}

func (p *PrivilegedState) EncodeTo(e *codec.Encoder) {
	e.Uint32(uint32(p.Manager))
	e.Length(len(p.Assigners))
	for _, a := range p.Assigners {
		e.Uint32(uint32(a))
	}
	e.Uint32(uint32(p.Delegator))
	e.Uint32(uint32(p.Registrar))
	e.Length(len(p.Always))
	for _, a := range p.Always {
		e.Uint32(uint32(a.Service))
		e.Uint64(uint64(a.Gas))
	}
}

func (p *PrivilegedState) DecodeFrom(d *codec.Decoder) {
	p.Manager = ServiceID(d.Uint32())
	n := d.Length()
	p.Assigners = codec.SliceOf[ServiceID](n)
	for i := range p.Assigners {
		p.Assigners[i] = ServiceID(d.Uint32())
	}
	p.Delegator = ServiceID(d.Uint32())
	p.Registrar = ServiceID(d.Uint32())
	n = d.Length()
	p.Always = codec.SliceOf[AlwaysAccess](n)
	for i := range p.Always {
		p.Always[i].Service = ServiceID(d.Uint32())
		p.Always[i].Gas = Gas(d.Uint64())
	}
}

// JudgmentState is ψ: the dispute verdict record.
type JudgmentState struct {
	Good      set.Set[ids.ID]
	Bad       set.Set[ids.ID]
	Wonky     set.Set[ids.ID]
	Offenders set.Set[keys.Ed25519Key]
}

// NewJudgmentState returns empty sets.
func NewJudgmentState() JudgmentState {
	return JudgmentState{
		Good:      set.Set[ids.ID]{},
		Bad:       set.Set[ids.ID]{},
		Wonky:     set.Set[ids.ID]{},
		Offenders: set.Set[keys.Ed25519Key]{},
	}
}

// Judged reports whether a report hash already has a verdict.
func (j *JudgmentState) Judged(h ids.ID) bool {
	return j.Good.Contains(h) || j.Bad.Contains(h) || j.Wonky.Contains(h)
}

// Clone returns a deep copy.
func (j *JudgmentState) Clone() JudgmentState {
	return JudgmentState{
		Good:      j.Good.Clone(),
		Bad:       j.Bad.Clone(),
		Wonky:     j.Wonky.Clone(),
		Offenders: j.Offenders.Clone(),
	}
}

func (j *JudgmentState) EncodeTo(e *codec.Encoder) {
	encodeIDSet(e, j.Good)
	encodeIDSet(e, j.Bad)
	encodeIDSet(e, j.Wonky)
	ks := j.Offenders.List()
	sort.Slice(ks, func(a, b int) bool {
		return bytes.Compare(ks[a][:], ks[b][:]) < 0
	})
	e.Length(len(ks))
	for _, k := range ks {
		e.Raw(k[:])
	}
}

func (j *JudgmentState) DecodeFrom(d *codec.Decoder) {
	j.Good = decodeIDSet(d)
	j.Bad = decodeIDSet(d)
	j.Wonky = decodeIDSet(d)
	n := d.Length()
	j.Offenders = set.NewSet[keys.Ed25519Key](n)
	for i := 0; i < n; i++ {
		var k keys.Ed25519Key
		copy(k[:], d.Raw(keys.Ed25519KeyLen))
		j.Offenders.Add(k)
	}
}
