// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"sort"

	"github.com/luxfi/ids"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/luxfi/jam/codec"
	"github.com/luxfi/jam/hashing"
	"github.com/luxfi/jam/utils/set"
)

// AuthPool is α[core]: the authorizer hashes currently usable on a core,
// newest last, capped at the pool size.
type AuthPool []ids.ID

// AuthQueue is φ[core]: the rotation queue feeding the pool.
type AuthQueue []ids.ID

// State is the full chain state σ. Field order is consensus-critical: the
// state root hashes the canonical serialization of the fields in exactly
// this order.
type State struct {
	AuthPools   []AuthPool                 // α
	Recent      RecentHistory              // β
	Safrole     SafroleState               // γ
	Services    map[ServiceID]*ServiceAccount // δ
	Entropy     EntropyPool                // η
	Staging     ValidatorSet               // ι
	Current     ValidatorSet               // κ
	Previous    ValidatorSet               // λ
	Reports     []*PendingReport           // ρ, indexed by core, nil = free
	Timeslot    TimeSlot                   // τ
	AuthQueues  []AuthQueue                // φ
	Privileges  PrivilegedState            // χ
	Statistics  Statistics                 // π
	Ready       []ReadyRecord              // ω
	Accumulated []set.Set[ids.ID]          // ξ, per-block accumulated package hashes, oldest first
	LastOutputs []ServiceOutput            // θ, the previous block's accumulation outputs
	Judgments   JudgmentState              // ψ
}

// New returns an empty state shaped for [cores] cores.
func New(cores int) *State {
	s := &State{
		AuthPools:  make([]AuthPool, cores),
		Services:   map[ServiceID]*ServiceAccount{},
		Reports:    make([]*PendingReport, cores),
		AuthQueues: make([]AuthQueue, cores),
		Judgments:  NewJudgmentState(),
	}
	return s
}

// Clone returns a deep copy the transition may mutate freely.
func (s *State) Clone() *State {
	out := &State{
		AuthPools:   make([]AuthPool, len(s.AuthPools)),
		Recent:      s.Recent.Clone(),
		Safrole:     s.Safrole.Clone(),
		Services:    make(map[ServiceID]*ServiceAccount, len(s.Services)),
		Entropy:     s.Entropy,
		Staging:     s.Staging.Clone(),
		Current:     s.Current.Clone(),
		Previous:    s.Previous.Clone(),
		Reports:     make([]*PendingReport, len(s.Reports)),
		Timeslot:    s.Timeslot,
		AuthQueues:  make([]AuthQueue, len(s.AuthQueues)),
		Privileges:  s.Privileges.Clone(),
		Statistics:  s.Statistics.Clone(),
		Ready:       make([]ReadyRecord, len(s.Ready)),
		Accumulated: make([]set.Set[ids.ID], len(s.Accumulated)),
		LastOutputs: slices.Clone(s.LastOutputs),
		Judgments:   s.Judgments.Clone(),
	}
	for i, p := range s.AuthPools {
		out.AuthPools[i] = slices.Clone(p)
	}
	for k, v := range s.Services {
		out.Services[k] = v.Clone()
	}
	for i, r := range s.Reports {
		if r != nil {
			cl := PendingReport{Report: r.Report.Clone(), AdmittedAt: r.AdmittedAt}
			out.Reports[i] = &cl
		}
	}
	for i, q := range s.AuthQueues {
		out.AuthQueues[i] = slices.Clone(q)
	}
	for i, r := range s.Ready {
		out.Ready[i] = ReadyRecord{Report: r.Report.Clone(), Deps: r.Deps.Clone()}
	}
	for i, a := range s.Accumulated {
		out.Accumulated[i] = a.Clone()
	}
	return out
}

// AccumulatedContains reports whether a package hash was accumulated in
// any retained block.
func (s *State) AccumulatedContains(h ids.ID) bool {
	for _, blockSet := range s.Accumulated {
		if blockSet.Contains(h) {
			return true
		}
	}
	return false
}

// EncodeTo writes the canonical serialization in declaration order.
func (s *State) EncodeTo(e *codec.Encoder) {
	e.Length(len(s.AuthPools))
	for _, p := range s.AuthPools {
		e.Length(len(p))
		for i := range p {
			e.Raw(p[i][:])
		}
	}
	s.Recent.EncodeTo(e)
	s.Safrole.EncodeTo(e)

	sids := maps.Keys(s.Services)
	sort.Slice(sids, func(i, j int) bool { return sids[i] < sids[j] })
	e.Length(len(sids))
	for _, sid := range sids {
		e.Uint32(uint32(sid))
		s.Services[sid].EncodeTo(e)
	}

	s.Entropy.EncodeTo(e)
	s.Staging.EncodeTo(e)
	s.Current.EncodeTo(e)
	s.Previous.EncodeTo(e)

	e.Length(len(s.Reports))
	for _, r := range s.Reports {
		if e.Optional(r != nil) {
			r.EncodeTo(e)
		}
	}

	e.Uint32(uint32(s.Timeslot))

	e.Length(len(s.AuthQueues))
	for _, q := range s.AuthQueues {
		e.Length(len(q))
		for i := range q {
			e.Raw(q[i][:])
		}
	}

	s.Privileges.EncodeTo(e)
	s.Statistics.EncodeTo(e)

	e.Length(len(s.Ready))
	for i := range s.Ready {
		s.Ready[i].EncodeTo(e)
	}

	e.Length(len(s.Accumulated))
	for _, a := range s.Accumulated {
		encodeIDSet(e, a)
	}

	e.Length(len(s.LastOutputs))
	for i := range s.LastOutputs {
		s.LastOutputs[i].EncodeTo(e)
	}

	s.Judgments.EncodeTo(e)
}

// DecodeFrom reads the form written by EncodeTo.
func (s *State) DecodeFrom(d *codec.Decoder) {
	n := d.Length()
	s.AuthPools = make([]AuthPool, n)
	for i := range s.AuthPools {
		m := d.Length()
		s.AuthPools[i] = AuthPool(codec.SliceOf[ids.ID](m))
		for j := range s.AuthPools[i] {
			copy(s.AuthPools[i][j][:], d.Raw(32))
		}
	}
	s.Recent.DecodeFrom(d)
	s.Safrole.DecodeFrom(d)

	n = d.Length()
	s.Services = make(map[ServiceID]*ServiceAccount, n)
	for i := 0; i < n; i++ {
		sid := ServiceID(d.Uint32())
		acct := &ServiceAccount{}
		acct.DecodeFrom(d)
		s.Services[sid] = acct
	}

	s.Entropy.DecodeFrom(d)
	s.Staging.DecodeFrom(d)
	s.Current.DecodeFrom(d)
	s.Previous.DecodeFrom(d)

	n = d.Length()
	s.Reports = make([]*PendingReport, n)
	for i := range s.Reports {
		if d.Optional() {
			r := &PendingReport{}
			r.DecodeFrom(d)
			s.Reports[i] = r
		}
	}

	s.Timeslot = TimeSlot(d.Uint32())

	n = d.Length()
	s.AuthQueues = make([]AuthQueue, n)
	for i := range s.AuthQueues {
		m := d.Length()
		s.AuthQueues[i] = AuthQueue(codec.SliceOf[ids.ID](m))
		for j := range s.AuthQueues[i] {
			copy(s.AuthQueues[i][j][:], d.Raw(32))
		}
	}

	s.Privileges.DecodeFrom(d)
	s.Statistics.DecodeFrom(d)

	n = d.Length()
	s.Ready = codec.SliceOf[ReadyRecord](n)
	for i := range s.Ready {
		s.Ready[i].DecodeFrom(d)
	}

	n = d.Length()
	s.Accumulated = codec.SliceOf[set.Set[ids.ID]](n)
	for i := range s.Accumulated {
		s.Accumulated[i] = decodeIDSet(d)
	}

	n = d.Length()
	s.LastOutputs = codec.SliceOf[ServiceOutput](n)
	for i := range s.LastOutputs {
		s.LastOutputs[i].DecodeFrom(d)
	}

	s.Judgments.DecodeFrom(d)
}

// Root returns the state commitment: the hash of the canonical
// serialization.
func (s *State) Root(h *hashing.Hasher) ids.ID {
	return h.H(codec.Encode(s))
}
