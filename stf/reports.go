// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stf

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/jam/block"
	"github.com/luxfi/jam/codec"
	"github.com/luxfi/jam/hashing"
	"github.com/luxfi/jam/keys"
	"github.com/luxfi/jam/state"
)

func (c *Context) reportHash(r *state.WorkReport) ids.ID {
	return c.Hasher.H(codec.Encode(r))
}

// applyAssurances tallies availability bitfields, removes reports that
// became available or timed out, and returns the available ones in core
// order.
func (c *Context) applyAssurances(st *state.State, assurances []block.Assurance, parentHash ids.ID) ([]state.WorkReport, error) {
	counts := make([]int, len(st.Reports))
	var prevIndex *state.ValidatorIndex
	for i := range assurances {
		a := &assurances[i]
		if a.Anchor != parentHash {
			return nil, errCode(CodeBadAssurance, "anchor is not the parent")
		}
		if int(a.Index) >= len(st.Current) {
			return nil, errCode(CodeBadAssurance, "validator index %d out of range", a.Index)
		}
		if prevIndex != nil && a.Index <= *prevIndex {
			return nil, errCode(CodeBadAssurance, "assurances not sorted by validator")
		}
		prevIndex = &assurances[i].Index
		if len(a.Bitfield) != len(st.Reports) {
			return nil, errCode(CodeBadAssurance, "bitfield length %d", len(a.Bitfield))
		}

		e := codec.NewEncoder()
		e.Raw(a.Anchor[:])
		e.BitsPacked(a.Bitfield)
		msg := hashing.SigningMessage(hashing.DomainAvailable, e.Bytes())
		if !keys.VerifyEd25519(st.Current[a.Index].Ed25519, msg, a.Signature[:]) {
			return nil, errCode(CodeBadAssurance, "signature of validator %d", a.Index)
		}

		for core, set := range a.Bitfield {
			if !set {
				continue
			}
			if st.Reports[core] == nil {
				return nil, errCode(CodeBadAssurance, "assurance for idle core %d", core)
			}
			counts[core]++
		}
		st.Statistics.Current[a.Index].Assurances++
	}

	quorum := c.Params.AvailabilityQuorum()
	var available []state.WorkReport
	for core, pending := range st.Reports {
		if pending == nil {
			continue
		}
		switch {
		case counts[core] >= quorum:
			available = append(available, pending.Report)
			st.Reports[core] = nil
		case pending.TimedOut(st.Timeslot, c.Params.MaxReportAge):
			st.Reports[core] = nil
		}
	}
	return available, nil
}

// applyGuarantees admits new reports to free cores, consuming the
// authorizer each report used.
func (c *Context) applyGuarantees(st *state.State, guarantees []block.Guarantee) (set []ids.ID, err error) {
	var prevCore *state.CoreID
	for i := range guarantees {
		g := &guarantees[i]
		r := &g.Report
		core := r.Core
		if int(core) >= len(st.Reports) {
			return nil, errCode(CodeBadGuarantee, "core %d out of range", core)
		}
		if prevCore != nil && core <= *prevCore {
			return nil, errCode(CodeBadGuarantee, "guarantees not sorted by core")
		}
		prevCore = &guarantees[i].Report.Core
		if st.Reports[core] != nil {
			return nil, errCode(CodeBadGuarantee, "core %d is occupied", core)
		}
		if uint32(len(r.Digests)) > c.Params.MaxPackageItems {
			return nil, errCode(CodeBadGuarantee, "digest count %d", len(r.Digests))
		}
		if uint32(len(r.Context.Prerequisites)) > c.Params.MaxDependencies {
			return nil, errCode(CodeBadGuarantee, "prerequisite count %d", len(r.Context.Prerequisites))
		}
		if uint64(len(r.Trace)) > c.Params.MaxWorkReportOutput {
			return nil, errCode(CodeBadGuarantee, "trace of %d octets", len(r.Trace))
		}
		if g.Slot > st.Timeslot {
			return nil, errCode(CodeBadGuarantee, "guarantee slot in the future")
		}
		if !st.Recent.Contains(r.Context.Anchor) {
			return nil, errCode(CodeBadGuarantee, "anchor not recent")
		}
		if r.Context.LookupSlot+state.TimeSlot(c.Params.LookupWindow) < st.Timeslot {
			return nil, errCode(CodeBadGuarantee, "lookup anchor too old")
		}

		var gasTotal state.Gas
		for j := range r.Digests {
			d := &r.Digests[j]
			if svc := st.Services[d.Service]; svc != nil && d.GasAccumulate < svc.MinAccGas {
				return nil, errCode(CodeBadGuarantee, "digest gas below service minimum")
			}
			gasTotal += d.GasAccumulate
		}
		if uint64(gasTotal) > c.Params.GasAccumulate*uint64(c.Params.MaxPackageItems) {
			return nil, errCode(CodeBadGuarantee, "report gas allowance exceeded")
		}

		// The named authorizer must be in the core's pool; admitting the
		// report consumes it.
		poolIdx := -1
		for j, auth := range st.AuthPools[core] {
			if auth == r.AuthorizerHash {
				poolIdx = j
				break
			}
		}
		if poolIdx < 0 {
			return nil, errCode(CodeBadGuarantee, "authorizer not in core pool")
		}

		if len(g.Credentials) < 2 || len(g.Credentials) > 3 {
			return nil, errCode(CodeBadGuarantee, "credential count %d", len(g.Credentials))
		}
		rh := c.reportHash(r)
		msg := hashing.SigningMessage(hashing.DomainGuarantee, rh[:])
		var prevIdx *state.ValidatorIndex
		for j := range g.Credentials {
			cred := &g.Credentials[j]
			if int(cred.Index) >= len(st.Current) {
				return nil, errCode(CodeBadGuarantee, "credential index %d out of range", cred.Index)
			}
			if prevIdx != nil && cred.Index <= *prevIdx {
				return nil, errCode(CodeBadGuarantee, "credentials not sorted")
			}
			prevIdx = &g.Credentials[j].Index
			if !keys.VerifyEd25519(st.Current[cred.Index].Ed25519, msg, cred.Signature[:]) {
				return nil, errCode(CodeBadGuarantee, "credential signature %d", cred.Index)
			}
			st.Statistics.Current[cred.Index].Guarantees++
		}

		st.AuthPools[core] = append(st.AuthPools[core][:poolIdx], st.AuthPools[core][poolIdx+1:]...)
		st.Reports[core] = &state.PendingReport{
			Report:     r.Clone(),
			AdmittedAt: st.Timeslot,
		}
		set = append(set, r.Spec.Hash)
	}
	return set, nil
}

// rotateAuthorizations advances each core's authorizer pool: the queued
// slot for this timeslot joins the pool, capped to the most recent
// entries.
func (c *Context) rotateAuthorizations(st *state.State) {
	for core := range st.AuthPools {
		queue := st.AuthQueues[core]
		if len(queue) > 0 {
			next := queue[int(uint32(st.Timeslot)%c.Params.AuthQueueSize)%len(queue)]
			st.AuthPools[core] = append(st.AuthPools[core], next)
		}
		if over := len(st.AuthPools[core]) - int(c.Params.AuthPoolSize); over > 0 {
			st.AuthPools[core] = st.AuthPools[core][over:]
		}
	}
}
