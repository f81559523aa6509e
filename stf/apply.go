// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package stf implements the block state-transition function: a single
// Apply composing the sub-transitions in their fixed dependency order.
// Every sub-step operates on a scratch clone; a failure at any point
// returns the typed error and leaves the prior state untouched.
package stf

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/jam/accumulate"
	"github.com/luxfi/jam/block"
	"github.com/luxfi/jam/config"
	"github.com/luxfi/jam/hashing"
	"github.com/luxfi/jam/keys"
	"github.com/luxfi/jam/safrole"
	"github.com/luxfi/jam/state"
)

// Context carries the injected collaborators of the transition: the
// chain constants, the hash capabilities and the proof-system delegates.
// A nil WallTime disables the wall-clock bound, which replay and test
// harnesses rely on.
type Context struct {
	Params   config.Params
	Hasher   *hashing.Hasher
	Ring     keys.RingVerifier
	Seal     keys.SealVerifier
	WallTime func() uint64
}

// Apply transitions [prev] by [b]. On success the returned state is a
// fresh value; [prev] is never mutated either way.
func (c *Context) Apply(prev *state.State, b *block.Block) (*state.State, error) {
	if err := c.validateHeaderShape(prev, b); err != nil {
		return nil, err
	}

	st := prev.Clone()
	prevSlot := st.Timeslot
	prevRoot := prev.Root(c.Hasher)
	st.Timeslot = b.Header.Timeslot

	// β†: open this block's history entry before any effects apply.
	if err := c.pushRecent(st, prevRoot, b); err != nil {
		return nil, err
	}

	// η', κ', λ', γ.pending: epoch rotation and marker validation.
	if err := c.rotateOnEpochChange(st, prevSlot, b); err != nil {
		return nil, err
	}

	// Seal and entropy accumulation against the rotated keys.
	if err := c.verifySealAndEntropy(st, b); err != nil {
		return nil, err
	}

	// ψ': disputes, then drop freshly condemned reports.
	if err := c.applyDisputes(st, &b.Extrinsic.Disputes); err != nil {
		return nil, err
	}
	c.clearDisputedReports(st)

	// ρ‡: availability, releasing cores and collecting A*.
	available, err := c.applyAssurances(st, b.Extrinsic.Assurances, b.Header.ParentHash)
	if err != nil {
		return nil, err
	}

	// ρ': new guarantees onto the freed cores.
	reported, err := c.applyGuarantees(st, b.Extrinsic.Guarantees)
	if err != nil {
		return nil, err
	}

	// Accumulation of the available set.
	accRes := accumulate.Execute(c.Params, c.Hasher, st, available, st.Timeslot)
	st.Ready = accRes.Ready
	st.LastOutputs = accRes.Outputs
	st.Accumulated = append(st.Accumulated, accRes.Accumulated)
	if depth := int(c.Params.EpochLength); len(st.Accumulated) > depth {
		st.Accumulated = st.Accumulated[len(st.Accumulated)-depth:]
	}

	// δ': preimage integration.
	if err := c.applyPreimages(st, b.Extrinsic.Preimages, b.Header.AuthorIndex); err != nil {
		return nil, err
	}

	// α': authorizer rotation.
	c.rotateAuthorizations(st)

	// γ': ticket admission.
	tickets, err := c.applyTickets(st, b.Extrinsic.Tickets)
	if err != nil {
		return nil, err
	}

	// π': statistics.
	c.applyStatistics(st, b, tickets, available)

	// β': complete the history entry with this block's reported packages.
	c.finalizeRecent(st, reported)

	return st, nil
}

// applyTickets verifies and merges the extrinsic's tickets into the
// accumulator.
func (c *Context) applyTickets(st *state.State, envelopes []block.TicketEnvelope) (int, error) {
	tickets, err := safrole.VerifyTickets(c.Params, &st.Safrole, st.Entropy[2], st.Timeslot, envelopes, c.Ring)
	if err != nil {
		return 0, errCode(ticketCode(err), "%v", err)
	}
	safrole.MergeAccumulator(c.Params, &st.Safrole, tickets)
	return len(tickets), nil
}

func ticketCode(err error) Code {
	switch err {
	case safrole.ErrUnexpectedTicket:
		return CodeUnexpectedTicket
	case safrole.ErrBadTicketAttempt:
		return CodeBadTicketAttempt
	case safrole.ErrBadTicketProof:
		return CodeBadTicketProof
	case safrole.ErrBadTicketOrder:
		return CodeBadTicketOrder
	case safrole.ErrDuplicateTicket:
		return CodeDuplicateTicket
	default:
		return CodeBadExtrinsic
	}
}

// applyStatistics tallies the block's activity: the author's production,
// and per-core gas and report counts for the newly available set.
func (c *Context) applyStatistics(st *state.State, b *block.Block, tickets int, available []state.WorkReport) {
	if int(b.Header.AuthorIndex) < len(st.Statistics.Current) {
		vs := &st.Statistics.Current[b.Header.AuthorIndex]
		vs.Blocks++
		vs.Tickets += uint32(tickets)
	}
	for i := range available {
		r := &available[i]
		if int(r.Core) >= len(st.Statistics.Cores) {
			continue
		}
		cs := &st.Statistics.Cores[r.Core]
		cs.Reports++
		for j := range r.Digests {
			cs.GasUsed += uint64(r.Digests[j].GasUsed)
		}
	}
}

// finalizeRecent records the packages reported this block in the β entry
// opened by pushRecent.
func (c *Context) finalizeRecent(st *state.State, reported []ids.ID) {
	latest := st.Recent.Latest()
	if latest == nil {
		return
	}
	for _, h := range reported {
		latest.Reported.Add(h)
	}
}
