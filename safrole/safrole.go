// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package safrole implements ticket admission and the per-epoch sealing
// key table. Tickets are anonymous ring-VRF outputs; an epoch seals with
// its best tickets when enough accumulated, and falls back to cycling the
// validator keys otherwise.
package safrole

import (
	"bytes"
	"errors"
	"sort"

	"github.com/luxfi/ids"

	"github.com/luxfi/jam/block"
	"github.com/luxfi/jam/config"
	"github.com/luxfi/jam/hashing"
	"github.com/luxfi/jam/keys"
	"github.com/luxfi/jam/state"
)

var (
	ErrUnexpectedTicket = errors.New("safrole: ticket outside submission window")
	ErrBadTicketAttempt = errors.New("safrole: attempt out of range")
	ErrBadTicketProof   = errors.New("safrole: ring proof does not verify")
	ErrBadTicketOrder   = errors.New("safrole: tickets not strictly increasing")
	ErrDuplicateTicket  = errors.New("safrole: ticket already accumulated")
)

// VerifyTickets checks an extrinsic's tickets against the current epoch
// root and ticket entropy, returning them in submission order.
func VerifyTickets(
	p config.Params,
	γ *state.SafroleState,
	ticketEntropy ids.ID,
	slot state.TimeSlot,
	envelopes []block.TicketEnvelope,
	ring keys.RingVerifier,
) ([]state.Ticket, error) {
	if len(envelopes) == 0 {
		return nil, nil
	}
	if p.TicketsClosed(uint32(slot)) || uint32(len(envelopes)) > p.MaxTicketsPerExt {
		return nil, ErrUnexpectedTicket
	}
	existing := make(map[ids.ID]struct{}, len(γ.Accumulator))
	for _, t := range γ.Accumulator {
		existing[t.ID] = struct{}{}
	}
	out := make([]state.Ticket, 0, len(envelopes))
	var prev *ids.ID
	for i := range envelopes {
		env := &envelopes[i]
		if env.Attempt >= p.TicketAttempts {
			return nil, ErrBadTicketAttempt
		}
		id, err := ring.VerifyTicket(γ.EpochRoot, ticketEntropy, env.Attempt, env.Proof)
		if err != nil {
			return nil, ErrBadTicketProof
		}
		if prev != nil && bytes.Compare(prev[:], id[:]) >= 0 {
			return nil, ErrBadTicketOrder
		}
		if _, ok := existing[id]; ok {
			return nil, ErrDuplicateTicket
		}
		prev = &id
		out = append(out, state.Ticket{ID: id, Attempt: env.Attempt})
	}
	return out, nil
}

// MergeAccumulator folds verified tickets into the accumulator, keeping
// the best EpochLength entries in identifier order.
func MergeAccumulator(p config.Params, γ *state.SafroleState, tickets []state.Ticket) {
	γ.Accumulator = append(γ.Accumulator, tickets...)
	sort.Slice(γ.Accumulator, func(i, j int) bool {
		return γ.Accumulator[i].Less(γ.Accumulator[j])
	})
	if uint32(len(γ.Accumulator)) > p.EpochLength {
		γ.Accumulator = γ.Accumulator[:p.EpochLength]
	}
}

// RotateEpoch produces the new epoch's sealing keys and resets the
// accumulator. A full accumulator enters ticket mode; otherwise the
// incoming validator set's Bandersnatch keys are cycled to epoch length.
func RotateEpoch(p config.Params, γ *state.SafroleState, incoming state.ValidatorSet) {
	if uint32(len(γ.Accumulator)) >= p.EpochLength {
		γ.SealKeys = state.SealKeys{
			Tickets: append([]state.Ticket(nil), γ.Accumulator[:p.EpochLength]...),
		}
	} else {
		γ.SealKeys = state.SealKeys{Fallback: FallbackKeys(p, incoming)}
	}
	γ.Accumulator = nil
}

// FallbackKeys cycles [vs]'s Bandersnatch keys to epoch length.
func FallbackKeys(p config.Params, vs state.ValidatorSet) []keys.BandersnatchKey {
	out := make([]keys.BandersnatchKey, p.EpochLength)
	if len(vs) == 0 {
		return out
	}
	for i := range out {
		out[i] = vs[i%len(vs)].Bandersnatch
	}
	return out
}

// SealKeyFor returns the expected sealing key material for [slot]: the
// ticket in ticket mode, the Bandersnatch key in fallback mode.
func SealKeyFor(p config.Params, γ *state.SafroleState, slot state.TimeSlot) (*state.Ticket, *keys.BandersnatchKey) {
	phase := p.SlotPhase(uint32(slot))
	if γ.SealKeys.TicketMode() {
		if phase < uint32(len(γ.SealKeys.Tickets)) {
			return &γ.SealKeys.Tickets[phase], nil
		}
		return nil, nil
	}
	if phase < uint32(len(γ.SealKeys.Fallback)) {
		return nil, &γ.SealKeys.Fallback[phase]
	}
	return nil, nil
}

// SealContext returns the signing domain for the epoch's seal mode.
func SealContext(γ *state.SafroleState) string {
	if γ.SealKeys.TicketMode() {
		return hashing.DomainTicketSeal
	}
	return hashing.DomainFallbackSeal
}
