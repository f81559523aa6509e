// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package safrole

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/luxfi/jam/block"
	"github.com/luxfi/jam/config"
	"github.com/luxfi/jam/keys/keystest"
	"github.com/luxfi/jam/state"
)

func testParams() config.Params {
	return config.Tiny()
}

func envelope(seed byte, attempt uint8) (block.TicketEnvelope, ids.ID) {
	proof, id := keystest.Ticket(seed)
	return block.TicketEnvelope{Attempt: attempt, Proof: proof}, id
}

func sortedEnvelopes(attempt uint8, seeds ...byte) ([]block.TicketEnvelope, []ids.ID) {
	type pair struct {
		env block.TicketEnvelope
		id  ids.ID
	}
	pairs := make([]pair, len(seeds))
	for i, s := range seeds {
		env, id := envelope(s, attempt)
		pairs[i] = pair{env, id}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].id[:], pairs[j].id[:]) < 0
	})
	envs := make([]block.TicketEnvelope, len(pairs))
	idList := make([]ids.ID, len(pairs))
	for i, p := range pairs {
		envs[i] = p.env
		idList[i] = p.id
	}
	return envs, idList
}

func TestVerifyTicketsHappyPath(t *testing.T) {
	require := require.New(t)

	p := testParams()
	γ := &state.SafroleState{}
	envs, idList := sortedEnvelopes(0, 1, 2, 3)

	got, err := VerifyTickets(p, γ, ids.Empty, 0, envs, &keystest.Verifier{})
	require.NoError(err)
	require.Len(got, 3)
	for i := range got {
		require.Equal(idList[i], got[i].ID)
	}
}

func TestVerifyTicketsWindow(t *testing.T) {
	require := require.New(t)

	p := testParams()
	γ := &state.SafroleState{}
	envs, _ := sortedEnvelopes(0, 1)

	// The last open phase admits; the first closed phase rejects.
	lastOpen := state.TimeSlot(p.EpochLength - p.TicketTail - 1)
	_, err := VerifyTickets(p, γ, ids.Empty, lastOpen, envs, &keystest.Verifier{})
	require.NoError(err)

	_, err = VerifyTickets(p, γ, ids.Empty, lastOpen+1, envs, &keystest.Verifier{})
	require.ErrorIs(err, ErrUnexpectedTicket)
}

func TestVerifyTicketsRejections(t *testing.T) {
	require := require.New(t)

	p := testParams()
	γ := &state.SafroleState{}
	v := &keystest.Verifier{}

	// Attempt out of range.
	envs, _ := sortedEnvelopes(p.TicketAttempts, 1)
	_, err := VerifyTickets(p, γ, ids.Empty, 0, envs, v)
	require.ErrorIs(err, ErrBadTicketAttempt)

	// Invalid proof.
	bad, _ := envelope(1, 0)
	bad.Proof[0] = keystest.BadProofMarker
	_, err = VerifyTickets(p, γ, ids.Empty, 0, []block.TicketEnvelope{bad}, v)
	require.ErrorIs(err, ErrBadTicketProof)

	// Out of order.
	envs, _ = sortedEnvelopes(0, 1, 2)
	_, err = VerifyTickets(p, γ, ids.Empty, 0, []block.TicketEnvelope{envs[1], envs[0]}, v)
	require.ErrorIs(err, ErrBadTicketOrder)

	// Duplicate within the extrinsic.
	_, err = VerifyTickets(p, γ, ids.Empty, 0, []block.TicketEnvelope{envs[0], envs[0]}, v)
	require.ErrorIs(err, ErrBadTicketOrder)

	// Duplicate against the accumulator.
	envs, idList := sortedEnvelopes(0, 7)
	γ.Accumulator = []state.Ticket{{ID: idList[0]}}
	_, err = VerifyTickets(p, γ, ids.Empty, 0, envs, v)
	require.ErrorIs(err, ErrDuplicateTicket)

	// Too many tickets at once.
	envs, _ = sortedEnvelopes(0, 1, 2, 3, 4)
	_, err = VerifyTickets(p, γ, ids.Empty, 0, envs, v)
	require.ErrorIs(err, ErrUnexpectedTicket)
}

func TestMergeAccumulatorTruncates(t *testing.T) {
	require := require.New(t)

	p := testParams()
	γ := &state.SafroleState{}
	var all []state.Ticket
	for i := byte(0); i < byte(p.EpochLength)+4; i++ {
		_, id := keystest.Ticket(i)
		all = append(all, state.Ticket{ID: id})
	}
	MergeAccumulator(p, γ, all)
	require.Len(γ.Accumulator, int(p.EpochLength))
	for i := 1; i < len(γ.Accumulator); i++ {
		require.True(γ.Accumulator[i-1].Less(γ.Accumulator[i]))
	}
}

func TestRotateEpochTicketMode(t *testing.T) {
	require := require.New(t)

	p := testParams()
	γ := &state.SafroleState{}
	var all []state.Ticket
	for i := byte(0); i < byte(p.EpochLength); i++ {
		_, id := keystest.Ticket(i)
		all = append(all, state.Ticket{ID: id})
	}
	MergeAccumulator(p, γ, all)
	sorted := append([]state.Ticket(nil), γ.Accumulator...)

	RotateEpoch(p, γ, nil)
	require.True(γ.SealKeys.TicketMode())
	require.Len(γ.SealKeys.Tickets, int(p.EpochLength))
	require.Equal(sorted, γ.SealKeys.Tickets)
	require.Empty(γ.Accumulator)
}

func TestRotateEpochFallback(t *testing.T) {
	require := require.New(t)

	p := testParams()
	γ := &state.SafroleState{}
	vs := make(state.ValidatorSet, p.Validators)
	for i := range vs {
		vs[i].Bandersnatch[0] = byte(i + 1)
	}

	RotateEpoch(p, γ, vs)
	require.False(γ.SealKeys.TicketMode())
	require.Len(γ.SealKeys.Fallback, int(p.EpochLength))
	for i, k := range γ.SealKeys.Fallback {
		require.Equal(vs[i%len(vs)].Bandersnatch, k)
	}
}

func TestSealKeyFor(t *testing.T) {
	require := require.New(t)

	p := testParams()
	γ := &state.SafroleState{}
	vs := make(state.ValidatorSet, 2)
	vs[0].Bandersnatch[0] = 1
	vs[1].Bandersnatch[0] = 2
	RotateEpoch(p, γ, vs)

	slot := state.TimeSlot(p.EpochLength + 3) // phase 3
	tk, fb := SealKeyFor(p, γ, slot)
	require.Nil(tk)
	require.NotNil(fb)
	require.Equal(vs[1].Bandersnatch, *fb)
	require.Equal("jam_fallback_seal", SealContext(γ))
}
