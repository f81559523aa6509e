// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stf

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/luxfi/jam/block"
	"github.com/luxfi/jam/codec"
	"github.com/luxfi/jam/keys/keystest"
	"github.com/luxfi/jam/state"
	"github.com/luxfi/jam/statetest"
)

func newContext(e *statetest.Env) *Context {
	return &Context{
		Params: e.Params,
		Hasher: &e.Hasher,
		Ring:   e.Verifier,
		Seal:   e.Verifier,
	}
}

func TestApplyEmptyBlock(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)
	prev := e.State

	b := e.NextBlock(prev, 1, block.Extrinsic{})
	next, err := c.Apply(prev, b)
	require.NoError(err)

	require.Equal(state.TimeSlot(1), next.Timeslot)
	require.Len(next.Recent.Blocks, 2)
	require.Equal(b.Header.Hash(&e.Hasher), next.Recent.Latest().HeaderHash)
	require.NotEqual(prev.Entropy[0], next.Entropy[0])
	require.Equal(uint32(1), next.Statistics.Current[b.Header.AuthorIndex].Blocks)

	// The prior state is untouched.
	require.Equal(state.TimeSlot(0), prev.Timeslot)
	require.Len(prev.Recent.Blocks, 1)
}

func TestApplyDeterministic(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)
	b := e.NextBlock(e.State, 1, block.Extrinsic{})

	n1, err := c.Apply(e.State, b)
	require.NoError(err)
	n2, err := c.Apply(e.State, b)
	require.NoError(err)
	require.Equal(n1.Root(&e.Hasher), n2.Root(&e.Hasher))
}

func TestHeaderRejections(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	// Timeslot must advance.
	b := e.NextBlock(e.State, 1, block.Extrinsic{})
	b.Header.Timeslot = 0
	_, err := c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodeBadHeader})

	// Parent must be the chain head.
	b = e.NextBlock(e.State, 1, block.Extrinsic{})
	b.Header.ParentHash = ids.ID{0xDD}
	_, err = c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodeBadHeader})

	// The extrinsic commitment must match.
	b = e.NextBlock(e.State, 1, block.Extrinsic{})
	b.Header.ExtrinsicHash = ids.ID{0xEE}
	_, err = c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodeBadHeader})

	// An epoch marker outside a boundary is rejected.
	b = e.NextBlock(e.State, 1, block.Extrinsic{})
	b.Header.EpochMarker = &block.EpochMarker{}
	b.Header.ExtrinsicHash = b.ExtrinsicHash(&e.Hasher)
	_, err = c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodeBadHeader})
}

func TestSealRejections(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	// The wrong author does not hold the slot's fallback key.
	b := e.NextBlock(e.State, 1, block.Extrinsic{})
	b.Header.AuthorIndex = e.AuthorFor(1) + 1
	_, err := c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodeBadSeal})

	// A marked-bad seal signature fails outright.
	b = e.NextBlock(e.State, 1, block.Extrinsic{})
	b.Header.Seal[0] = keystest.BadProofMarker
	_, err = c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodeBadSeal})
}

func TestPreimageHappyPath(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	blob := []byte("data")
	h := e.Hasher.H(blob)
	key := state.PreimageKey{Hash: h, Length: 4}
	e.State.Services[statetest.ServiceID].Requests[key] = state.PreimageRequest{}

	b := e.NextBlock(e.State, 5, block.Extrinsic{
		Preimages: []block.Preimage{{Service: statetest.ServiceID, Blob: blob}},
	})
	next, err := c.Apply(e.State, b)
	require.NoError(err)

	svc := next.Services[statetest.ServiceID]
	require.Equal(blob, svc.Preimages[h])
	require.Equal([]state.TimeSlot{5}, svc.Requests[key].Slots)

	// The prior state kept its unprovided request.
	require.True(e.State.Services[statetest.ServiceID].Requests[key].Requested())
}

func TestPreimageOrderingRejected(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	// Find two blobs whose hashes order opposite to their insertion.
	b1, b2 := []byte("pre-a"), []byte("pre-b")
	h1, h2 := e.Hasher.H(b1), e.Hasher.H(b2)
	if string(h1[:]) < string(h2[:]) {
		b1, b2 = b2, b1
		h1, h2 = h2, h1
	}
	svc := e.State.Services[statetest.ServiceID]
	svc.Requests[state.PreimageKey{Hash: h1, Length: uint32(len(b1))}] = state.PreimageRequest{}
	svc.Requests[state.PreimageKey{Hash: h2, Length: uint32(len(b2))}] = state.PreimageRequest{}
	rootBefore := e.State.Root(&e.Hasher)

	b := e.NextBlock(e.State, 5, block.Extrinsic{
		Preimages: []block.Preimage{
			{Service: statetest.ServiceID, Blob: b1},
			{Service: statetest.ServiceID, Blob: b2},
		},
	})
	_, err := c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodePreimagesNotSorted})
	require.Equal(rootBefore, e.State.Root(&e.Hasher))
}

func TestPreimageUnneededRejected(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	b := e.NextBlock(e.State, 5, block.Extrinsic{
		Preimages: []block.Preimage{{Service: statetest.ServiceID, Blob: []byte("nobody asked")}},
	})
	_, err := c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodePreimageUnneeded})

	// An unknown service is its own error.
	b = e.NextBlock(e.State, 5, block.Extrinsic{
		Preimages: []block.Preimage{{Service: 99, Blob: []byte("data")}},
	})
	_, err = c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodeServiceNotFound})
}

func TestDuplicateTicketRejected(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	proof, id := keystest.Ticket(9)
	e.State.Safrole.Accumulator = []state.Ticket{{ID: id}}

	b := e.NextBlock(e.State, 1, block.Extrinsic{
		Tickets: []block.TicketEnvelope{{Attempt: 0, Proof: proof}},
	})
	_, err := c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodeDuplicateTicket})
}

func TestTicketAdmission(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	proof, id := keystest.Ticket(9)
	b := e.NextBlock(e.State, 1, block.Extrinsic{
		Tickets: []block.TicketEnvelope{{Attempt: 0, Proof: proof}},
	})
	next, err := c.Apply(e.State, b)
	require.NoError(err)
	require.Len(next.Safrole.Accumulator, 1)
	require.Equal(id, next.Safrole.Accumulator[0].ID)
	require.Equal(uint32(1), next.Statistics.Current[b.Header.AuthorIndex].Tickets)
}

func guaranteeFor(e *statetest.Env, prev *state.State, report state.WorkReport, slot state.TimeSlot) block.Guarantee {
	return block.Guarantee{
		Report: report,
		Slot:   slot,
		Credentials: []block.Credential{
			e.SignGuarantee(0, &report),
			e.SignGuarantee(1, &report),
		},
	}
}

func TestGuaranteeAdmission(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	report := e.Report(e.State, 0, 1)
	b := e.NextBlock(e.State, 1, block.Extrinsic{
		Guarantees: []block.Guarantee{guaranteeFor(e, e.State, report, 1)},
	})
	next, err := c.Apply(e.State, b)
	require.NoError(err)

	require.NotNil(next.Reports[0])
	require.Equal(state.TimeSlot(1), next.Reports[0].AdmittedAt)
	require.Equal(report.Spec.Hash, next.Reports[0].Report.Spec.Hash)
	// The consumed authorizer left the pool (rotation then re-added one).
	require.True(next.Recent.Latest().Reported.Contains(report.Spec.Hash))
	require.Equal(uint32(1), next.Statistics.Current[0].Guarantees)
	require.Equal(uint32(1), next.Statistics.Current[1].Guarantees)
}

func TestGuaranteeRejections(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	// Unknown authorizer.
	report := e.Report(e.State, 0, 1)
	report.AuthorizerHash = ids.ID{0xFF}
	b := e.NextBlock(e.State, 1, block.Extrinsic{
		Guarantees: []block.Guarantee{guaranteeFor(e, e.State, report, 1)},
	})
	_, err := c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodeBadGuarantee})

	// One credential is not enough.
	report = e.Report(e.State, 0, 1)
	g := guaranteeFor(e, e.State, report, 1)
	g.Credentials = g.Credentials[:1]
	b = e.NextBlock(e.State, 1, block.Extrinsic{Guarantees: []block.Guarantee{g}})
	_, err = c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodeBadGuarantee})

	// A stale anchor is rejected.
	report = e.Report(e.State, 0, 1)
	report.Context.Anchor = ids.ID{0xAB}
	b = e.NextBlock(e.State, 1, block.Extrinsic{
		Guarantees: []block.Guarantee{guaranteeFor(e, e.State, report, 1)},
	})
	_, err = c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodeBadGuarantee})
}

// admitAndAssure drives a report through guarantee and availability.
func admitAndAssure(t *testing.T, e *statetest.Env, c *Context) (*state.State, state.WorkReport) {
	t.Helper()
	require := require.New(t)

	report := e.Report(e.State, 0, 1)
	b1 := e.NextBlock(e.State, 1, block.Extrinsic{
		Guarantees: []block.Guarantee{guaranteeFor(e, e.State, report, 1)},
	})
	s1, err := c.Apply(e.State, b1)
	require.NoError(err)
	require.NotNil(s1.Reports[0])

	bitfield := make([]bool, e.Params.Cores)
	bitfield[0] = true
	var assurances []block.Assurance
	parent := b1.Header.Hash(&e.Hasher)
	for i := 0; i < int(e.Params.Validators); i++ {
		assurances = append(assurances, e.SignAssurance(state.ValidatorIndex(i), parent, bitfield))
	}
	b2 := e.NextBlock(s1, 2, block.Extrinsic{Assurances: assurances})
	s2, err := c.Apply(s1, b2)
	require.NoError(err)
	return s2, report
}

func TestAvailabilityAndAccumulation(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	s2, report := admitAndAssure(t, e, c)

	// The core freed and the report accumulated.
	require.Nil(s2.Reports[0])
	require.Len(s2.LastOutputs, 1)
	require.Equal(statetest.ServiceID, s2.LastOutputs[0].Service)
	require.Equal(e.Hasher.H(report.Digests[0].Output), s2.LastOutputs[0].Output)
	require.True(s2.AccumulatedContains(report.Spec.Hash))
	require.NotEqual(ids.Empty, s2.Recent.Belt.Root(&e.Hasher))
	require.Equal(uint32(1), s2.Statistics.Cores[0].Reports)
	require.Equal(uint32(1), s2.Statistics.Services[statetest.ServiceID].Accumulations)
	require.Equal(state.TimeSlot(2), s2.Services[statetest.ServiceID].LastAccAt)
}

func TestReportTimeout(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	report := e.Report(e.State, 0, 1)
	b1 := e.NextBlock(e.State, 1, block.Extrinsic{
		Guarantees: []block.Guarantee{guaranteeFor(e, e.State, report, 1)},
	})
	s1, err := c.Apply(e.State, b1)
	require.NoError(err)
	require.NotNil(s1.Reports[0])

	// No assurances arrive; past U slots the report is dropped.
	slot := state.TimeSlot(1 + e.Params.MaxReportAge)
	b2 := e.NextBlock(s1, slot, block.Extrinsic{})
	s2, err := c.Apply(s1, b2)
	require.NoError(err)
	require.Nil(s2.Reports[0])
	require.Empty(s2.LastOutputs)
}

func TestAssuranceRejections(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	report := e.Report(e.State, 0, 1)
	b1 := e.NextBlock(e.State, 1, block.Extrinsic{
		Guarantees: []block.Guarantee{guaranteeFor(e, e.State, report, 1)},
	})
	s1, err := c.Apply(e.State, b1)
	require.NoError(err)
	parent := b1.Header.Hash(&e.Hasher)

	bitfield := make([]bool, e.Params.Cores)
	bitfield[0] = true

	// Wrong anchor.
	a := e.SignAssurance(0, ids.ID{0x99}, bitfield)
	b2 := e.NextBlock(s1, 2, block.Extrinsic{Assurances: []block.Assurance{a}})
	_, err = c.Apply(s1, b2)
	require.ErrorIs(err, &TransitionError{Code: CodeBadAssurance})

	// Assurance for an idle core.
	idle := make([]bool, e.Params.Cores)
	idle[1] = true
	a = e.SignAssurance(0, parent, idle)
	b2 = e.NextBlock(s1, 2, block.Extrinsic{Assurances: []block.Assurance{a}})
	_, err = c.Apply(s1, b2)
	require.ErrorIs(err, &TransitionError{Code: CodeBadAssurance})

	// Duplicate validator indexes.
	a = e.SignAssurance(1, parent, bitfield)
	b2 = e.NextBlock(s1, 2, block.Extrinsic{Assurances: []block.Assurance{a, a}})
	_, err = c.Apply(s1, b2)
	require.ErrorIs(err, &TransitionError{Code: CodeBadAssurance})

	// Tampered signature.
	a = e.SignAssurance(0, parent, bitfield)
	a.Signature[0] ^= 0xFF
	b2 = e.NextBlock(s1, 2, block.Extrinsic{Assurances: []block.Assurance{a}})
	_, err = c.Apply(s1, b2)
	require.ErrorIs(err, &TransitionError{Code: CodeBadAssurance})
}

func TestDisputeCondemnsReport(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	report := e.Report(e.State, 0, 1)
	b1 := e.NextBlock(e.State, 1, block.Extrinsic{
		Guarantees: []block.Guarantee{guaranteeFor(e, e.State, report, 1)},
	})
	s1, err := c.Apply(e.State, b1)
	require.NoError(err)

	target := e.Hasher.H(codec.Encode(&s1.Reports[0].Report))
	var judgments []block.Judgment
	for i := 0; i < 5; i++ {
		judgments = append(judgments, e.SignJudgment(state.ValidatorIndex(i), target, false))
	}
	culpritKey := s1.Current[0].Ed25519
	culpritMsg := append([]byte("jam_guarantee"), target[:]...)
	dispute := block.Dispute{
		Verdicts: []block.Verdict{{
			Target:    target,
			Age:       c.Params.EpochIndex(uint32(s1.Timeslot)),
			Judgments: judgments,
		}},
		Culprits: []block.Culprit{{
			Target:    target,
			Key:       culpritKey,
			Signature: e.Sign(0, culpritMsg),
		}},
	}
	b2 := e.NextBlock(s1, 2, block.Extrinsic{Disputes: dispute})
	s2, err := c.Apply(s1, b2)
	require.NoError(err)

	require.True(s2.Judgments.Bad.Contains(target))
	require.True(s2.Judgments.Offenders.Contains(culpritKey))
	require.Nil(s2.Reports[0])
}

func TestDisputeRejections(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)
	target := ids.ID{0x77}

	// Bad juror signature.
	j := e.SignJudgment(0, target, true)
	j.Signature[0] ^= 0xFF
	b := e.NextBlock(e.State, 1, block.Extrinsic{Disputes: block.Dispute{
		Verdicts: []block.Verdict{{Target: target, Judgments: []block.Judgment{j}}},
	}})
	_, err := c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodeBadDispute})

	// Culprit for a report never judged bad.
	b = e.NextBlock(e.State, 1, block.Extrinsic{Disputes: block.Dispute{
		Culprits: []block.Culprit{{Target: target}},
	}})
	_, err = c.Apply(e.State, b)
	require.ErrorIs(err, &TransitionError{Code: CodeBadDispute})
}

func TestEpochRotation(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	b1 := e.NextBlock(e.State, 1, block.Extrinsic{})
	s1, err := c.Apply(e.State, b1)
	require.NoError(err)

	boundary := state.TimeSlot(e.Params.EpochLength)
	b2 := e.NextBlock(s1, boundary, block.Extrinsic{})
	require.NotNil(b2.Header.EpochMarker)
	s2, err := c.Apply(s1, b2)
	require.NoError(err)

	// κ took the pending set, λ the old current set.
	require.Equal(s1.Safrole.Pending, s2.Current)
	require.Equal(s1.Current, s2.Previous)
	// Entropy snapshots rotated.
	require.Equal(s1.Entropy[0], s2.Entropy[1])
	require.Equal(s1.Entropy[1], s2.Entropy[2])
	// Fallback mode continues with a full table.
	require.False(s2.Safrole.SealKeys.TicketMode())
	require.Len(s2.Safrole.SealKeys.Fallback, int(e.Params.EpochLength))
	// Statistics swapped.
	require.Equal(s1.Statistics.Current, s2.Statistics.Previous)

	// A boundary block without a marker is rejected.
	b3 := e.NextBlock(s1, boundary, block.Extrinsic{})
	b3.Header.EpochMarker = nil
	b3.Header.AuthorIndex = e.AuthorFor(boundary)
	_, err = c.Apply(s1, b3)
	require.ErrorIs(err, &TransitionError{Code: CodeBadHeader})
}

func TestAuthPoolBounds(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newContext(e)

	st := e.State
	for slot := state.TimeSlot(1); slot <= 6; slot++ {
		b := e.NextBlock(st, slot, block.Extrinsic{})
		next, err := c.Apply(st, b)
		require.NoError(err)
		st = next
		for core := range st.AuthPools {
			require.LessOrEqual(len(st.AuthPools[core]), int(e.Params.AuthPoolSize))
		}
	}
}
