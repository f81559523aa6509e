// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stf

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/jam/block"
	"github.com/luxfi/jam/hashing"
	"github.com/luxfi/jam/safrole"
	"github.com/luxfi/jam/state"
)

// validateHeaderShape checks the parts of the header that need no
// rotated state: monotone timeslot, wall-clock bound, parent linkage and
// the extrinsic commitment.
func (c *Context) validateHeaderShape(prev *state.State, b *block.Block) error {
	h := &b.Header
	if h.Timeslot <= prev.Timeslot {
		return errCode(CodeBadHeader, "timeslot %d not after %d", h.Timeslot, prev.Timeslot)
	}
	if c.WallTime != nil {
		// One slot of tolerance absorbs clock skew between peers.
		deadline := c.WallTime() + uint64(c.Params.SlotPeriod)
		if uint64(h.Timeslot)*uint64(c.Params.SlotPeriod) > deadline {
			return errCode(CodeBadHeader, "timeslot %d in the future", h.Timeslot)
		}
	}
	if len(prev.Recent.Blocks) > 0 {
		if !prev.Recent.Contains(h.ParentHash) {
			return errCode(CodeBadHeader, "unknown parent %s", h.ParentHash)
		}
		if latest := prev.Recent.Latest(); latest.HeaderHash != h.ParentHash {
			return errCode(CodeBadHeader, "parent %s is not the chain head", h.ParentHash)
		}
	}
	if got := b.ExtrinsicHash(c.Hasher); got != h.ExtrinsicHash {
		return errCode(CodeBadHeader, "extrinsic hash mismatch")
	}
	return nil
}

// rotateOnEpochChange performs the entropy rotation and validator
// rotation of an epoch boundary, and validates the header's epoch marker
// against the locally computed rotation.
func (c *Context) rotateOnEpochChange(st *state.State, prevSlot state.TimeSlot, b *block.Block) error {
	h := &b.Header
	epochChanged := c.Params.EpochIndex(uint32(h.Timeslot)) > c.Params.EpochIndex(uint32(prevSlot))

	if epochChanged {
		st.Entropy.Rotate()

		// λ ← κ, κ ← γ.pending, γ.pending ← Φ(ι); recompute the ring.
		st.Previous = st.Current
		st.Current = st.Safrole.Pending
		st.Safrole.Pending = st.Staging.WithOffendersZeroed(st.Judgments.Offenders)
		root, err := c.Ring.Commitment(st.Safrole.Pending.BandersnatchKeys())
		if err != nil {
			return errCode(CodeBadHeader, "ring commitment: %v", err)
		}
		st.Safrole.EpochRoot = root

		safrole.RotateEpoch(c.Params, &st.Safrole, st.Current)
		st.Statistics.RotateEpoch()
	}

	if (h.EpochMarker != nil) != epochChanged {
		return errCode(CodeBadHeader, "epoch marker presence mismatch")
	}
	if m := h.EpochMarker; m != nil {
		if m.Entropy != st.Entropy[1] || m.TicketsEntropy != st.Entropy[2] {
			return errCode(CodeBadHeader, "epoch marker entropy mismatch")
		}
		if len(m.Validators) != len(st.Safrole.Pending) {
			return errCode(CodeBadHeader, "epoch marker validator count")
		}
		for i := range m.Validators {
			if m.Validators[i].Bandersnatch != st.Safrole.Pending[i].Bandersnatch ||
				m.Validators[i].Ed25519 != st.Safrole.Pending[i].Ed25519 {
				return errCode(CodeBadHeader, "epoch marker validator %d mismatch", i)
			}
		}
	}
	// The winning-tickets marker appears exactly on the first block past the
	// ticket-submission close of an epoch whose accumulator is full, and
	// carries that accumulator.
	acc := st.Safrole.Accumulator
	crossesTail := !epochChanged && !c.Params.TicketsClosed(uint32(prevSlot)) && c.Params.TicketsClosed(uint32(h.Timeslot))
	if wantTickets := crossesTail && uint32(len(acc)) == c.Params.EpochLength; (h.WinningTickets != nil) != wantTickets {
		return errCode(CodeBadHeader, "winning tickets marker presence mismatch")
	}
	if wt := h.WinningTickets; wt != nil {
		if len(wt) != len(acc) {
			return errCode(CodeBadHeader, "winning tickets marker mismatch")
		}
		for i := range wt {
			if wt[i] != acc[i] {
				return errCode(CodeBadHeader, "winning ticket %d mismatch", i)
			}
		}
	}
	return nil
}

// verifySealAndEntropy checks the author's seal against the slot's seal
// key and folds the block VRF output into the entropy accumulator.
func (c *Context) verifySealAndEntropy(st *state.State, b *block.Block) error {
	h := &b.Header
	if int(h.AuthorIndex) >= len(st.Current) {
		return errCode(CodeBadSeal, "author index %d out of range", h.AuthorIndex)
	}
	author := st.Current[h.AuthorIndex]

	ticket, fallback := safrole.SealKeyFor(c.Params, &st.Safrole, h.Timeslot)
	domain := safrole.SealContext(&st.Safrole)
	msg := hashing.SigningMessage(domain, h.UnsealedBytes())

	sealOut, err := c.Seal.VerifySeal(author.Bandersnatch, []byte(domain), msg, h.Seal[:])
	if err != nil {
		return errCode(CodeBadSeal, "seal: %v", err)
	}
	switch {
	case ticket != nil:
		if sealOut != ticket.ID {
			return errCode(CodeBadSeal, "seal output does not match slot ticket")
		}
	case fallback != nil:
		if author.Bandersnatch != *fallback {
			return errCode(CodeBadSeal, "author is not the slot's fallback key")
		}
	default:
		return errCode(CodeBadSeal, "no seal key for slot %d", h.Timeslot)
	}

	entropyMsg := hashing.SigningMessage(hashing.DomainEntropy, sealOut[:])
	vrfOut, err := c.Seal.VerifyEntropy(author.Bandersnatch, []byte(hashing.DomainEntropy), entropyMsg, h.VRFSig[:])
	if err != nil {
		return errCode(CodeBadSeal, "entropy source: %v", err)
	}
	st.Entropy[0] = c.Hasher.H(st.Entropy[0][:], vrfOut[:])
	return nil
}

// pushRecent opens this block's β entry before any effects apply: the
// header hash for child linkage, the parent state root the header
// commits to, and the accumulation root as of the parent. The reported
// set is completed by finalizeRecent.
func (c *Context) pushRecent(st *state.State, prevRoot ids.ID, b *block.Block) error {
	if len(st.Recent.Blocks) > 0 && b.Header.StateRoot != prevRoot {
		return errCode(CodeBadHeader, "prior state root mismatch")
	}
	entry := state.RecentBlock{
		HeaderHash:       b.Header.Hash(c.Hasher),
		StateRoot:        b.Header.StateRoot,
		AccumulationRoot: st.Recent.Belt.Root(c.Hasher),
		Reported:         nil,
		Seal:             b.Header.Seal,
	}
	st.Recent.Push(entry, int(c.Params.HistoryDepth))
	return nil
}
