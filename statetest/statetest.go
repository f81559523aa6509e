// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package statetest builds deterministic fixtures for transition tests:
// a tiny-network genesis state with real Ed25519 validator keys and a
// block builder that produces correctly sealed blocks against the stub
// proof system.
package statetest

import (
	"crypto/ed25519"

	"github.com/luxfi/ids"

	"github.com/luxfi/jam/block"
	"github.com/luxfi/jam/codec"
	"github.com/luxfi/jam/config"
	"github.com/luxfi/jam/hashing"
	"github.com/luxfi/jam/keys"
	"github.com/luxfi/jam/keys/keystest"
	"github.com/luxfi/jam/pvm"
	"github.com/luxfi/jam/safrole"
	"github.com/luxfi/jam/state"
)

// Env bundles a genesis state with everything needed to extend it.
type Env struct {
	Params   config.Params
	Hasher   hashing.Hasher
	Verifier *keystest.Verifier
	State    *state.State
	Signers  []ed25519.PrivateKey
}

// GenesisAuthorizer is pre-loaded into every core's pool and queue.
var GenesisAuthorizer = ids.ID{0xA0, 0x01}

// ServiceID is the pre-registered test service.
const ServiceID state.ServiceID = 1

// HaltingService returns a service blob whose entry points halt at once
// with an empty output.
func HaltingService() []byte {
	p := &pvm.Program{
		Code: []byte{
			pvm.OpLoadImm, 0x09,
			pvm.OpJumpInd, 0x00, 0x00, 0x00, 0xFF, 0xFF,
		},
		StackPages: 1,
		JumpTable:  []uint32{0, 0, 0, 0},
	}
	p.SetMask([]byte{0b0000_0101})
	return pvm.EncodeProgram(p)
}

// NewEnv builds the tiny-network genesis.
func NewEnv() *Env {
	e := &Env{
		Params:   config.Tiny(),
		Verifier: &keystest.Verifier{},
	}
	n := int(e.Params.Validators)
	vs := make(state.ValidatorSet, n)
	e.Signers = make([]ed25519.PrivateKey, n)
	for i := 0; i < n; i++ {
		var seed [ed25519.SeedSize]byte
		seed[0] = byte(i + 1)
		seed[1] = 0x5A
		priv := ed25519.NewKeyFromSeed(seed[:])
		e.Signers[i] = priv
		copy(vs[i].Ed25519[:], priv.Public().(ed25519.PublicKey))
		vs[i].Bandersnatch[0] = byte(i + 1)
	}

	st := state.New(int(e.Params.Cores))
	st.Current = vs
	st.Previous = vs.Clone()
	st.Staging = vs.Clone()
	st.Safrole.Pending = vs.Clone()
	root, _ := e.Verifier.Commitment(vs.BandersnatchKeys())
	st.Safrole.EpochRoot = root
	safrole.RotateEpoch(e.Params, &st.Safrole, st.Current)
	st.Statistics = state.NewStatistics(n, int(e.Params.Cores))

	for core := range st.AuthPools {
		st.AuthPools[core] = state.AuthPool{GenesisAuthorizer}
		queue := make(state.AuthQueue, e.Params.AuthQueueSize)
		for i := range queue {
			queue[i] = GenesisAuthorizer
		}
		st.AuthQueues[core] = queue
	}

	code := HaltingService()
	svc := state.NewServiceAccount(e.Hasher.H(code), 1_000_000)
	svc.Preimages[svc.CodeHash] = code
	st.Services[ServiceID] = svc
	st.Privileges.Manager = ServiceID
	st.Privileges.Assigners = make([]state.ServiceID, e.Params.Cores)
	for i := range st.Privileges.Assigners {
		st.Privileges.Assigners[i] = ServiceID
	}
	st.Privileges.Delegator = ServiceID

	st.Recent.Push(state.RecentBlock{
		HeaderHash: e.Hasher.H([]byte("genesis")),
	}, int(e.Params.HistoryDepth))

	e.State = st
	return e
}

// AuthorFor returns the validator index sealing [slot] in fallback mode:
// the one whose Bandersnatch key the cycled table names for the phase.
func (e *Env) AuthorFor(slot state.TimeSlot) state.ValidatorIndex {
	phase := e.Params.SlotPhase(uint32(slot))
	return state.ValidatorIndex(int(phase) % len(e.State.Current))
}

// NextBlock assembles a sealed block extending [prev] at [slot] with the
// given extrinsic. The epoch marker is synthesized when the slot crosses
// an epoch boundary.
func (e *Env) NextBlock(prev *state.State, slot state.TimeSlot, ext block.Extrinsic) *block.Block {
	b := &block.Block{Extrinsic: ext}
	h := &b.Header
	h.ParentHash = prev.Recent.Latest().HeaderHash
	h.StateRoot = prev.Root(&e.Hasher)
	h.Timeslot = slot
	h.AuthorIndex = e.AuthorFor(slot)
	h.ExtrinsicHash = b.ExtrinsicHash(&e.Hasher)

	if e.Params.EpochIndex(uint32(slot)) > e.Params.EpochIndex(uint32(prev.Timeslot)) {
		pending := prev.Staging.WithOffendersZeroed(prev.Judgments.Offenders)
		marker := &block.EpochMarker{
			Entropy:        prev.Entropy[0],
			TicketsEntropy: prev.Entropy[1],
		}
		for i := range pending {
			marker.Validators = append(marker.Validators, block.EpochMarkerKeys{
				Bandersnatch: pending[i].Bandersnatch,
				Ed25519:      pending[i].Ed25519,
			})
		}
		h.EpochMarker = marker
		// After rotation the epoch seals with the incoming current set.
		h.AuthorIndex = e.authorAfterRotation(prev, slot)
	}

	h.Seal[0] = 0x01
	h.Seal[1] = byte(slot)
	h.VRFSig[0] = 0x01
	h.VRFSig[1] = byte(slot >> 8)
	h.VRFSig[2] = byte(slot)
	return b
}

func (e *Env) authorAfterRotation(prev *state.State, slot state.TimeSlot) state.ValidatorIndex {
	incoming := prev.Safrole.Pending
	phase := e.Params.SlotPhase(uint32(slot))
	return state.ValidatorIndex(int(phase) % len(incoming))
}

// Sign signs [msg] with validator [index]'s Ed25519 key.
func (e *Env) Sign(index state.ValidatorIndex, msg []byte) [keys.Ed25519SigLen]byte {
	var out [keys.Ed25519SigLen]byte
	copy(out[:], ed25519.Sign(e.Signers[index], msg))
	return out
}

// SignGuarantee produces a credential for [report].
func (e *Env) SignGuarantee(index state.ValidatorIndex, report *state.WorkReport) block.Credential {
	rh := e.Hasher.H(codec.Encode(report))
	msg := hashing.SigningMessage(hashing.DomainGuarantee, rh[:])
	return block.Credential{Index: index, Signature: e.Sign(index, msg)}
}

// SignAssurance produces a signed availability bitfield anchored at the
// parent.
func (e *Env) SignAssurance(index state.ValidatorIndex, anchor ids.ID, bitfield []bool) block.Assurance {
	enc := codec.NewEncoder()
	enc.Raw(anchor[:])
	enc.BitsPacked(bitfield)
	msg := hashing.SigningMessage(hashing.DomainAvailable, enc.Bytes())
	return block.Assurance{
		Anchor:    anchor,
		Bitfield:  bitfield,
		Index:     index,
		Signature: e.Sign(index, msg),
	}
}

// SignJudgment produces one juror vote over [target].
func (e *Env) SignJudgment(index state.ValidatorIndex, target ids.ID, vote bool) block.Judgment {
	domain := hashing.DomainValid
	if !vote {
		domain = hashing.DomainInvalid
	}
	msg := hashing.SigningMessage(domain, target[:])
	return block.Judgment{Vote: vote, Index: index, Signature: e.Sign(index, msg)}
}

// Report builds a minimal valid report for [core] anchored in the latest
// recent block.
func (e *Env) Report(prev *state.State, core state.CoreID, tag byte, prereqs ...ids.ID) state.WorkReport {
	return state.WorkReport{
		Spec: state.PackageSpec{Hash: ids.ID{0xB0, tag}},
		Context: state.RefinementContext{
			Anchor:        prev.Recent.Latest().HeaderHash,
			LookupSlot:    prev.Timeslot,
			Prerequisites: prereqs,
		},
		Core:           core,
		AuthorizerHash: GenesisAuthorizer,
		Digests: []state.WorkDigest{{
			Service:       ServiceID,
			GasAccumulate: 10_000,
			Output:        []byte{'o', tag},
		}},
	}
}
