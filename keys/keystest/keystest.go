// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keystest provides deterministic stand-ins for the external proof
// systems so transition tests run without a Bandersnatch backend. A stub
// proof is valid unless its first octet is 0xFF, and its output hash is
// the Blake2b digest of the proof octets, so tests pick outputs by picking
// proofs.
package keystest

import (
	"errors"

	"github.com/luxfi/ids"

	"github.com/luxfi/jam/hashing"
	"github.com/luxfi/jam/keys"
)

var errBadProof = errors.New("keystest: proof marked invalid")

// BadProofMarker as the first octet of a proof or signature makes the stub
// reject it.
const BadProofMarker = 0xFF

// Verifier implements keys.RingVerifier and keys.SealVerifier over plain
// hashing.
type Verifier struct {
	Hasher hashing.Hasher
}

var (
	_ keys.RingVerifier = (*Verifier)(nil)
	_ keys.SealVerifier = (*Verifier)(nil)
)

func (v *Verifier) Commitment(ring []keys.BandersnatchKey) (ids.ID, error) {
	flat := make([]byte, 0, len(ring)*keys.BandersnatchKeyLen)
	for _, k := range ring {
		flat = append(flat, k[:]...)
	}
	return v.Hasher.H([]byte("ring_commitment"), flat), nil
}

func (v *Verifier) VerifyTicket(root ids.ID, entropy ids.ID, attempt uint8, proof []byte) (ids.ID, error) {
	if len(proof) == 0 || proof[0] == BadProofMarker {
		return ids.Empty, errBadProof
	}
	return v.Hasher.H(proof), nil
}

// VerifySeal hashes the signature octets, so a test seals in ticket mode
// by signing with the ticket's proof.
func (v *Verifier) VerifySeal(key keys.BandersnatchKey, context, msg, sig []byte) (ids.ID, error) {
	if len(sig) == 0 || sig[0] == BadProofMarker {
		return ids.Empty, errBadProof
	}
	return v.Hasher.H(sig), nil
}

func (v *Verifier) VerifyEntropy(key keys.BandersnatchKey, context, msg, sig []byte) (ids.ID, error) {
	if len(sig) == 0 || sig[0] == BadProofMarker {
		return ids.Empty, errBadProof
	}
	return v.Hasher.H([]byte("vrf_out"), sig), nil
}

// Ticket returns a proof whose stub output is H(proof), along with that
// output, for seeding accumulators and extrinsics.
func Ticket(seed byte) (proof []byte, id ids.ID) {
	proof = make([]byte, keys.RingProofLen)
	proof[0] = 0x01
	proof[1] = seed
	var h hashing.Hasher
	return proof, h.H(proof)
}
