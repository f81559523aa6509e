// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keys holds validator key material and the signature-verification
// delegates. The curve implementations themselves are external: Ed25519 is
// the standard library, BLS keys pass through luxfi/crypto untouched, and
// the Bandersnatch ring-VRF is an injected verifier so the transition logic
// never depends on a particular proof backend.
package keys

import (
	"crypto/ed25519"
	"errors"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"

	"github.com/luxfi/jam/codec"
)

const (
	BandersnatchKeyLen = 32
	Ed25519KeyLen      = ed25519.PublicKeySize
	BLSKeyLen          = 144
	MetadataLen        = 128

	// BandersnatchSigLen is the octet length of both the VRF and seal
	// signatures carried in a header.
	BandersnatchSigLen = 96

	// RingProofLen is the octet length of a ring-VRF ticket proof.
	RingProofLen = 784

	// Ed25519SigLen is the octet length of an Ed25519 signature.
	Ed25519SigLen = ed25519.SignatureSize
)

var ErrBadKeyLen = errors.New("keys: bad key length")

// BandersnatchKey is a Bandersnatch public key.
type BandersnatchKey [BandersnatchKeyLen]byte

// Ed25519Key is an Ed25519 public key.
type Ed25519Key [Ed25519KeyLen]byte

// BLSKey is a BLS public key in the 144-octet chain layout. The core
// treats it as opaque octets; splitting it into curve points is the
// signature backend's concern.
type BLSKey [BLSKeyLen]byte

// Validator is one entry of a validator vector. A validator's index within
// the vector identifies it as a signer; an offending validator is replaced
// by the zero value.
type Validator struct {
	Bandersnatch BandersnatchKey
	Ed25519      Ed25519Key
	BLS          BLSKey
	Metadata     [MetadataLen]byte
}

// IsZero reports whether every key octet is zero, the offender marker.
func (v *Validator) IsZero() bool {
	return *v == Validator{}
}

// EncodeTo writes the fixed-width key tuple.
func (v *Validator) EncodeTo(e *codec.Encoder) {
	e.Raw(v.Bandersnatch[:])
	e.Raw(v.Ed25519[:])
	e.Raw(v.BLS[:])
	e.Raw(v.Metadata[:])
}

// DecodeFrom reads the fixed-width key tuple.
func (v *Validator) DecodeFrom(d *codec.Decoder) {
	copy(v.Bandersnatch[:], d.Raw(BandersnatchKeyLen))
	copy(v.Ed25519[:], d.Raw(Ed25519KeyLen))
	copy(v.BLS[:], d.Raw(BLSKeyLen))
	copy(v.Metadata[:], d.Raw(MetadataLen))
}

// VerifyEd25519 reports whether [sig] is [key]'s signature over [msg].
func VerifyEd25519(key Ed25519Key, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(key[:], msg, sig)
}

// BLSPublicKey deserializes the compressed portion of [k] through the
// signature backend. Only callers that actually aggregate need it; the
// transition logic never does.
func BLSPublicKey(k BLSKey) (*bls.PublicKey, error) {
	// The leading 48 octets are the compressed G1 point.
	return bls.PublicKeyFromCompressedBytes(k[:48])
}

// RingVerifier verifies Bandersnatch ring-VRF proofs against a ring
// commitment. Implementations wrap an external proof system; the stub in
// keystest backs deterministic tests.
type RingVerifier interface {
	// Commitment returns the ring commitment (epoch root) for an ordered
	// set of Bandersnatch keys.
	Commitment(ring []BandersnatchKey) (ids.ID, error)

	// VerifyTicket checks a ring proof over the ticket-seal message built
	// from [entropy] and [attempt], returning the proof's output hash:
	// the ticket identifier.
	VerifyTicket(root ids.ID, entropy ids.ID, attempt uint8, proof []byte) (ids.ID, error)
}

// SealVerifier verifies the two per-block Bandersnatch signatures. The
// header seal is checked against the slot's seal key; the entropy-source
// signature yields the VRF output folded into the entropy chain.
type SealVerifier interface {
	// VerifySeal checks the seal signature over the unsealed header
	// encoding and returns its VRF output hash.
	VerifySeal(key BandersnatchKey, context, msg, sig []byte) (ids.ID, error)

	// VerifyEntropy checks the entropy-source signature and returns its
	// VRF output hash, the octets folded into the entropy accumulator.
	VerifyEntropy(key BandersnatchKey, context, msg, sig []byte) (ids.ID, error)
}
