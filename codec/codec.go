// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec provides the canonical binary encoding shared by all
// consensus objects. Values carry no self-description beyond the listed
// constructs; two encoders given the same value must produce identical
// octets.
package codec

import "errors"

var (
	// ErrTruncated is returned when the input ends before the value does
	ErrTruncated = errors.New("codec: truncated input")

	// ErrTrailing is returned by Done when decoded input has leftover octets
	ErrTrailing = errors.New("codec: trailing bytes")

	// ErrBadDiscriminant is returned for an out-of-range union index
	ErrBadDiscriminant = errors.New("codec: bad discriminant")

	// ErrBadOptional is returned when an optional tag is neither 0 nor 1
	ErrBadOptional = errors.New("codec: bad optional tag")

	// ErrUnsortedMap names a map whose keys are not strictly increasing.
	// The map and set decoders of this module do not check key order and
	// do not return it.
	ErrUnsortedMap = errors.New("codec: map keys not sorted and unique")

	// ErrLengthOverflow is returned when a declared length cannot fit in memory
	ErrLengthOverflow = errors.New("codec: length prefix overflow")
)

// Encodable is implemented by types that know their canonical encoding.
type Encodable interface {
	EncodeTo(*Encoder)
}

// Decodable is implemented by types that can reconstruct themselves from
// their canonical encoding.
type Decodable interface {
	DecodeFrom(*Decoder)
}

// Encode returns the canonical encoding of [v].
func Encode(v Encodable) []byte {
	e := NewEncoder()
	v.EncodeTo(e)
	return e.Bytes()
}

// Decode reconstructs [v] from [bs], requiring the input be fully consumed.
func Decode(bs []byte, v Decodable) error {
	d := NewDecoder(bs)
	v.DecodeFrom(d)
	return d.Done()
}

// SliceOf allocates a decode target for [n] elements, nil when empty, so
// an encoded nil slice round-trips back to nil.
func SliceOf[T any](n int) []T {
	if n == 0 {
		return nil
	}
	return make([]T, n)
}
