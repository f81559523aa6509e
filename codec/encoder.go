// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import "encoding/binary"

// Encoder accumulates the canonical encoding of a value.
type Encoder struct {
	b []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the octets written so far.
func (e *Encoder) Bytes() []byte {
	return e.b
}

// Raw appends [bs] with no framing.
func (e *Encoder) Raw(bs []byte) {
	e.b = append(e.b, bs...)
}

// Bool appends 0x01 or 0x00.
func (e *Encoder) Bool(v bool) {
	if v {
		e.b = append(e.b, 1)
	} else {
		e.b = append(e.b, 0)
	}
}

// Uint8 appends a single octet.
func (e *Encoder) Uint8(v uint8) {
	e.b = append(e.b, v)
}

// Uint16 appends a 2-octet little-endian value.
func (e *Encoder) Uint16(v uint16) {
	e.b = binary.LittleEndian.AppendUint16(e.b, v)
}

// Uint24 appends a 3-octet little-endian value. The top octet of [v] must
// be zero.
func (e *Encoder) Uint24(v uint32) {
	e.b = append(e.b, byte(v), byte(v>>8), byte(v>>16))
}

// Uint32 appends a 4-octet little-endian value.
func (e *Encoder) Uint32(v uint32) {
	e.b = binary.LittleEndian.AppendUint32(e.b, v)
}

// Uint64 appends an 8-octet little-endian value.
func (e *Encoder) Uint64(v uint64) {
	e.b = binary.LittleEndian.AppendUint64(e.b, v)
}

// Natural appends the variable-length natural-number form of [v]: a prefix
// octet whose run of leading set bits gives the count of remainder octets,
// then that many little-endian octets. Values below 128 are a single octet;
// values at or above 2^56 are 0xFF followed by the full 8-octet value.
func (e *Encoder) Natural(v uint64) {
	if v < 1<<7 {
		e.b = append(e.b, byte(v))
		return
	}
	for l := 1; l < 8; l++ {
		if v < 1<<(7*(l+1)) {
			prefix := byte(256-(1<<(8-l))) | byte(v>>(8*l))
			e.b = append(e.b, prefix)
			for i := 0; i < l; i++ {
				e.b = append(e.b, byte(v>>(8*i)))
			}
			return
		}
	}
	e.b = append(e.b, 0xFF)
	e.Uint64(v)
}

// Blob appends a natural length prefix followed by the octets of [bs].
func (e *Encoder) Blob(bs []byte) {
	e.Natural(uint64(len(bs)))
	e.b = append(e.b, bs...)
}

// Length appends the natural element count of a variable-length sequence.
// The caller then appends each element.
func (e *Encoder) Length(n int) {
	e.Natural(uint64(n))
}

// Optional appends the presence tag for an optional value. When it returns
// true the caller appends the value itself.
func (e *Encoder) Optional(present bool) bool {
	e.Bool(present)
	return present
}

// Discriminant appends a union index octet.
func (e *Encoder) Discriminant(idx uint8) {
	e.b = append(e.b, idx)
}

// BitSeq appends a natural bit count followed by the bits packed LSB-first
// within each octet.
func (e *Encoder) BitSeq(bits []bool) {
	e.Natural(uint64(len(bits)))
	e.BitsPacked(bits)
}

// BitsPacked appends [bits] packed LSB-first with no length prefix.
func (e *Encoder) BitsPacked(bits []bool) {
	var cur byte
	for i, b := range bits {
		if b {
			cur |= 1 << (i % 8)
		}
		if i%8 == 7 {
			e.b = append(e.b, cur)
			cur = 0
		}
	}
	if len(bits)%8 != 0 {
		e.b = append(e.b, cur)
	}
}
