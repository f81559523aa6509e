// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package block

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/jam/codec"
	"github.com/luxfi/jam/hashing"
)

// Block is a header and its extrinsic.
type Block struct {
	Header    Header
	Extrinsic Extrinsic
}

func (b *Block) EncodeTo(e *codec.Encoder) {
	b.Header.EncodeTo(e)
	b.Extrinsic.EncodeTo(e)
}

func (b *Block) DecodeFrom(d *codec.Decoder) {
	b.Header.DecodeFrom(d)
	b.Extrinsic.DecodeFrom(d)
}

// Bytes returns the wire encoding.
func (b *Block) Bytes() []byte {
	return codec.Encode(b)
}

// Parse decodes a block from its wire encoding.
func Parse(bs []byte) (*Block, error) {
	b := &Block{}
	if err := codec.Decode(bs, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ExtrinsicHash returns the commitment the header carries over the block
// body.
func (b *Block) ExtrinsicHash(h *hashing.Hasher) ids.ID {
	return h.H(codec.Encode(&b.Extrinsic))
}
