// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pvm

import (
	"fmt"
	"math/bits"

	"github.com/luxfi/jam/codec"
)

// maxSkip bounds the octet distance between instruction starts, and so
// the operand length of any instruction.
const maxSkip = 24

// Program is a deserialized service-code blob.
type Program struct {
	RoData     []byte
	RwData     []byte
	StackPages uint16
	StackBytes uint32

	JumpTable []uint32
	Code      []byte
	mask      []byte // packed opcode-start bits, one per code octet
}

// ParseProgram deserializes a program blob: the segment sizes, segment
// octets, then the code blob holding the jump table, instruction stream
// and opcode mask.
func ParseProgram(bs []byte) (*Program, error) {
	d := codec.NewDecoder(bs)
	roLen := d.Uint24()
	rwLen := d.Uint24()
	stackPages := d.Uint16()
	stackBytes := d.Uint24()
	p := &Program{
		StackPages: stackPages,
		StackBytes: stackBytes,
	}
	p.RoData = append([]byte(nil), d.Raw(int(roLen))...)
	p.RwData = append([]byte(nil), d.Raw(int(rwLen))...)

	codeBlobLen := d.Uint32()
	if d.Err() != nil || uint64(codeBlobLen) > uint64(d.Remaining()) {
		return nil, ErrBadProgram
	}
	cd := codec.NewDecoder(d.Raw(int(codeBlobLen)))

	jumpCount := cd.Natural()
	entrySize := cd.Uint8()
	codeLen := cd.Natural()
	if cd.Err() != nil || entrySize > 4 {
		return nil, ErrBadProgram
	}
	if jumpCount*uint64(entrySize) > uint64(cd.Remaining()) {
		return nil, ErrBadProgram
	}
	p.JumpTable = make([]uint32, jumpCount)
	for i := range p.JumpTable {
		var v uint32
		for b, octet := range cd.Raw(int(entrySize)) {
			v |= uint32(octet) << (8 * b)
		}
		p.JumpTable[i] = v
	}
	if codeLen > uint64(cd.Remaining()) {
		return nil, ErrBadProgram
	}
	p.Code = append([]byte(nil), cd.Raw(int(codeLen))...)
	p.mask = append([]byte(nil), cd.Raw((len(p.Code)+7)/8)...)
	if err := cd.Done(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadProgram, err)
	}
	if err := d.Done(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadProgram, err)
	}
	if roLen > ZoneSize || rwLen > ZoneSize {
		return nil, ErrSegmentTooLarge
	}
	if uint32(stackPages)*PageSize > ZoneSize {
		return nil, ErrSegmentTooLarge
	}
	return p, nil
}

// maskBit reports whether [pc] is marked as an instruction start.
func (p *Program) maskBit(pc uint32) bool {
	if pc >= uint32(len(p.Code)) {
		return false
	}
	return p.mask[pc/8]&(1<<(pc%8)) != 0
}

// skip returns the operand length of the instruction at [pc]: the octet
// count before the next marked instruction start, capped at maxSkip.
func (p *Program) skip(pc uint32) uint32 {
	n := uint32(0)
	for n < maxSkip {
		next := pc + 1 + n
		if next >= uint32(len(p.Code)) || p.maskBit(next) {
			return n
		}
		n++
	}
	return maxSkip
}

// Entry resolves an entry index through the jump table.
func (p *Program) Entry(index uint32) (uint32, error) {
	if index >= uint32(len(p.JumpTable)) {
		return 0, ErrBadEntry
	}
	return p.JumpTable[index], nil
}

// InitMemory lays out a fresh address space for the program: read-only
// data, read-write data, the initial heap zone, the stack and the
// argument region.
func (p *Program) InitMemory(args []byte) *Memory {
	m := NewMemory()
	m.MapRegion(roBase, ZoneSize, PermRead, p.RoData)
	m.MapRegion(rwBase, ZoneSize, PermWrite, p.RwData)
	m.MapRegion(heapBase, ZoneSize, PermWrite, nil)
	m.SetHeapPointer(heapBase + ZoneSize)

	stackLen := uint32(p.StackPages) * PageSize
	if want := (p.StackBytes + PageSize - 1) / PageSize * PageSize; want > stackLen {
		stackLen = want
	}
	if stackLen > 0 {
		m.MapRegion(stackTop-stackLen, stackLen, PermWrite, nil)
	}
	if len(args) > MaxInput {
		args = args[:MaxInput]
	}
	m.MapRegion(inputBase, uint32(len(args)), PermRead, args)
	return m
}

// EncodeProgram reassembles a blob from its parts; tests and tooling use
// it to author programs.
func EncodeProgram(p *Program) []byte {
	e := codec.NewEncoder()
	e.Uint24(uint32(len(p.RoData)))
	e.Uint24(uint32(len(p.RwData)))
	e.Uint16(p.StackPages)
	e.Uint24(p.StackBytes)
	e.Raw(p.RoData)
	e.Raw(p.RwData)

	ce := codec.NewEncoder()
	ce.Natural(uint64(len(p.JumpTable)))
	entrySize := uint8(0)
	for _, v := range p.JumpTable {
		if n := uint8((bits.Len32(v) + 7) / 8); n > entrySize {
			entrySize = n
		}
	}
	if len(p.JumpTable) > 0 && entrySize == 0 {
		entrySize = 1
	}
	ce.Uint8(entrySize)
	ce.Natural(uint64(len(p.Code)))
	for _, v := range p.JumpTable {
		for b := uint8(0); b < entrySize; b++ {
			ce.Uint8(uint8(v >> (8 * b)))
		}
	}
	ce.Raw(p.Code)
	ce.Raw(p.mask)

	e.Uint32(uint32(len(ce.Bytes())))
	e.Raw(ce.Bytes())
	return e.Bytes()
}

// SetMask installs a caller-built opcode mask; the octet count must cover
// the code.
func (p *Program) SetMask(mask []byte) {
	p.mask = mask
}

// MarkAll builds a mask marking every octet an instruction start, the
// layout of a stream of zero-operand instructions.
func (p *Program) MarkAll() {
	p.mask = make([]byte, (len(p.Code)+7)/8)
	for i := range p.Code {
		p.mask[i/8] |= 1 << (i % 8)
	}
}
