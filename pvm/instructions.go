// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pvm

// Opcode numbering. Gaps between groups leave room for future families
// without renumbering; the mask mechanism means undefined opcodes decode
// as trap.
const (
	// Control
	OpTrap        = 0
	OpFallthrough = 1
	OpEcalli      = 2
	OpJump        = 3
	OpJumpInd     = 4
	OpLoadImm     = 5
	OpLoadImm64   = 6
	OpLoadImmJump = 7
	OpLoadImmJumpInd = 8
	OpSbrk        = 9

	// Branches, register against immediate
	OpBranchEqImm  = 10
	OpBranchNeImm  = 11
	OpBranchLtUImm = 12
	OpBranchLeUImm = 13
	OpBranchGeUImm = 14
	OpBranchGtUImm = 15
	OpBranchLtSImm = 16
	OpBranchLeSImm = 17
	OpBranchGeSImm = 18
	OpBranchGtSImm = 19

	// Branches, register against register
	OpBranchEq  = 20
	OpBranchNe  = 21
	OpBranchLtU = 22
	OpBranchLeU = 23
	OpBranchGeU = 24
	OpBranchGtU = 25
	OpBranchLtS = 26
	OpBranchLeS = 27
	OpBranchGeS = 28
	OpBranchGtS = 29

	// Loads, absolute address
	OpLoadU8Abs  = 30
	OpLoadI8Abs  = 31
	OpLoadU16Abs = 32
	OpLoadI16Abs = 33
	OpLoadU32Abs = 34
	OpLoadI32Abs = 35
	OpLoadU64Abs = 36

	// Loads, register base plus offset
	OpLoadU8Ind  = 37
	OpLoadI8Ind  = 38
	OpLoadU16Ind = 39
	OpLoadI16Ind = 40
	OpLoadU32Ind = 41
	OpLoadI32Ind = 42
	OpLoadU64Ind = 43

	// Loads, stack pointer plus offset
	OpLoadU8Sp  = 44
	OpLoadI8Sp  = 45
	OpLoadU16Sp = 46
	OpLoadI16Sp = 47
	OpLoadU32Sp = 48
	OpLoadI32Sp = 49
	OpLoadU64Sp = 50

	// Stores, absolute
	OpStoreU8Abs  = 51
	OpStoreU16Abs = 52
	OpStoreU32Abs = 53
	OpStoreU64Abs = 54

	// Stores, register base plus offset
	OpStoreU8Ind  = 55
	OpStoreU16Ind = 56
	OpStoreU32Ind = 57
	OpStoreU64Ind = 58

	// Stores, stack pointer plus offset
	OpStoreU8Sp  = 59
	OpStoreU16Sp = 60
	OpStoreU32Sp = 61
	OpStoreU64Sp = 62

	// Immediate stores
	OpStoreImmU8Abs  = 63
	OpStoreImmU16Abs = 64
	OpStoreImmU32Abs = 65
	OpStoreImmU64Abs = 66
	OpStoreImmU8Ind  = 67
	OpStoreImmU16Ind = 68
	OpStoreImmU32Ind = 69
	OpStoreImmU64Ind = 70

	// Arithmetic, three registers
	OpAdd32  = 71
	OpAdd64  = 72
	OpSub32  = 73
	OpSub64  = 74
	OpMul32  = 75
	OpMul64  = 76
	OpDivU32 = 77
	OpDivU64 = 78
	OpDivS32 = 79
	OpDivS64 = 80
	OpRemU32 = 81
	OpRemU64 = 82
	OpRemS32 = 83
	OpRemS64 = 84

	OpAnd    = 85
	OpOr     = 86
	OpXor    = 87
	OpAndInv = 88
	OpOrInv  = 89
	OpXnor   = 90

	OpShloL32 = 91
	OpShloL64 = 92
	OpShloR32 = 93
	OpShloR64 = 94
	OpSharR32 = 95
	OpSharR64 = 96
	OpRotL32  = 97
	OpRotL64  = 98
	OpRotR32  = 99
	OpRotR64  = 100

	OpSetLtU = 101
	OpSetLtS = 102
	OpSetGtU = 103
	OpSetGtS = 104

	OpCmovIz = 105
	OpCmovNz = 106
	OpMin    = 107
	OpMinU   = 108
	OpMax    = 109
	OpMaxU   = 110

	OpMulUpperSS = 111
	OpMulUpperUU = 112
	OpMulUpperSU = 113

	// Arithmetic, register and immediate
	OpAddImm32    = 120
	OpAddImm64    = 121
	OpMulImm32    = 122
	OpMulImm64    = 123
	OpNegAddImm32 = 124
	OpNegAddImm64 = 125
	OpAndImm      = 126
	OpOrImm       = 127
	OpXorImm      = 128
	OpShloLImm32  = 129
	OpShloLImm64  = 130
	OpShloRImm32  = 131
	OpShloRImm64  = 132
	OpSharRImm32  = 133
	OpSharRImm64  = 134
	OpRotRImm32   = 135
	OpRotRImm64   = 136
	OpSetLtUImm   = 137
	OpSetLtSImm   = 138
	OpSetGtUImm   = 139
	OpSetGtSImm   = 140
	OpCmovIzImm   = 141
	OpCmovNzImm   = 142

	// Unary, two registers
	OpCountSetBits64    = 150
	OpCountSetBits32    = 151
	OpLeadingZeroBits64 = 152
	OpLeadingZeroBits32 = 153
	OpTrailingZeroBits64 = 154
	OpTrailingZeroBits32 = 155
	OpSignExtend8       = 156
	OpSignExtend16      = 157
	OpZeroExtend16      = 158
	OpReverseBytes      = 159
)

// clampReg folds the 4-bit operand field onto the register file.
func clampReg(nibble byte) int {
	r := int(nibble)
	if r > NumRegs-1 {
		return NumRegs - 1
	}
	return r
}

// regPair splits an operand octet into two register indexes.
func regPair(b byte) (int, int) {
	return clampReg(b & 0x0F), clampReg(b >> 4)
}

// signExtend interprets [bs] as a little-endian two's-complement value of
// its own length. Zero octets give zero.
func signExtend(bs []byte) uint64 {
	if len(bs) == 0 {
		return 0
	}
	var v uint64
	for i, b := range bs {
		v |= uint64(b) << (8 * i)
	}
	shift := 64 - 8*len(bs)
	if shift <= 0 {
		return v
	}
	return uint64(int64(v<<shift) >> shift)
}

// zeroExtend interprets [bs] as a little-endian unsigned value.
func zeroExtend(bs []byte) uint64 {
	var v uint64
	for i, b := range bs {
		if i >= 8 {
			break
		}
		v |= uint64(b) << (8 * i)
	}
	return v
}

// splitImmPair decodes the two-immediate layout: the low three bits of
// [lenField] give the first immediate's length; the rest of the operand
// stream is the second.
func splitImmPair(lenField byte, rest []byte) (uint64, uint64) {
	lx := int(lenField & 0x07)
	if lx > len(rest) {
		lx = len(rest)
	}
	return signExtend(rest[:lx]), signExtend(rest[lx:])
}

func sext32(v uint32) uint64 {
	return uint64(int64(int32(v)))
}

func sext16(v uint16) uint64 {
	return uint64(int64(int16(v)))
}

func sext8(v uint8) uint64 {
	return uint64(int64(int8(v)))
}
