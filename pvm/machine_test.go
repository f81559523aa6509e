// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pvm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// asm builds a code stream and its opcode mask.
type asm struct {
	code  []byte
	marks []int
}

func (a *asm) op(opcode byte, operands ...byte) *asm {
	a.marks = append(a.marks, len(a.code))
	a.code = append(a.code, opcode)
	a.code = append(a.code, operands...)
	return a
}

func (a *asm) program() *Program {
	p := &Program{Code: a.code, StackPages: 4}
	mask := make([]byte, (len(a.code)+7)/8)
	for _, m := range a.marks {
		mask[m/8] |= 1 << (m % 8)
	}
	p.SetMask(mask)
	return p
}

func run(t *testing.T, a *asm, gas int64) (*Machine, Outcome) {
	t.Helper()
	p := a.program()
	m := NewMachine(p, 0, gas, nil)
	return m, Run(m, nil)
}

// haltOps is a jump_ind through r0 to the halt sentinel.
func haltOps() []byte {
	return []byte{0x00, 0x00, 0x00, 0xFF, 0xFF}
}

func TestArithmeticAndHalt(t *testing.T) {
	require := require.New(t)

	a := &asm{}
	a.op(OpLoadImm, 0x02, 5)        // r2 = 5
	a.op(OpLoadImm, 0x03, 7)        // r3 = 7
	a.op(OpAdd64, 0x32, 0x04)       // r4 = r2 + r3
	a.op(OpJumpInd, haltOps()...)   // halt

	m, out := run(t, a, 100)
	require.Equal(Halt, out.Status)
	require.Equal(uint64(12), m.Regs[4])
	require.Equal(int64(96), out.GasRemaining)
}

func TestHaltOutputSpan(t *testing.T) {
	require := require.New(t)

	a := &asm{}
	// Place 0x41,0x42,0x43 in the read-write zone.
	a.op(OpStoreImmU8Abs, 0x03, 0x00, 0x00, 0x02, 0x41)
	a.op(OpStoreImmU8Abs, 0x03, 0x01, 0x00, 0x02, 0x42)
	a.op(OpStoreImmU8Abs, 0x03, 0x02, 0x00, 0x02, 0x43)
	a.op(OpLoadImm, 0x08, 0x00, 0x00, 0x02, 0x00) // r8 = 0x20000
	a.op(OpLoadImm, 0x09, 3)                      // r9 = 3
	a.op(OpJumpInd, haltOps()...)

	_, out := run(t, a, 100)
	require.Equal(Halt, out.Status)
	require.Equal([]byte{0x41, 0x42, 0x43}, out.Output)
}

func TestOutOfGas(t *testing.T) {
	require := require.New(t)

	a := &asm{}
	for i := 0; i < 10_000; i++ {
		a.op(OpAnd, 0x00, 0x00) // and r0, r0 -> r0
	}
	_, out := run(t, a, 100)
	require.Equal(OutOfGas, out.Status)
	require.Empty(out.Output)
	require.Zero(out.GasRemaining)
}

func TestGuardedZonePanics(t *testing.T) {
	require := require.New(t)

	a := &asm{}
	a.op(OpLoadU8Abs, 0x02, 0x05) // r2 = mem[5]
	_, out := run(t, a, 100)
	require.Equal(Panic, out.Status)
}

func TestPageFaultOnReadOnlyWrite(t *testing.T) {
	require := require.New(t)

	a := &asm{}
	// Store into the read-only zone.
	a.op(OpStoreImmU8Abs, 0x03, 0x00, 0x00, 0x01, 0x99)
	m, out := run(t, a, 100)
	require.Equal(PageFault, out.Status)
	require.Equal(uint32(roBase), m.FaultBase)
	require.Equal(uint32(roBase), m.PC)
}

func TestJumpIndSemantics(t *testing.T) {
	require := require.New(t)

	// Unaligned target panics.
	a := &asm{}
	a.op(OpLoadImm, 0x02, 0x03)   // r2 = 3
	a.op(OpJumpInd, 0x02)         // jump r2+0
	_, out := run(t, a, 100)
	require.Equal(Panic, out.Status)

	// The halt sentinel halts.
	a = &asm{}
	a.op(OpJumpInd, haltOps()...)
	_, out = run(t, a, 100)
	require.Equal(Halt, out.Status)

	// An aligned address indexes the jump table.
	a = &asm{}
	a.op(OpLoadImm, 0x02, 0x02)   // r2 = 2 -> table index 0
	a.op(OpJumpInd, 0x02)
	a.op(OpTrap)
	a.op(OpLoadImm, 0x03, 0x2A)   // target: r3 = 42
	a.op(OpJumpInd, haltOps()...)
	p := a.program()
	p.JumpTable = []uint32{uint32(a.marks[3])}
	m := NewMachine(p, 0, 100, nil)
	outcome := Run(m, nil)
	require.Equal(Halt, outcome.Status)
	require.Equal(uint64(42), m.Regs[3])
}

func TestDivisionEdges(t *testing.T) {
	tests := []struct {
		name string
		op   byte
		a, b uint64
		want uint64
	}{
		{"div u64 by zero", OpDivU64, 7, 0, ^uint64(0)},
		{"div u32 by zero", OpDivU32, 7, 0, ^uint64(0)},
		{"rem u64 by zero", OpRemU64, 7, 0, 7},
		{"div s64 overflow", OpDivS64, 1 << 63, ^uint64(0), 1 << 63},
		{"rem s64 overflow", OpRemS64, 1 << 63, ^uint64(0), 0},
		{"div s32 overflow", OpDivS32, 0x80000000, 0xFFFFFFFF, 0xFFFFFFFF80000000},
		{"rem s32 by zero", OpRemS32, 0xFFFFFFFF, 0, ^uint64(0)},
		{"plain div", OpDivU64, 42, 5, 8},
		{"plain srem", OpRemS64, ^uint64(7) + 1, 5, ^uint64(2) + 1}, // -7 rem 5 = -2
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			require.Equal(tt.want, binaryOp(tt.op, tt.a, tt.b, 0))
		})
	}
}

func TestWidthSemantics(t *testing.T) {
	require := require.New(t)

	// 32-bit adds truncate then sign-extend.
	require.Equal(uint64(0xFFFFFFFF80000000), binaryOp(OpAdd32, 0x7FFFFFFF, 1, 0))
	require.Equal(uint64(0), binaryOp(OpAdd32, 0xFFFFFFFF, 1, 0))
	// Shifts mask the amount by width.
	require.Equal(uint64(2), binaryOp(OpShloL64, 1, 65, 0))
	require.Equal(uint64(1)<<33, binaryOp(OpShloL64, 1, 33, 0))
	require.Equal(uint64(0xFFFFFFFFFFFFFFFF), binaryOp(OpSharR64, 1<<63, 63, 0))
	// Rotates.
	require.Equal(uint64(1), binaryOp(OpRotL64, 1<<63, 1, 0))
	// Counting.
	require.Equal(uint64(32), unaryOp(OpCountSetBits64, 0xAAAAAAAAAAAAAAAA))
	require.Equal(uint64(64), unaryOp(OpLeadingZeroBits64, 0))
	require.Equal(uint64(0x00000000000000FF), unaryOp(OpZeroExtend16, 0x00FF))
	require.Equal(uint64(0xFFFFFFFFFFFFFF80), unaryOp(OpSignExtend8, 0x80))
	require.Equal(uint64(0x0102030405060708), unaryOp(OpReverseBytes, 0x0807060504030201))
	// Upper multiplication.
	require.Equal(uint64(0), binaryOp(OpMulUpperUU, 1<<32, 1<<31, 0))
	require.Equal(uint64(1)<<14, binaryOp(OpMulUpperUU, 1<<40, 1<<38, 0))
	require.Equal(^uint64(0), binaryOp(OpMulUpperSS, ^uint64(0), 2, 0)) // -1 * 2: high word -1
	require.Equal(^uint64(0), binaryOp(OpMulUpperSU, ^uint64(0), 1, 0)) // -1 * 1u: high word -1
}

func TestBranches(t *testing.T) {
	require := require.New(t)

	a := &asm{}
	a.op(OpLoadImm, 0x02, 5)                   // 0: r2 = 5
	a.op(OpBranchEqImm, 0x12, 5, 5)            // 3: if r2 == 5 jump +5 (to 8)
	a.op(OpTrap)                               // 7
	a.op(OpLoadImm, 0x03, 1)                   // 8: r3 = 1
	a.op(OpJumpInd, haltOps()...)              // 11

	m, out := run(t, a, 100)
	require.Equal(Halt, out.Status)
	require.Equal(uint64(1), m.Regs[3])
}

func TestHostCallRoundTrip(t *testing.T) {
	require := require.New(t)

	a := &asm{}
	a.op(OpEcalli, 0x07)          // host call 7
	a.op(OpJumpInd, haltOps()...) // resumes here

	p := a.program()
	m := NewMachine(p, 0, 100, nil)
	var gotID uint32
	out := Run(m, hostFunc(func(mm *Machine, id uint32) HostResult {
		gotID = id
		return HostResult{Ret: 1234, GasUsed: 10}
	}))
	require.Equal(Halt, out.Status)
	require.Equal(uint32(7), gotID)
	require.Equal(uint64(1234), m.Regs[RetReg])
	// Step costs plus the host surcharge.
	require.Equal(int64(100-2-10), out.GasRemaining)
}

func TestUnknownHostCallKeepsRunning(t *testing.T) {
	require := require.New(t)

	a := &asm{}
	a.op(OpLoadImm, 0x07, 9)      // r7 = 9
	a.op(OpEcalli, 0xFE)          // unknown id
	a.op(OpJumpInd, haltOps()...)

	p := a.program()
	m := NewMachine(p, 0, 100, nil)
	out := Run(m, NopHost{})
	require.Equal(Halt, out.Status)
	require.Zero(m.Regs[RetReg])
}

type hostFunc func(*Machine, uint32) HostResult

func (f hostFunc) Call(m *Machine, id uint32) HostResult {
	return f(m, id)
}

func TestSbrk(t *testing.T) {
	require := require.New(t)

	mem := NewMemory()
	mem.SetHeapPointer(heapBase + ZoneSize)

	// sbrk(0) returns the pointer unchanged.
	old, err := mem.Sbrk(0)
	require.Nil(err)
	require.Equal(uint32(heapBase+ZoneSize), old)
	require.Equal(uint32(heapBase+ZoneSize), mem.HeapPointer())

	// Growth returns the old pointer and maps writable pages.
	old, err = mem.Sbrk(10)
	require.Nil(err)
	require.Equal(uint32(heapBase+ZoneSize), old)
	require.Nil(mem.Write(old, []byte{1, 2, 3}))

	// Exceeding the cap panics.
	_, err = mem.Sbrk(1 << 31)
	require.NotNil(err)
	require.Equal(Panic, err.Status)
}

func TestSbrkInstruction(t *testing.T) {
	require := require.New(t)

	a := &asm{}
	a.op(OpLoadImm, 0x02, 16)     // r2 = 16
	a.op(OpSbrk, 0x23)            // r3 = sbrk(r2)
	a.op(OpSbrk, 0x04)            // r4 = sbrk(r0=0)
	a.op(OpJumpInd, haltOps()...)

	m, out := run(t, a, 100)
	require.Equal(Halt, out.Status)
	require.Equal(uint64(heapBase+ZoneSize), m.Regs[3])
	require.Equal(uint64(heapBase+ZoneSize+16), m.Regs[4])
}

func TestProgramBlobRoundTrip(t *testing.T) {
	require := require.New(t)

	a := &asm{}
	a.op(OpLoadImm, 0x02, 1)
	a.op(OpJumpInd, haltOps()...)
	p := a.program()
	p.RoData = []byte("ro-seg")
	p.RwData = []byte("rw-seg")
	p.StackBytes = 8192
	p.JumpTable = []uint32{0, 2}

	got, err := ParseProgram(EncodeProgram(p))
	require.NoError(err)
	require.Equal(p.RoData, got.RoData)
	require.Equal(p.RwData, got.RwData)
	require.Equal(p.JumpTable, got.JumpTable)
	require.Equal(p.Code, got.Code)

	m := NewMachine(got, 0, 100, nil)
	out := Run(m, nil)
	require.Equal(Halt, out.Status)
	require.Equal(uint64(1), m.Regs[2])
}

func TestTruncatedBlobRejected(t *testing.T) {
	require := require.New(t)

	a := &asm{}
	a.op(OpTrap)
	p := a.program()
	blob := EncodeProgram(p)
	_, err := ParseProgram(blob[:len(blob)-1])
	require.ErrorIs(err, ErrBadProgram)
}

func TestUnmarkedOpcodePanics(t *testing.T) {
	require := require.New(t)

	a := &asm{}
	a.op(OpJump, 0x01) // jump to an unmarked octet
	_, out := run(t, a, 100)
	require.Equal(Panic, out.Status)
}

func TestRunningOffCodeEndPanics(t *testing.T) {
	require := require.New(t)

	a := &asm{}
	a.op(OpFallthrough)
	_, out := run(t, a, 100)
	require.Equal(Panic, out.Status)
}
