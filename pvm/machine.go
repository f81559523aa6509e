// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pvm

import (
	"math/bits"
)

// Machine is one PVM execution context.
type Machine struct {
	Regs   [NumRegs]uint64
	PC     uint32
	Gas    int64
	Status Status

	// HostID holds the pending host-call identifier while Status is Host.
	HostID uint32

	// FaultBase is the faulting page base while Status is PageFault.
	FaultBase uint32

	Memory  *Memory
	Program *Program

	// Exports collects blobs the guest published through the export host
	// call.
	Exports [][]byte
}

// NewMachine prepares a machine at [entry] with [gas] and an address
// space initialized from the program segments and [args].
func NewMachine(p *Program, entry uint32, gas int64, args []byte) *Machine {
	m := &Machine{
		PC:      entry,
		Gas:     gas,
		Status:  Continue,
		Memory:  p.InitMemory(args),
		Program: p,
	}
	m.Regs[SPReg] = stackTop
	m.Regs[HostDiscReg] = 0
	// Argument span convention: address and length arrive in the output
	// registers, mirrored back on halt.
	m.Regs[OutAddrReg] = inputBase
	m.Regs[OutLenReg] = uint64(len(args))
	if len(args) > MaxInput {
		m.Regs[OutLenReg] = MaxInput
	}
	return m
}

func (m *Machine) fault(err *AccessError) {
	m.Status = err.Status
	if err.Status == PageFault {
		m.FaultBase = err.FaultBase
		m.PC = err.FaultBase
	}
}

// Step executes one instruction. It is a no-op unless Status is Continue.
func (m *Machine) Step() {
	if m.Status != Continue {
		return
	}
	m.Gas--
	if m.Gas < 0 {
		m.Status = OutOfGas
		return
	}
	code := m.Program.Code
	if m.PC >= uint32(len(code)) || !m.Program.maskBit(m.PC) {
		m.Status = Panic
		return
	}
	op := code[m.PC]
	skip := m.Program.skip(m.PC)
	ops := code[m.PC+1 : m.PC+1+skip]
	next := m.PC + 1 + skip

	switch op {
	case OpTrap:
		m.Status = Panic
		return
	case OpFallthrough:

	case OpEcalli:
		m.HostID = uint32(zeroExtend(ops))
		m.Status = Host
		m.PC = next
		return

	case OpJump:
		m.jumpTo(uint32(zeroExtend(ops)))
		return
	case OpJumpInd:
		ra, _ := regPair(first(ops))
		m.jumpDynamic(uint32(m.Regs[ra] + signExtend(rest(ops))))
		return
	case OpLoadImm:
		ra, _ := regPair(first(ops))
		m.Regs[ra] = signExtend(rest(ops))
	case OpLoadImm64:
		ra, _ := regPair(first(ops))
		m.Regs[ra] = zeroExtend(rest(ops))
	case OpLoadImmJump:
		b := first(ops)
		ra := clampReg(b & 0x0F)
		imm, target := splitImmPair(b>>4, rest(ops))
		m.Regs[ra] = imm
		m.jumpTo(uint32(target))
		return
	case OpLoadImmJumpInd:
		ra, rb := regPair(first(ops))
		imm, off := splitImmPair(first(rest(ops)), rest(rest(ops)))
		base := m.Regs[rb]
		m.Regs[ra] = imm
		m.jumpDynamic(uint32(base + off))
		return
	case OpSbrk:
		ra, rb := regPair(first(ops))
		old, err := m.Memory.Sbrk(uint32(m.Regs[rb]))
		if err != nil {
			m.fault(err)
			return
		}
		m.Regs[ra] = uint64(old)

	case OpBranchEqImm, OpBranchNeImm, OpBranchLtUImm, OpBranchLeUImm,
		OpBranchGeUImm, OpBranchGtUImm, OpBranchLtSImm, OpBranchLeSImm,
		OpBranchGeSImm, OpBranchGtSImm:
		b := first(ops)
		ra := clampReg(b & 0x0F)
		imm, off := splitImmPair(b>>4, rest(ops))
		if branchTaken(op-OpBranchEqImm, m.Regs[ra], imm) {
			m.jumpTo(uint32(uint64(m.PC) + off))
			return
		}

	case OpBranchEq, OpBranchNe, OpBranchLtU, OpBranchLeU, OpBranchGeU,
		OpBranchGtU, OpBranchLtS, OpBranchLeS, OpBranchGeS, OpBranchGtS:
		ra, rb := regPair(first(ops))
		off := signExtend(rest(ops))
		if branchTaken(op-OpBranchEq, m.Regs[ra], m.Regs[rb]) {
			m.jumpTo(uint32(uint64(m.PC) + off))
			return
		}

	case OpLoadU8Abs, OpLoadI8Abs, OpLoadU16Abs, OpLoadI16Abs,
		OpLoadU32Abs, OpLoadI32Abs, OpLoadU64Abs:
		ra, _ := regPair(first(ops))
		addr := uint32(signExtend(rest(ops)))
		if !m.load(op-OpLoadU8Abs, ra, addr) {
			return
		}
	case OpLoadU8Ind, OpLoadI8Ind, OpLoadU16Ind, OpLoadI16Ind,
		OpLoadU32Ind, OpLoadI32Ind, OpLoadU64Ind:
		ra, rb := regPair(first(ops))
		addr := uint32(m.Regs[rb] + signExtend(rest(ops)))
		if !m.load(op-OpLoadU8Ind, ra, addr) {
			return
		}
	case OpLoadU8Sp, OpLoadI8Sp, OpLoadU16Sp, OpLoadI16Sp,
		OpLoadU32Sp, OpLoadI32Sp, OpLoadU64Sp:
		ra, _ := regPair(first(ops))
		addr := uint32(m.Regs[SPReg] + signExtend(rest(ops)))
		if !m.load(op-OpLoadU8Sp, ra, addr) {
			return
		}

	case OpStoreU8Abs, OpStoreU16Abs, OpStoreU32Abs, OpStoreU64Abs:
		ra, _ := regPair(first(ops))
		addr := uint32(signExtend(rest(ops)))
		if !m.store(op-OpStoreU8Abs, m.Regs[ra], addr) {
			return
		}
	case OpStoreU8Ind, OpStoreU16Ind, OpStoreU32Ind, OpStoreU64Ind:
		ra, rb := regPair(first(ops))
		addr := uint32(m.Regs[rb] + signExtend(rest(ops)))
		if !m.store(op-OpStoreU8Ind, m.Regs[ra], addr) {
			return
		}
	case OpStoreU8Sp, OpStoreU16Sp, OpStoreU32Sp, OpStoreU64Sp:
		ra, _ := regPair(first(ops))
		addr := uint32(m.Regs[SPReg] + signExtend(rest(ops)))
		if !m.store(op-OpStoreU8Sp, m.Regs[ra], addr) {
			return
		}

	case OpStoreImmU8Abs, OpStoreImmU16Abs, OpStoreImmU32Abs, OpStoreImmU64Abs:
		addr64, value := splitImmPair(first(ops), rest(ops))
		if !m.store(op-OpStoreImmU8Abs, value, uint32(addr64)) {
			return
		}
	case OpStoreImmU8Ind, OpStoreImmU16Ind, OpStoreImmU32Ind, OpStoreImmU64Ind:
		b := first(ops)
		ra := clampReg(b & 0x0F)
		off, value := splitImmPair(b>>4, rest(ops))
		addr := uint32(m.Regs[ra] + off)
		if !m.store(op-OpStoreImmU8Ind, value, addr) {
			return
		}

	default:
		if !m.alu(op, ops) {
			return
		}
	}

	m.PC = next
}

func first(bs []byte) byte {
	if len(bs) == 0 {
		return 0
	}
	return bs[0]
}

func rest(bs []byte) []byte {
	if len(bs) == 0 {
		return nil
	}
	return bs[1:]
}

func branchTaken(cond byte, a, b uint64) bool {
	switch cond {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a <= b
	case 4:
		return a >= b
	case 5:
		return a > b
	case 6:
		return int64(a) < int64(b)
	case 7:
		return int64(a) <= int64(b)
	case 8:
		return int64(a) >= int64(b)
	default:
		return int64(a) > int64(b)
	}
}

// jumpTo transfers control to a static target, which must be a marked
// instruction start.
func (m *Machine) jumpTo(target uint32) {
	if target == HaltAddress {
		m.Status = Halt
		return
	}
	if !m.Program.maskBit(target) {
		m.Status = Panic
		return
	}
	m.PC = target
}

// jumpDynamic resolves a computed address through the jump table: the
// halt sentinel terminates, anything unaligned or out of table panics.
func (m *Machine) jumpDynamic(addr uint32) {
	if addr == HaltAddress {
		m.Status = Halt
		return
	}
	align := uint32(2)
	if addr == 0 || addr%align != 0 {
		m.Status = Panic
		return
	}
	index := addr/align - 1
	target, err := m.Program.Entry(index)
	if err != nil {
		m.Status = Panic
		return
	}
	m.jumpTo(target)
}

// load widths are ordered u8, i8, u16, i16, u32, i32, u64.
func (m *Machine) load(width byte, ra int, addr uint32) bool {
	sizes := [...]uint32{1, 1, 2, 2, 4, 4, 8}
	bs, err := m.Memory.Read(addr, sizes[width])
	if err != nil {
		m.fault(err)
		return false
	}
	v := zeroExtend(bs)
	switch width {
	case 1:
		v = sext8(uint8(v))
	case 3:
		v = sext16(uint16(v))
	case 5:
		v = sext32(uint32(v))
	}
	m.Regs[ra] = v
	return true
}

// store widths are ordered u8, u16, u32, u64.
func (m *Machine) store(width byte, value uint64, addr uint32) bool {
	sizes := [...]int{1, 2, 4, 8}
	bs := make([]byte, sizes[width])
	for i := range bs {
		bs[i] = byte(value >> (8 * i))
	}
	if err := m.Memory.Write(addr, bs); err != nil {
		m.fault(err)
		return false
	}
	return true
}

// alu executes the arithmetic, logic and unary groups. It reports false
// only when the opcode is unknown, which panics the machine.
func (m *Machine) alu(op byte, ops []byte) bool {
	switch {
	case op >= OpAdd32 && op <= OpMulUpperSU:
		ra, rb := regPair(first(ops))
		rd := clampReg(first(rest(ops)) & 0x0F)
		m.Regs[rd] = binaryOp(op, m.Regs[ra], m.Regs[rb], m.Regs[rd])
		return true
	case op >= OpAddImm32 && op <= OpCmovNzImm:
		ra, rd := regPair(first(ops))
		imm := signExtend(rest(ops))
		m.Regs[rd] = immOp(op, m.Regs[ra], imm, m.Regs[rd])
		return true
	case op >= OpCountSetBits64 && op <= OpReverseBytes:
		ra, rd := regPair(first(ops))
		m.Regs[rd] = unaryOp(op, m.Regs[ra])
		return true
	default:
		m.Status = Panic
		return false
	}
}

func binaryOp(op byte, a, b, d uint64) uint64 {
	switch op {
	case OpAdd32:
		return sext32(uint32(a) + uint32(b))
	case OpAdd64:
		return a + b
	case OpSub32:
		return sext32(uint32(a) - uint32(b))
	case OpSub64:
		return a - b
	case OpMul32:
		return sext32(uint32(a) * uint32(b))
	case OpMul64:
		return a * b
	case OpDivU32:
		if uint32(b) == 0 {
			return ^uint64(0)
		}
		return sext32(uint32(a) / uint32(b))
	case OpDivU64:
		if b == 0 {
			return ^uint64(0)
		}
		return a / b
	case OpDivS32:
		x, y := int32(a), int32(b)
		switch {
		case y == 0:
			return ^uint64(0)
		case x == -1<<31 && y == -1:
			return sext32(uint32(x))
		}
		return sext32(uint32(x / y))
	case OpDivS64:
		x, y := int64(a), int64(b)
		switch {
		case y == 0:
			return ^uint64(0)
		case x == -1<<63 && y == -1:
			return uint64(x)
		}
		return uint64(x / y)
	case OpRemU32:
		if uint32(b) == 0 {
			return sext32(uint32(a))
		}
		return sext32(uint32(a) % uint32(b))
	case OpRemU64:
		if b == 0 {
			return a
		}
		return a % b
	case OpRemS32:
		x, y := int32(a), int32(b)
		switch {
		case y == 0:
			return sext32(uint32(x))
		case x == -1<<31 && y == -1:
			return 0
		}
		return sext32(uint32(x % y))
	case OpRemS64:
		x, y := int64(a), int64(b)
		switch {
		case y == 0:
			return a
		case x == -1<<63 && y == -1:
			return 0
		}
		return uint64(x % y)
	case OpAnd:
		return a & b
	case OpOr:
		return a | b
	case OpXor:
		return a ^ b
	case OpAndInv:
		return a &^ b
	case OpOrInv:
		return a | ^b
	case OpXnor:
		return ^(a ^ b)
	case OpShloL32:
		return sext32(uint32(a) << (b % 32))
	case OpShloL64:
		return a << (b % 64)
	case OpShloR32:
		return sext32(uint32(a) >> (b % 32))
	case OpShloR64:
		return a >> (b % 64)
	case OpSharR32:
		return uint64(int64(int32(a) >> (b % 32)))
	case OpSharR64:
		return uint64(int64(a) >> (b % 64))
	case OpRotL32:
		return sext32(bits.RotateLeft32(uint32(a), int(b%32)))
	case OpRotL64:
		return bits.RotateLeft64(a, int(b%64))
	case OpRotR32:
		return sext32(bits.RotateLeft32(uint32(a), -int(b%32)))
	case OpRotR64:
		return bits.RotateLeft64(a, -int(b%64))
	case OpSetLtU:
		return boolToReg(a < b)
	case OpSetLtS:
		return boolToReg(int64(a) < int64(b))
	case OpSetGtU:
		return boolToReg(a > b)
	case OpSetGtS:
		return boolToReg(int64(a) > int64(b))
	case OpCmovIz:
		if b == 0 {
			return a
		}
		return d
	case OpCmovNz:
		if b != 0 {
			return a
		}
		return d
	case OpMin:
		if int64(a) < int64(b) {
			return a
		}
		return b
	case OpMinU:
		if a < b {
			return a
		}
		return b
	case OpMax:
		if int64(a) > int64(b) {
			return a
		}
		return b
	case OpMaxU:
		if a > b {
			return a
		}
		return b
	case OpMulUpperSS:
		hiU, _ := bits.Mul64(a, b)
		return mulUpperSigned(int64(a), int64(b), hiU)
	case OpMulUpperUU:
		hi, _ := bits.Mul64(a, b)
		return hi
	case OpMulUpperSU:
		hiU, _ := bits.Mul64(a, b)
		hi := int64(hiU)
		if int64(a) < 0 {
			hi -= int64(b)
		}
		return uint64(hi)
	default:
		return d
	}
}

// mulUpperSigned derives the signed high word from the unsigned one:
// subtract each operand from the high word once per negative factor.
func mulUpperSigned(a, b int64, hiU uint64) uint64 {
	hi := int64(hiU)
	if a < 0 {
		hi -= b
	}
	if b < 0 {
		hi -= a
	}
	return uint64(hi)
}

func immOp(op byte, a, imm, d uint64) uint64 {
	switch op {
	case OpAddImm32:
		return sext32(uint32(a) + uint32(imm))
	case OpAddImm64:
		return a + imm
	case OpMulImm32:
		return sext32(uint32(a) * uint32(imm))
	case OpMulImm64:
		return a * imm
	case OpNegAddImm32:
		return sext32(uint32(imm) - uint32(a))
	case OpNegAddImm64:
		return imm - a
	case OpAndImm:
		return a & imm
	case OpOrImm:
		return a | imm
	case OpXorImm:
		return a ^ imm
	case OpShloLImm32:
		return sext32(uint32(a) << (imm % 32))
	case OpShloLImm64:
		return a << (imm % 64)
	case OpShloRImm32:
		return sext32(uint32(a) >> (imm % 32))
	case OpShloRImm64:
		return a >> (imm % 64)
	case OpSharRImm32:
		return uint64(int64(int32(a) >> (imm % 32)))
	case OpSharRImm64:
		return uint64(int64(a) >> (imm % 64))
	case OpRotRImm32:
		return sext32(bits.RotateLeft32(uint32(a), -int(imm%32)))
	case OpRotRImm64:
		return bits.RotateLeft64(a, -int(imm%64))
	case OpSetLtUImm:
		return boolToReg(a < imm)
	case OpSetLtSImm:
		return boolToReg(int64(a) < int64(imm))
	case OpSetGtUImm:
		return boolToReg(a > imm)
	case OpSetGtSImm:
		return boolToReg(int64(a) > int64(imm))
	case OpCmovIzImm:
		if a == 0 {
			return imm
		}
		return d
	case OpCmovNzImm:
		if a != 0 {
			return imm
		}
		return d
	default:
		return d
	}
}

func unaryOp(op byte, a uint64) uint64 {
	switch op {
	case OpCountSetBits64:
		return uint64(bits.OnesCount64(a))
	case OpCountSetBits32:
		return uint64(bits.OnesCount32(uint32(a)))
	case OpLeadingZeroBits64:
		return uint64(bits.LeadingZeros64(a))
	case OpLeadingZeroBits32:
		return uint64(bits.LeadingZeros32(uint32(a)))
	case OpTrailingZeroBits64:
		return uint64(bits.TrailingZeros64(a))
	case OpTrailingZeroBits32:
		return uint64(bits.TrailingZeros32(uint32(a)))
	case OpSignExtend8:
		return sext8(uint8(a))
	case OpSignExtend16:
		return sext16(uint16(a))
	case OpZeroExtend16:
		return uint64(uint16(a))
	case OpReverseBytes:
		return bits.ReverseBytes64(a)
	default:
		return a
	}
}

func boolToReg(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
