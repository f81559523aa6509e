// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pvm implements the deterministic metered virtual machine that
// executes service code. The machine is a plain state stepper: Step
// decodes and executes one instruction, and the enclosing dispatcher
// handles host-call suspensions, so no coroutine machinery is involved.
package pvm

import "errors"

// Status is the machine condition after a step.
type Status uint8

const (
	// Continue means the machine can take another step
	Continue Status = iota

	// Halt is the graceful termination state
	Halt

	// Panic is the trap state: an invalid instruction, address or jump
	Panic

	// OutOfGas means the gas counter went negative
	OutOfGas

	// PageFault means an access violated page permissions; the faulting
	// page base is recorded on the machine
	PageFault

	// Host means the machine suspended on an ecalli and awaits the host
	// handler before resuming
	Host
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "continue"
	case Halt:
		return "halt"
	case Panic:
		return "panic"
	case OutOfGas:
		return "out-of-gas"
	case PageFault:
		return "page-fault"
	case Host:
		return "host"
	default:
		return "invalid"
	}
}

// Terminal reports whether no further steps may be taken.
func (s Status) Terminal() bool {
	return s == Halt || s == Panic || s == OutOfGas || s == PageFault
}

const (
	// NumRegs is the register count.
	NumRegs = 13

	// SPReg is the stack-pointer register index used by [sp+imm]
	// addressing.
	SPReg = 1

	// RetReg receives host-call results.
	RetReg = 7

	// OutAddrReg and OutLenReg designate the output span read back on a
	// graceful halt.
	OutAddrReg = 8
	OutLenReg  = 9

	// HostDiscReg discriminates fetch-style host calls.
	HostDiscReg = 11

	// HaltAddress is the jump sentinel that terminates execution
	// gracefully.
	HaltAddress = 0xFFFF_0000

	// StepCap bounds any single invocation regardless of gas.
	StepCap = 100_000_000
)

var (
	// ErrBadProgram is returned when a program blob cannot be
	// deserialized.
	ErrBadProgram = errors.New("pvm: bad program blob")

	// ErrSegmentTooLarge is returned when a blob segment exceeds its
	// zone.
	ErrSegmentTooLarge = errors.New("pvm: segment exceeds zone")

	// ErrBadEntry is returned when an entry index has no jump-table slot.
	ErrBadEntry = errors.New("pvm: bad entry point")
)
