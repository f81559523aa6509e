// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pvm

// Outcome is the result of one complete invocation.
type Outcome struct {
	Status Status
	Output []byte

	// GasRemaining is never negative; the deficit of the final step is
	// forgiven in the report.
	GasRemaining int64
}

// Run steps the machine to a terminal status, dispatching host calls
// through [host]. A step budget of min(gas, StepCap) bounds execution
// even if gas accounting were ever subverted by a zero-cost loop.
func Run(m *Machine, host HostHandler) Outcome {
	if host == nil {
		host = NopHost{}
	}
	steps := m.Gas
	if steps > StepCap {
		steps = StepCap
	}
	for ; steps >= 0 && !m.Status.Terminal(); steps-- {
		m.Step()
		if m.Status == Host {
			res := host.Call(m, m.HostID)
			m.Gas -= res.GasUsed
			if m.Gas < 0 {
				m.Status = OutOfGas
				break
			}
			if res.Terminate != Continue {
				m.Status = res.Terminate
				break
			}
			m.Regs[RetReg] = res.Ret
			m.Status = Continue
		}
	}
	if !m.Status.Terminal() {
		m.Status = OutOfGas
	}
	return m.outcome()
}

func (m *Machine) outcome() Outcome {
	out := Outcome{Status: m.Status, GasRemaining: m.Gas}
	if out.GasRemaining < 0 {
		out.GasRemaining = 0
	}
	if m.Status == Halt {
		addr := uint32(m.Regs[OutAddrReg])
		n := uint32(m.Regs[OutLenReg])
		if bs, err := m.Memory.Read(addr, n); err == nil {
			out.Output = bs
		}
	}
	return out
}

// Invoke parses [blob], enters it at jump-table [entry] and runs to
// completion.
func Invoke(blob []byte, entry uint32, gas int64, args []byte, host HostHandler) (Outcome, error) {
	p, err := ParseProgram(blob)
	if err != nil {
		return Outcome{}, err
	}
	pc, err := p.Entry(entry)
	if err != nil {
		return Outcome{}, err
	}
	m := NewMachine(p, pc, gas, args)
	return Run(m, host), nil
}

// Entry-point indexes by convention: the jump table's leading slots name
// the service export used for each phase.
const (
	EntryIsAuthorized uint32 = 0
	EntryRefine       uint32 = 1
	EntryAccumulate   uint32 = 2
	EntryOnTransfer   uint32 = 3
)
