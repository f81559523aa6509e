// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pvm

// Host-call identifiers. The refine set is available in every phase; the
// accumulate set mutates service state and is only wired during
// accumulation.
const (
	HostFetch    uint32 = 0
	HostExport   uint32 = 1
	HostInfo     uint32 = 2
	HostRead     uint32 = 3
	HostWrite    uint32 = 4
	HostLookup   uint32 = 5
	HostGas      uint32 = 6

	HostTransfer  uint32 = 10
	HostNew       uint32 = 11
	HostUpgrade   uint32 = 12
	HostBless     uint32 = 13
	HostAssign    uint32 = 14
	HostDesignate uint32 = 15
	HostSolicit   uint32 = 16
	HostForget    uint32 = 17
)

// HostResult tells the run loop what a handler did.
type HostResult struct {
	// Ret is written to the return register.
	Ret uint64

	// GasUsed is the handler surcharge, charged on top of the step cost.
	GasUsed int64

	// Terminate stops execution with the given status when non-Continue.
	Terminate Status
}

// HostHandler dispatches suspended host calls. Implementations inspect
// and mutate registers and memory through the machine, then return the
// result to resume with. An unknown identifier must return a zero
// HostResult: the call then behaves as a no-op returning 0.
type HostHandler interface {
	Call(m *Machine, id uint32) HostResult
}

// NopHost ignores every host call.
type NopHost struct{}

var _ HostHandler = NopHost{}

func (NopHost) Call(*Machine, uint32) HostResult {
	return HostResult{}
}
