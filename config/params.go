// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config carries the protocol constants. Every node on a chain
// must run with an identical Params value; the constants are configuration
// rather than code so test networks can shrink epochs and validator counts
// without forking the transition logic.
package config

import "errors"

var ErrInvalidParams = errors.New("config: invalid parameters")

// Params contains the protocol constants for one chain.
type Params struct {
	// Timing
	SlotPeriod  uint32 // P: seconds per timeslot
	EpochLength uint32 // E: timeslots per epoch
	TicketTail  uint32 // Y: closing slots of an epoch that accept no tickets

	// Topology
	Cores      uint16 // C: parallel execution lanes
	Validators uint16 // V: validator-set cardinality

	// History and expiry
	HistoryDepth   uint32 // HD: retained recent blocks
	LookupWindow   uint32 // L: maximum lookup-anchor age in slots
	PreimageExpiry uint32 // D: slots before a forgotten preimage may drop

	// Gas budgets
	GasIsAuthorized uint64 // G_I
	GasAccumulate   uint64 // G_A: per-item accumulation floor
	GasRefine       uint64 // G_R
	GasTotalAccum   uint64 // G_T: per-block accumulation ceiling

	// Work limits
	MaxPackageItems  uint32 // I: work items per package
	MaxDependencies  uint32 // J: prerequisites per report
	MaxTicketsPerExt uint32 // K: tickets per extrinsic
	TicketAttempts   uint8  // N: ticket entries per validator
	AuthPoolSize     uint32 // O: authorizer pool cap per core
	AuthQueueSize    uint32 // Q: authorizer queue length per core
	RotationPeriod   uint32 // R: guarantor rotation period
	MaxReportAge     uint32 // U: slots before an unavailable report times out
	TransferMemoSize uint32 // W_T

	// Work-report size limits
	MaxWorkReportOutput uint64 // W_R: bound on trace plus digest outputs
	MaxInputSize        uint32 // W_B-derived bound on a package bundle

	// Balance constants
	BaseDeposit  uint64 // BI
	ByteDeposit  uint64 // BL
	BaseMin      uint64 // BS
	ErasurePiece uint32 // W_E
	SegmentSize  uint32 // W_G

	// PVM geometry
	PageSize     uint32 // memory page octets
	ZoneSize     uint32 // memory zone octets
	MaxPVMInput  uint32 // input region cap
	DynAddrAlign uint32 // jump-table address alignment
}

// EpochIndex returns the epoch a timeslot falls in.
func (p Params) EpochIndex(slot uint32) uint32 {
	return slot / p.EpochLength
}

// SlotPhase returns the position of a timeslot within its epoch.
func (p Params) SlotPhase(slot uint32) uint32 {
	return slot % p.EpochLength
}

// TicketsClosed reports whether ticket submission is shut for [slot]'s
// phase. Tickets are accepted only in the first E-Y slots of an epoch.
func (p Params) TicketsClosed(slot uint32) bool {
	return p.SlotPhase(slot) >= p.EpochLength-p.TicketTail
}

// AvailabilityQuorum returns the assurance count needed to deem a report
// available: ceil(2V/3) + 1.
func (p Params) AvailabilityQuorum() int {
	v := int(p.Validators)
	return (2*v+2)/3 + 1
}

// Verify checks the internal consistency of the constants.
func (p Params) Verify() error {
	switch {
	case p.SlotPeriod == 0,
		p.EpochLength == 0,
		p.TicketTail >= p.EpochLength,
		p.Cores == 0,
		p.Validators == 0,
		p.HistoryDepth == 0,
		p.AuthPoolSize == 0,
		p.AuthQueueSize == 0,
		p.TicketAttempts == 0,
		p.PageSize == 0,
		p.ZoneSize%p.PageSize != 0,
		p.DynAddrAlign == 0:
		return ErrInvalidParams
	}
	return nil
}
