// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

// Mainnet returns the mainnet-calibrated constants.
func Mainnet() Params {
	return Params{
		SlotPeriod:  6,
		EpochLength: 600,
		TicketTail:  500,

		Cores:      341,
		Validators: 1023,

		HistoryDepth:   8,
		LookupWindow:   14400,
		PreimageExpiry: 19200,

		GasIsAuthorized: 50_000_000,
		GasAccumulate:   10_000_000,
		GasRefine:       5_000_000_000,
		GasTotalAccum:   3_500_000_000,

		MaxPackageItems:  16,
		MaxDependencies:  8,
		MaxTicketsPerExt: 16,
		TicketAttempts:   2,
		AuthPoolSize:     8,
		AuthQueueSize:    80,
		RotationPeriod:   10,
		MaxReportAge:     5,
		TransferMemoSize: 128,

		MaxWorkReportOutput: 49_152,
		MaxInputSize:        13_794_305,

		BaseDeposit:  10,
		ByteDeposit:  1,
		BaseMin:      100,
		ErasurePiece: 684,
		SegmentSize:  4104,

		PageSize:     4096,
		ZoneSize:     65536,
		MaxPVMInput:  1 << 24,
		DynAddrAlign: 2,
	}
}

// Tiny returns a shrunk network for tests: six validators, two cores,
// twelve-slot epochs. The transition logic is identical; only the
// cardinalities differ.
func Tiny() Params {
	p := Mainnet()
	p.EpochLength = 12
	p.TicketTail = 2
	p.Cores = 2
	p.Validators = 6
	p.HistoryDepth = 4
	p.LookupWindow = 24
	p.PreimageExpiry = 32
	p.MaxTicketsPerExt = 3
	p.TicketAttempts = 3
	p.AuthPoolSize = 4
	p.AuthQueueSize = 10
	p.RotationPeriod = 4
	return p
}
