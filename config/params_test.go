// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresetsVerify(t *testing.T) {
	require := require.New(t)

	require.NoError(Mainnet().Verify())
	require.NoError(Tiny().Verify())
}

func TestTicketBoundary(t *testing.T) {
	require := require.New(t)

	p := Mainnet()
	// The last open slot phase is E-Y-1; phase E-Y is shut.
	require.False(p.TicketsClosed(p.EpochLength - p.TicketTail - 1))
	require.True(p.TicketsClosed(p.EpochLength - p.TicketTail))
	require.True(p.TicketsClosed(p.EpochLength - 1))
	require.False(p.TicketsClosed(p.EpochLength)) // next epoch reopens
}

func TestAvailabilityQuorum(t *testing.T) {
	require := require.New(t)

	require.Equal(683, Mainnet().AvailabilityQuorum())
	require.Equal(5, Tiny().AvailabilityQuorum())
}

func TestVerifyRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero epoch", func(p *Params) { p.EpochLength = 0 }},
		{"tail covers epoch", func(p *Params) { p.TicketTail = p.EpochLength }},
		{"zero cores", func(p *Params) { p.Cores = 0 }},
		{"zone not page aligned", func(p *Params) { p.ZoneSize = p.PageSize + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			p := Mainnet()
			tt.mutate(&p)
			require.ErrorIs(p.Verify(), ErrInvalidParams)
		})
	}
}
