// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hashing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashersDisagree(t *testing.T) {
	require := require.New(t)

	var h Hasher
	msg := []byte("availability")
	require.NotEqual(h.H(msg), h.HK(msg))
}

func TestConcatenationEquivalence(t *testing.T) {
	require := require.New(t)

	var h Hasher
	require.Equal(h.H([]byte("ab"), []byte("cd")), h.H([]byte("abcd")))
	require.Equal(h.HK([]byte("ab"), []byte("cd")), h.HK([]byte("abcd")))
}

func TestSigningMessage(t *testing.T) {
	require := require.New(t)

	msg := SigningMessage(DomainTicketSeal, []byte{0x01, 0x02})
	require.Equal([]byte("jam_ticket_seal\x01\x02"), msg)
}
