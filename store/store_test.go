// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(memdb.New(), log.NewNoOpLogger())
}

func TestBufferedReads(t *testing.T) {
	require := require.New(t)

	s := newTestStore(t)
	_, ok, err := s.Get(ColumnService, []byte("a"))
	require.NoError(err)
	require.False(ok)

	require.NoError(s.Put(ColumnService, []byte("a"), []byte("1")))
	got, ok, err := s.Get(ColumnService, []byte("a"))
	require.NoError(err)
	require.True(ok)
	require.Equal([]byte("1"), got)

	// The buffer masks committed values and exposes deletes.
	require.NoError(s.Commit())
	require.NoError(s.Delete(ColumnService, []byte("a")))
	_, ok, err = s.Get(ColumnService, []byte("a"))
	require.NoError(err)
	require.False(ok)
}

func TestRollbackDiscards(t *testing.T) {
	require := require.New(t)

	s := newTestStore(t)
	require.NoError(s.Put(ColumnAuth, []byte("k"), []byte("v")))
	s.Rollback()

	_, ok, err := s.Get(ColumnAuth, []byte("k"))
	require.NoError(err)
	require.False(ok)
}

func TestCommitAtomicAcrossColumns(t *testing.T) {
	require := require.New(t)

	s := newTestStore(t)
	require.NoError(s.Put(ColumnService, []byte("s"), []byte("1")))
	require.NoError(s.Put(ColumnRecent, []byte("r"), []byte("2")))
	require.NoError(s.Commit())
	s.Rollback() // no-op on an empty buffer

	got, ok, err := s.Get(ColumnService, []byte("s"))
	require.NoError(err)
	require.True(ok)
	require.Equal([]byte("1"), got)

	got, ok, err = s.Get(ColumnRecent, []byte("r"))
	require.NoError(err)
	require.True(ok)
	require.Equal([]byte("2"), got)
}

func TestColumnsIsolated(t *testing.T) {
	require := require.New(t)

	s := newTestStore(t)
	require.NoError(s.Put(ColumnService, []byte("k"), []byte("svc")))
	require.NoError(s.Put(ColumnStats, []byte("k"), []byte("sts")))
	require.NoError(s.Commit())

	got, ok, err := s.Get(ColumnService, []byte("k"))
	require.NoError(err)
	require.True(ok)
	require.Equal([]byte("svc"), got)

	got, ok, err = s.Get(ColumnStats, []byte("k"))
	require.NoError(err)
	require.True(ok)
	require.Equal([]byte("sts"), got)
}

func TestPairsOverlay(t *testing.T) {
	require := require.New(t)

	s := newTestStore(t)
	require.NoError(s.Put(ColumnValidators, []byte("a"), []byte("1")))
	require.NoError(s.Put(ColumnValidators, []byte("b"), []byte("2")))
	require.NoError(s.Commit())

	require.NoError(s.Delete(ColumnValidators, []byte("a")))
	require.NoError(s.Put(ColumnValidators, []byte("c"), []byte("3")))

	got := map[string]string{}
	require.NoError(s.Pairs(ColumnValidators, func(k, v []byte) bool {
		got[string(k)] = string(v)
		return true
	}))
	require.Equal(map[string]string{"b": "2", "c": "3"}, got)
}

func TestClosedStore(t *testing.T) {
	require := require.New(t)

	s := newTestStore(t)
	require.NoError(s.Close())
	require.ErrorIs(s.Put(ColumnService, nil, nil), ErrClosed)
	_, _, err := s.Get(ColumnService, nil)
	require.ErrorIs(err, ErrClosed)
	require.NoError(s.Close())
}

func TestUnknownColumn(t *testing.T) {
	require := require.New(t)

	s := newTestStore(t)
	require.ErrorIs(s.Put(Column(250), nil, nil), ErrUnknownColumn)
}
