// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/jam/block"
	"github.com/luxfi/jam/state"
	"github.com/luxfi/jam/statetest"
	"github.com/luxfi/jam/stf"
)

func newTestChain(t *testing.T, e *statetest.Env, db database.Database) *Chain {
	t.Helper()
	c, err := New(Config{
		Params:   e.Params,
		DB:       db,
		Log:      log.NewNoOpLogger(),
		Registry: prometheus.NewRegistry(),
		Ring:     e.Verifier,
		Seal:     e.Verifier,
		Genesis:  e.State,
	})
	require.NoError(t, err)
	return c
}

func TestBootstrapAndApply(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newTestChain(t, e, memdb.New())

	slot, _ := c.Status()
	require.Equal(state.TimeSlot(0), slot)

	b := e.NextBlock(c.State(), 1, block.Extrinsic{})
	require.NoError(c.ApplyBlock(b))

	slot, _ = c.Status()
	require.Equal(state.TimeSlot(1), slot)
}

func TestRejectedBlockKeepsState(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c := newTestChain(t, e, memdb.New())

	b := e.NextBlock(c.State(), 1, block.Extrinsic{})
	b.Header.ParentHash[0] ^= 0xFF
	err := c.ApplyBlock(b)
	require.ErrorIs(err, &stf.TransitionError{Code: stf.CodeBadHeader})

	slot, _ := c.Status()
	require.Equal(state.TimeSlot(0), slot)
}

func TestResumeFromPersistedState(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	db := memdb.New()
	c := newTestChain(t, e, db)

	b := e.NextBlock(c.State(), 1, block.Extrinsic{})
	require.NoError(c.ApplyBlock(b))
	_, rootBefore := c.Status()

	// Reopen over the same database without a genesis.
	reopened, err := New(Config{
		Params:   e.Params,
		DB:       db,
		Log:      log.NewNoOpLogger(),
		Registry: prometheus.NewRegistry(),
		Ring:     e.Verifier,
		Seal:     e.Verifier,
	})
	require.NoError(err)

	slot, root := reopened.Status()
	require.Equal(state.TimeSlot(1), slot)
	require.Equal(rootBefore, root)

	// The resumed chain keeps extending.
	b2 := e.NextBlock(reopened.State(), 2, block.Extrinsic{})
	require.NoError(reopened.ApplyBlock(b2))
}

func TestNoGenesisNoState(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	_, err := New(Config{
		Params:   e.Params,
		DB:       memdb.New(),
		Log:      log.NewNoOpLogger(),
		Registry: prometheus.NewRegistry(),
		Ring:     e.Verifier,
		Seal:     e.Verifier,
	})
	require.ErrorIs(err, errNoGenesis)
}

func TestReplayYieldsSameRoots(t *testing.T) {
	require := require.New(t)

	e := statetest.NewEnv()
	c1 := newTestChain(t, e, memdb.New())

	var blocks []*block.Block
	var roots []string
	cur := c1.State()
	for slot := state.TimeSlot(1); slot <= 4; slot++ {
		b := e.NextBlock(cur, slot, block.Extrinsic{})
		require.NoError(c1.ApplyBlock(b))
		blocks = append(blocks, b)
		cur = c1.State()
		_, root := c1.Status()
		roots = append(roots, root.String())
	}

	// Replaying the same block sequence on a fresh chain reproduces the
	// same root sequence.
	c2 := newTestChain(t, e, memdb.New())
	for i, b := range blocks {
		require.NoError(c2.ApplyBlock(b))
		_, root := c2.Status()
		require.Equal(roots[i], root.String())
	}
}
