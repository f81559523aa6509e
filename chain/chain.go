// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chain owns a node's view of the chain: the current state, the
// column store persisting it, and the metered, logged path feeding blocks
// through the transition function.
package chain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/jam/block"
	"github.com/luxfi/jam/codec"
	"github.com/luxfi/jam/config"
	"github.com/luxfi/jam/hashing"
	"github.com/luxfi/jam/keys"
	"github.com/luxfi/jam/state"
	"github.com/luxfi/jam/stf"
	"github.com/luxfi/jam/store"
)

var (
	stateKey = []byte("state")
	headKey  = []byte("head")

	errNoGenesis = errors.New("chain: no persisted state and no genesis")
)

// Config assembles a chain's collaborators.
type Config struct {
	Params   config.Params
	DB       database.Database
	Log      log.Logger
	Registry prometheus.Registerer
	Ring     keys.RingVerifier
	Seal     keys.SealVerifier

	// Genesis seeds a fresh database; ignored when state is persisted.
	Genesis *state.State

	// WallTime bounds header timeslots; nil disables the check for
	// replay.
	WallTime func() uint64
}

// Chain is the block consumer.
type Chain struct {
	mu      sync.RWMutex
	log     log.Logger
	store   *store.Store
	metrics *metrics
	hasher  hashing.Hasher
	stf     stf.Context
	state   *state.State
}

// New opens the chain: persisted state wins, otherwise the genesis is
// installed and committed.
func New(cfg Config) (*Chain, error) {
	if err := cfg.Params.Verify(); err != nil {
		return nil, err
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}
	c := &Chain{
		log:     cfg.Log,
		store:   store.New(cfg.DB, cfg.Log),
		metrics: m,
	}
	c.stf = stf.Context{
		Params:   cfg.Params,
		Hasher:   &c.hasher,
		Ring:     cfg.Ring,
		Seal:     cfg.Seal,
		WallTime: cfg.WallTime,
	}

	persisted, ok, err := c.store.Get(store.ColumnRecent, stateKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stf.CodeStateBackend, err)
	}
	switch {
	case ok:
		st := &state.State{}
		if err := codec.Decode(persisted, st); err != nil {
			return nil, fmt.Errorf("chain: corrupt persisted state: %w", err)
		}
		c.state = st
		c.log.Info("chain resumed", "slot", st.Timeslot)
	case cfg.Genesis != nil:
		c.state = cfg.Genesis.Clone()
		if err := c.persist(); err != nil {
			return nil, err
		}
		c.log.Info("chain bootstrapped from genesis")
	default:
		return nil, errNoGenesis
	}
	c.metrics.headSlot.Set(float64(c.state.Timeslot))
	return c, nil
}

// State returns the current head state. Callers must not mutate it.
func (c *Chain) State() *state.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status reports the head timeslot and state root.
func (c *Chain) Status() (state.TimeSlot, ids.ID) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Timeslot, c.state.Root(&c.hasher)
}

// ApplyBlock feeds one block through the transition and persists the
// result atomically. A rejected block leaves both state and store
// untouched.
func (c *Chain) ApplyBlock(b *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := c.stf.Apply(c.state, b)
	if err != nil {
		c.metrics.transitionErrors.Inc()
		c.log.Warn("block rejected",
			"slot", b.Header.Timeslot,
			"error", err,
		)
		return err
	}

	prevState := c.state
	c.state = next
	if err := c.persist(); err != nil {
		c.state = prevState
		c.store.Rollback()
		c.metrics.transitionErrors.Inc()
		return fmt.Errorf("%s: %w", stf.CodeStateBackend, err)
	}

	c.metrics.blocksApplied.Inc()
	c.metrics.headSlot.Set(float64(next.Timeslot))
	if delta := sumAccGas(next) - sumAccGas(prevState); delta > 0 {
		c.metrics.accumulationGas.Add(float64(delta))
	}
	c.log.Info("block applied",
		"slot", next.Timeslot,
		"services", len(next.Services),
		"outputs", len(next.LastOutputs),
	)
	return nil
}

// persist writes the canonical state and the per-column views, then
// commits the buffer as one batch.
func (c *Chain) persist() error {
	if err := c.store.Put(store.ColumnRecent, stateKey, codec.Encode(c.state)); err != nil {
		return err
	}

	head := codec.NewEncoder()
	head.Uint32(uint32(c.state.Timeslot))
	root := c.state.Root(&c.hasher)
	head.Raw(root[:])
	if err := c.store.Put(store.ColumnRecent, headKey, head.Bytes()); err != nil {
		return err
	}

	for sid, acct := range c.state.Services {
		var key [4]byte
		binary.LittleEndian.PutUint32(key[:], uint32(sid))
		if err := c.store.Put(store.ColumnService, key[:], codec.Encode(acct)); err != nil {
			return err
		}
	}
	for core := range c.state.AuthPools {
		var key [2]byte
		binary.LittleEndian.PutUint16(key[:], uint16(core))
		e := codec.NewEncoder()
		e.Length(len(c.state.AuthPools[core]))
		for _, a := range c.state.AuthPools[core] {
			e.Raw(a[:])
		}
		if err := c.store.Put(store.ColumnAuth, key[:], e.Bytes()); err != nil {
			return err
		}
	}
	if err := c.store.Put(store.ColumnValidators, []byte("current"), codec.Encode(&c.state.Current)); err != nil {
		return err
	}
	if err := c.store.Put(store.ColumnStats, []byte("epoch"), codec.Encode(&c.state.Statistics)); err != nil {
		return err
	}
	return c.store.Commit()
}

func sumAccGas(st *state.State) uint64 {
	var total uint64
	for _, s := range st.Statistics.Services {
		total += s.AccumulateGas
	}
	return total
}

// Close releases the store.
func (c *Chain) Close() error {
	return c.store.Close()
}
