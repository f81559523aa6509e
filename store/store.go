// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store implements the chain's column keyspace over a
// database.Database with two-phase update: writes buffer in memory and a
// Commit applies them through a single batch, so a rejected block leaves
// the backing store untouched.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/log"
)

// Column names the keyspaces of the chain store. Consensus never depends
// on ordering inside a column.
type Column byte

const (
	ColumnService Column = iota
	ColumnAuth
	ColumnRecent
	ColumnValidators
	ColumnStats

	numColumns
)

func (c Column) String() string {
	switch c {
	case ColumnService:
		return "SERVICE"
	case ColumnAuth:
		return "AUTH"
	case ColumnRecent:
		return "RECENT"
	case ColumnValidators:
		return "VALIDATORS"
	case ColumnStats:
		return "STATS"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrClosed        = errors.New("store: closed")
	ErrUnknownColumn = errors.New("store: unknown column")
)

type bufferKey struct {
	col Column
	key string
}

type bufferEntry struct {
	value   []byte
	deleted bool
}

// Store is the buffered column store.
type Store struct {
	mu     sync.RWMutex
	db     database.Database
	log    log.Logger
	buffer map[bufferKey]bufferEntry
	closed bool
}

// New wraps [db] with an empty buffer.
func New(db database.Database, logger log.Logger) *Store {
	return &Store{
		db:     db,
		log:    logger,
		buffer: map[bufferKey]bufferEntry{},
	}
}

func colKey(col Column, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = byte(col)
	copy(out[1:], key)
	return out
}

func (s *Store) check(col Column) error {
	if s.closed {
		return ErrClosed
	}
	if col >= numColumns {
		return ErrUnknownColumn
	}
	return nil
}

// Put buffers a write.
func (s *Store) Put(col Column, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(col); err != nil {
		return err
	}
	s.buffer[bufferKey{col, string(key)}] = bufferEntry{value: append([]byte(nil), value...)}
	return nil
}

// Delete buffers a removal.
func (s *Store) Delete(col Column, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(col); err != nil {
		return err
	}
	s.buffer[bufferKey{col, string(key)}] = bufferEntry{deleted: true}
	return nil
}

// Get reads a key, reflecting buffered edits over committed state.
// A missing key returns (nil, false, nil).
func (s *Store) Get(col Column, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(col); err != nil {
		return nil, false, err
	}
	if entry, ok := s.buffer[bufferKey{col, string(key)}]; ok {
		if entry.deleted {
			return nil, false, nil
		}
		return append([]byte(nil), entry.value...), true, nil
	}
	value, err := s.db.Get(colKey(col, key))
	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, database.ErrNotFound):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("store: get %s: %w", col, err)
	}
}

// Commit applies the buffer atomically. On failure the buffer is retained
// so the caller may roll back or retry.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	batch := s.db.NewBatch()
	for k, entry := range s.buffer {
		var err error
		if entry.deleted {
			err = batch.Delete(colKey(k.col, []byte(k.key)))
		} else {
			err = batch.Put(colKey(k.col, []byte(k.key)), entry.value)
		}
		if err != nil {
			return fmt.Errorf("store: batch %s: %w", k.col, err)
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	s.log.Debug("store committed", "entries", len(s.buffer))
	s.buffer = map[bufferKey]bufferEntry{}
	return nil
}

// Rollback discards the buffer.
func (s *Store) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) > 0 {
		s.log.Debug("store rolled back", "entries", len(s.buffer))
	}
	s.buffer = map[bufferKey]bufferEntry{}
}

// Pairs calls [fn] for each committed pair of a column, overlaying
// buffered edits. Iteration is best-effort: ordering follows the backing
// iterator and buffered inserts come last.
func (s *Store) Pairs(col Column, fn func(key, value []byte) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(col); err != nil {
		return err
	}
	it := s.db.NewIteratorWithPrefix([]byte{byte(col)})
	defer it.Release()

	seen := map[string]struct{}{}
	for it.Next() {
		key := it.Key()[1:]
		seen[string(key)] = struct{}{}
		if entry, ok := s.buffer[bufferKey{col, string(key)}]; ok {
			if entry.deleted {
				continue
			}
			if !fn(key, entry.value) {
				return it.Error()
			}
			continue
		}
		if !fn(key, it.Value()) {
			return it.Error()
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("store: iterate %s: %w", col, err)
	}
	for k, entry := range s.buffer {
		if k.col != col || entry.deleted {
			continue
		}
		if _, ok := seen[k.key]; ok {
			continue
		}
		if !fn([]byte(k.key), entry.value) {
			return nil
		}
	}
	return nil
}

// Close releases the backing database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.buffer = nil
	return s.db.Close()
}
