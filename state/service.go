// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"bytes"
	"sort"

	"github.com/luxfi/ids"
	"golang.org/x/exp/maps"

	"github.com/luxfi/jam/codec"
	"github.com/luxfi/jam/config"
)

// serviceVersion is the persisted service-account header version octet.
const serviceVersion = 0

// balanceTag marks the balance field inside the persisted header.
const balanceTag = 0xEF

// PreimageKey keys a preimage request: the hash of the awaited blob and
// its declared length.
type PreimageKey struct {
	Hash   ids.ID
	Length uint32
}

// PreimageRequest is the slot history of a request. The length of Slots
// encodes the lifecycle phase: requested [], provided [x], forgotten
// [x, y], and re-solicited [x, y, z].
type PreimageRequest struct {
	Slots []TimeSlot
}

// Requested reports the solicit phase: no slot recorded yet.
func (r *PreimageRequest) Requested() bool {
	return len(r.Slots) == 0
}

// Provided reports whether the preimage is currently held.
func (r *PreimageRequest) Provided() bool {
	return len(r.Slots) == 1 || len(r.Slots) == 3
}

// Droppable reports whether a forgotten preimage may be discarded at
// [now]: the forget slot must be at least [expiry] slots old.
func (r *PreimageRequest) Droppable(now TimeSlot, expiry uint32) bool {
	return len(r.Slots) == 2 && now >= r.Slots[1]+TimeSlot(expiry)
}

// ServiceAccount is one entry of δ. Storage and preimages are hash-keyed
// maps; Octets and Items mirror their footprint so the balance floor is
// recomputable without a walk.
type ServiceAccount struct {
	CodeHash   ids.ID
	Balance    uint64
	MinAccGas  Gas
	MinMemoGas Gas
	Storage    map[ids.ID][]byte
	Preimages  map[ids.ID][]byte
	Requests   map[PreimageKey]PreimageRequest
	Octets     uint64
	Items      uint32
	Gratis     uint64
	CreatedAt  TimeSlot
	LastAccAt  TimeSlot
	Parent     ServiceID
}

// NewServiceAccount returns an account with allocated maps.
func NewServiceAccount(codeHash ids.ID, balance uint64) *ServiceAccount {
	return &ServiceAccount{
		CodeHash:  codeHash,
		Balance:   balance,
		Storage:   map[ids.ID][]byte{},
		Preimages: map[ids.ID][]byte{},
		Requests:  map[PreimageKey]PreimageRequest{},
	}
}

// Clone returns a deep copy. Accounts are copy-on-write during preimage
// and accumulation passes; untouched accounts stay shared.
func (a *ServiceAccount) Clone() *ServiceAccount {
	out := *a
	out.Storage = make(map[ids.ID][]byte, len(a.Storage))
	for k, v := range a.Storage {
		out.Storage[k] = bytes.Clone(v)
	}
	out.Preimages = make(map[ids.ID][]byte, len(a.Preimages))
	for k, v := range a.Preimages {
		out.Preimages[k] = bytes.Clone(v)
	}
	out.Requests = make(map[PreimageKey]PreimageRequest, len(a.Requests))
	for k, v := range a.Requests {
		out.Requests[k] = PreimageRequest{Slots: append([]TimeSlot(nil), v.Slots...)}
	}
	return &out
}

// Threshold returns the minimum balance the account's footprint demands.
func (a *ServiceAccount) Threshold(p config.Params) uint64 {
	t := p.BaseMin + p.BaseDeposit*uint64(a.Items) + p.ByteDeposit*a.Octets
	if t <= a.Gratis {
		return 0
	}
	return t - a.Gratis
}

// AddFootprint records [items] new items carrying [octets] octets.
func (a *ServiceAccount) AddFootprint(items int32, octets int64) {
	a.Items = uint32(int64(a.Items) + int64(items))
	a.Octets = uint64(int64(a.Octets) + octets)
}

// sortedPreimageKeys returns the request keys ordered by hash then length.
func (a *ServiceAccount) sortedPreimageKeys() []PreimageKey {
	ks := maps.Keys(a.Requests)
	sort.Slice(ks, func(i, j int) bool {
		if c := bytes.Compare(ks[i].Hash[:], ks[j].Hash[:]); c != 0 {
			return c < 0
		}
		return ks[i].Length < ks[j].Length
	})
	return ks
}

// EncodeHeader writes the fixed persisted header: version, code hash,
// tagged balance, gas minimums and footprint counters.
func (a *ServiceAccount) EncodeHeader(e *codec.Encoder) {
	e.Uint8(serviceVersion)
	e.Raw(a.CodeHash[:31])
	e.Uint8(balanceTag)
	e.Uint64(a.Balance)
	e.Uint64(uint64(a.MinAccGas))
	e.Uint64(uint64(a.MinMemoGas))
	var storageOctets, storageItems uint64
	for _, v := range a.Storage {
		storageOctets += uint64(len(v))
		storageItems++
	}
	e.Uint64(storageOctets)
	e.Uint64(storageItems)
	var preOctets, preItems uint64
	for _, v := range a.Preimages {
		preOctets += uint64(len(v))
		preItems++
	}
	e.Uint64(preOctets)
	e.Uint64(preItems)
}

// EncodeTo writes the full account: header, extension counters, then the
// storage, preimage and request maps in key order.
func (a *ServiceAccount) EncodeTo(e *codec.Encoder) {
	a.EncodeHeader(e)
	// The header carries only the 31-octet code-hash prefix; restore the
	// final octet here so the full hash survives a round trip.
	e.Uint8(a.CodeHash[31])
	e.Uint64(a.Octets)
	e.Uint32(a.Items)
	e.Uint64(a.Gratis)
	e.Uint32(uint32(a.CreatedAt))
	e.Uint32(uint32(a.LastAccAt))
	e.Uint32(uint32(a.Parent))

	storageKeys := maps.Keys(a.Storage)
	sort.Slice(storageKeys, func(i, j int) bool {
		return bytes.Compare(storageKeys[i][:], storageKeys[j][:]) < 0
	})
	e.Length(len(storageKeys))
	for _, k := range storageKeys {
		e.Raw(k[:])
		e.Blob(a.Storage[k])
	}

	preimageKeys := maps.Keys(a.Preimages)
	sort.Slice(preimageKeys, func(i, j int) bool {
		return bytes.Compare(preimageKeys[i][:], preimageKeys[j][:]) < 0
	})
	e.Length(len(preimageKeys))
	for _, k := range preimageKeys {
		e.Raw(k[:])
		e.Blob(a.Preimages[k])
	}

	reqKeys := a.sortedPreimageKeys()
	e.Length(len(reqKeys))
	for _, k := range reqKeys {
		e.Raw(k.Hash[:])
		e.Uint32(k.Length)
		slots := a.Requests[k].Slots
		e.Length(len(slots))
		for _, s := range slots {
			e.Uint32(uint32(s))
		}
	}
}

// DecodeFrom reads the form written by EncodeTo. The derived storage and
// preimage counters inside the header are discarded; the maps are the
// authority.
func (a *ServiceAccount) DecodeFrom(d *codec.Decoder) {
	d.Uint8() // version
	copy(a.CodeHash[:31], d.Raw(31))
	d.Uint8() // balance tag
	a.Balance = d.Uint64()
	a.MinAccGas = Gas(d.Uint64())
	a.MinMemoGas = Gas(d.Uint64())
	d.Uint64()
	d.Uint64()
	d.Uint64()
	d.Uint64()

	a.CodeHash[31] = d.Uint8()
	a.Octets = d.Uint64()
	a.Items = d.Uint32()
	a.Gratis = d.Uint64()
	a.CreatedAt = TimeSlot(d.Uint32())
	a.LastAccAt = TimeSlot(d.Uint32())
	a.Parent = ServiceID(d.Uint32())

	n := d.Length()
	a.Storage = make(map[ids.ID][]byte, n)
	for i := 0; i < n; i++ {
		var k ids.ID
		copy(k[:], d.Raw(32))
		a.Storage[k] = d.Blob()
	}

	n = d.Length()
	a.Preimages = make(map[ids.ID][]byte, n)
	for i := 0; i < n; i++ {
		var k ids.ID
		copy(k[:], d.Raw(32))
		a.Preimages[k] = d.Blob()
	}

	n = d.Length()
	a.Requests = make(map[PreimageKey]PreimageRequest, n)
	for i := 0; i < n; i++ {
		var k PreimageKey
		copy(k.Hash[:], d.Raw(32))
		k.Length = d.Uint32()
		m := d.Length()
		slots := codec.SliceOf[TimeSlot](m)
		for j := range slots {
			slots[j] = TimeSlot(d.Uint32())
		}
		a.Requests[k] = PreimageRequest{Slots: slots}
	}
}
