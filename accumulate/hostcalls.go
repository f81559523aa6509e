// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package accumulate

import (
	"encoding/binary"

	"github.com/luxfi/ids"
	safemath "github.com/luxfi/math"

	"github.com/luxfi/jam/keys"
	"github.com/luxfi/jam/pvm"
	"github.com/luxfi/jam/state"
)

// Host-call return codes. Success is 0; failures use the top of the
// 64-bit range so they cannot collide with lengths or identifiers.
const (
	retOK   uint64 = 0
	retNone uint64 = ^uint64(0)
	retWho  uint64 = ^uint64(0) - 1
	retLow  uint64 = ^uint64(0) - 2
	retHuh  uint64 = ^uint64(0) - 3
)

// DeferredTransfer is a balance movement applied after accumulation.
type DeferredTransfer struct {
	From   state.ServiceID
	To     state.ServiceID
	Amount uint64
	Gas    state.Gas
	Memo   []byte
}

// hostContext buffers one digest invocation's mutations so a crashed
// guest commits nothing.
type hostContext struct {
	exec    *execContext
	sid     state.ServiceID
	arg     []byte
	svc     *state.ServiceAccount // cloned working copy
	created map[state.ServiceID]*state.ServiceAccount
	priv    state.PrivilegedState
	queues  map[state.CoreID]state.AuthQueue
	staging state.ValidatorSet

	transfers []DeferredTransfer
}

var _ pvm.HostHandler = (*hostContext)(nil)

func newHostContext(exec *execContext, sid state.ServiceID, arg []byte) *hostContext {
	return &hostContext{
		exec:    exec,
		sid:     sid,
		arg:     arg,
		svc:     exec.st.Services[sid].Clone(),
		created: map[state.ServiceID]*state.ServiceAccount{},
		priv:    exec.st.Privileges.Clone(),
		queues:  map[state.CoreID]state.AuthQueue{},
	}
}

// commit applies the buffered mutations to the scratch state.
func (h *hostContext) commit() {
	st := h.exec.st
	st.Services[h.sid] = h.svc
	for sid, acct := range h.created {
		st.Services[sid] = acct
	}
	st.Privileges = h.priv
	for core, q := range h.queues {
		if int(core) < len(st.AuthQueues) {
			st.AuthQueues[core] = q
		}
	}
	if h.staging != nil {
		st.Staging = h.staging
	}
	for _, t := range h.transfers {
		if dst := st.Services[t.To]; dst != nil {
			dst.Balance, _ = safemath.Add64(dst.Balance, t.Amount)
		}
	}
}

// discard drops the buffered mutations.
func (h *hostContext) discard() {}

func (h *hostContext) Call(m *pvm.Machine, id uint32) pvm.HostResult {
	switch id {
	case pvm.HostGas:
		return pvm.HostResult{Ret: uint64(m.Gas)}
	case pvm.HostFetch:
		return h.fetch(m)
	case pvm.HostExport:
		return h.export(m)
	case pvm.HostInfo:
		return h.info(m)
	case pvm.HostRead:
		return h.read(m)
	case pvm.HostWrite:
		return h.write(m)
	case pvm.HostLookup:
		return h.lookup(m)
	case pvm.HostTransfer:
		return h.transfer(m)
	case pvm.HostNew:
		return h.newService(m)
	case pvm.HostUpgrade:
		return h.upgrade(m)
	case pvm.HostBless:
		return h.bless(m)
	case pvm.HostAssign:
		return h.assign(m)
	case pvm.HostDesignate:
		return h.designate(m)
	case pvm.HostSolicit:
		return h.solicit(m)
	case pvm.HostForget:
		return h.forget(m)
	default:
		// Unknown identifiers are inert: zero return, machine lives.
		return pvm.HostResult{}
	}
}

// readHash pulls a 32-octet hash from guest memory.
func readHash(m *pvm.Machine, addr uint64) (ids.ID, bool) {
	bs, err := m.Memory.Read(uint32(addr), 32)
	if err != nil {
		return ids.Empty, false
	}
	return ids.ID(bs), true
}

// writeCapped copies [bs] to the guest at r9 capped by r10, returning the
// full length.
func writeCapped(m *pvm.Machine, bs []byte) pvm.HostResult {
	dst := uint32(m.Regs[9])
	n := uint64(len(bs))
	if cap := m.Regs[10]; cap < n {
		n = cap
	}
	if n > 0 {
		if err := m.Memory.Write(dst, bs[:n]); err != nil {
			return pvm.HostResult{Ret: retHuh}
		}
	}
	return pvm.HostResult{Ret: uint64(len(bs))}
}

// fetch serves the invocation argument blob, discriminated by r11.
func (h *hostContext) fetch(m *pvm.Machine) pvm.HostResult {
	switch m.Regs[pvm.HostDiscReg] {
	case 0:
		dst := uint32(m.Regs[8])
		if len(h.arg) > 0 {
			if err := m.Memory.Write(dst, h.arg); err != nil {
				return pvm.HostResult{Ret: retHuh}
			}
		}
		return pvm.HostResult{Ret: uint64(len(h.arg))}
	default:
		return pvm.HostResult{Ret: retNone}
	}
}

// export publishes [r8, r8+r9) and returns its index.
func (h *hostContext) export(m *pvm.Machine) pvm.HostResult {
	bs, err := m.Memory.Read(uint32(m.Regs[8]), uint32(m.Regs[9]))
	if err != nil {
		return pvm.HostResult{Ret: retHuh}
	}
	m.Exports = append(m.Exports, bs)
	return pvm.HostResult{Ret: uint64(len(m.Exports) - 1)}
}

// info writes the caller's account header to r9/r10.
func (h *hostContext) info(m *pvm.Machine) pvm.HostResult {
	out := make([]byte, 0, 64)
	out = append(out, h.svc.CodeHash[:]...)
	out = binary.LittleEndian.AppendUint64(out, h.svc.Balance)
	out = binary.LittleEndian.AppendUint64(out, h.svc.Threshold(h.exec.params))
	out = binary.LittleEndian.AppendUint64(out, uint64(h.svc.MinAccGas))
	out = binary.LittleEndian.AppendUint64(out, uint64(h.svc.MinMemoGas))
	return writeCapped(m, out)
}

// read serves a storage value by key hash at r8.
func (h *hostContext) read(m *pvm.Machine) pvm.HostResult {
	key, ok := readHash(m, m.Regs[8])
	if !ok {
		return pvm.HostResult{Ret: retHuh}
	}
	value, ok := h.svc.Storage[key]
	if !ok {
		return pvm.HostResult{Ret: retNone}
	}
	return writeCapped(m, value)
}

// write sets or clears the storage value under the key hash at r8; a
// zero r10 deletes. The balance must stay above the footprint threshold.
func (h *hostContext) write(m *pvm.Machine) pvm.HostResult {
	key, ok := readHash(m, m.Regs[8])
	if !ok {
		return pvm.HostResult{Ret: retHuh}
	}
	prev, had := h.svc.Storage[key]
	prevLen := retNone
	if had {
		prevLen = uint64(len(prev))
	}
	if m.Regs[10] == 0 {
		if had {
			delete(h.svc.Storage, key)
			h.svc.AddFootprint(-1, -int64(len(prev)))
		}
		return pvm.HostResult{Ret: prevLen}
	}
	value, err := m.Memory.Read(uint32(m.Regs[9]), uint32(m.Regs[10]))
	if err != nil {
		return pvm.HostResult{Ret: retHuh}
	}
	items, octets := int32(0), int64(len(value))
	if had {
		octets -= int64(len(prev))
	} else {
		items = 1
	}
	h.svc.AddFootprint(items, octets)
	if h.svc.Balance < h.svc.Threshold(h.exec.params) {
		h.svc.AddFootprint(-items, -octets)
		return pvm.HostResult{Ret: retLow}
	}
	h.svc.Storage[key] = value
	return pvm.HostResult{Ret: prevLen}
}

// lookup serves a held preimage by hash at r8.
func (h *hostContext) lookup(m *pvm.Machine) pvm.HostResult {
	hash, ok := readHash(m, m.Regs[8])
	if !ok {
		return pvm.HostResult{Ret: retHuh}
	}
	blob, ok := h.svc.Preimages[hash]
	if !ok {
		return pvm.HostResult{Ret: retNone}
	}
	return writeCapped(m, blob)
}

// transfer debits the caller now and queues the credit for after
// accumulation.
func (h *hostContext) transfer(m *pvm.Machine) pvm.HostResult {
	to := state.ServiceID(m.Regs[8])
	amount := m.Regs[9]
	gas := state.Gas(m.Regs[10])
	if h.exec.st.Services[to] == nil && h.created[to] == nil {
		return pvm.HostResult{Ret: retWho}
	}
	memo, err := m.Memory.Read(uint32(m.Regs[12]), uint32(min64(m.Regs[pvm.HostDiscReg], uint64(h.exec.params.TransferMemoSize))))
	if err != nil {
		memo = nil
	}
	rem, err2 := safemath.Sub64(h.svc.Balance, amount)
	if err2 != nil || rem < h.svc.Threshold(h.exec.params) {
		return pvm.HostResult{Ret: retLow}
	}
	h.svc.Balance = rem
	h.transfers = append(h.transfers, DeferredTransfer{
		From:   h.sid,
		To:     to,
		Amount: amount,
		Gas:    gas,
		Memo:   memo,
	})
	return pvm.HostResult{Ret: retOK}
}

// newService creates an account for the code hash at r8 with the balance
// in r9. The identifier derives from the creator and a bump counter, so
// creation is deterministic and collision-free.
func (h *hostContext) newService(m *pvm.Machine) pvm.HostResult {
	codeHash, ok := readHash(m, m.Regs[8])
	if !ok {
		return pvm.HostResult{Ret: retHuh}
	}
	endowment := m.Regs[9]
	rem, err := safemath.Sub64(h.svc.Balance, endowment)
	if err != nil || rem < h.svc.Threshold(h.exec.params) {
		return pvm.HostResult{Ret: retLow}
	}

	var seed [8]byte
	binary.LittleEndian.PutUint32(seed[:4], uint32(h.sid))
	binary.LittleEndian.PutUint32(seed[4:], uint32(len(h.created)))
	digest := h.exec.hasher.H([]byte("service_index"), seed[:])
	id := state.ServiceID(binary.LittleEndian.Uint32(digest[:4]))
	for h.exec.st.Services[id] != nil || h.created[id] != nil {
		id++
	}

	acct := state.NewServiceAccount(codeHash, endowment)
	acct.CreatedAt = h.exec.now
	acct.Parent = h.sid
	acct.MinAccGas = state.Gas(m.Regs[10])
	if acct.Balance < acct.Threshold(h.exec.params) {
		return pvm.HostResult{Ret: retLow}
	}
	h.svc.Balance = rem
	h.created[id] = acct
	return pvm.HostResult{Ret: uint64(id)}
}

// upgrade points the caller at new code.
func (h *hostContext) upgrade(m *pvm.Machine) pvm.HostResult {
	codeHash, ok := readHash(m, m.Regs[8])
	if !ok {
		return pvm.HostResult{Ret: retHuh}
	}
	h.svc.CodeHash = codeHash
	h.svc.MinAccGas = state.Gas(m.Regs[9])
	h.svc.MinMemoGas = state.Gas(m.Regs[10])
	return pvm.HostResult{Ret: retOK}
}

// bless reassigns the privileged services; manager only.
func (h *hostContext) bless(m *pvm.Machine) pvm.HostResult {
	if h.sid != h.priv.Manager {
		return pvm.HostResult{Ret: retWho}
	}
	h.priv.Manager = state.ServiceID(m.Regs[8])
	h.priv.Delegator = state.ServiceID(m.Regs[9])
	h.priv.Registrar = state.ServiceID(m.Regs[10])
	return pvm.HostResult{Ret: retOK}
}

// assign replaces a core's authorizer queue; that core's assigner only.
func (h *hostContext) assign(m *pvm.Machine) pvm.HostResult {
	core := state.CoreID(m.Regs[8])
	if int(core) >= len(h.exec.st.AuthQueues) {
		return pvm.HostResult{Ret: retHuh}
	}
	if int(core) >= len(h.priv.Assigners) || h.sid != h.priv.Assigners[core] {
		return pvm.HostResult{Ret: retWho}
	}
	count := h.exec.params.AuthQueueSize
	bs, err := m.Memory.Read(uint32(m.Regs[9]), count*32)
	if err != nil {
		return pvm.HostResult{Ret: retHuh}
	}
	queue := make(state.AuthQueue, count)
	for i := range queue {
		copy(queue[i][:], bs[i*32:(i+1)*32])
	}
	h.queues[core] = queue
	return pvm.HostResult{Ret: retOK}
}

// designate replaces the staging validator set; delegator only.
func (h *hostContext) designate(m *pvm.Machine) pvm.HostResult {
	if h.sid != h.priv.Delegator {
		return pvm.HostResult{Ret: retWho}
	}
	count := uint32(h.exec.params.Validators)
	const keyLen = keys.BandersnatchKeyLen + keys.Ed25519KeyLen + keys.BLSKeyLen + keys.MetadataLen
	bs, err := m.Memory.Read(uint32(m.Regs[8]), count*keyLen)
	if err != nil {
		return pvm.HostResult{Ret: retHuh}
	}
	vs := make(state.ValidatorSet, count)
	for i := range vs {
		off := i * keyLen
		copy(vs[i].Bandersnatch[:], bs[off:])
		off += keys.BandersnatchKeyLen
		copy(vs[i].Ed25519[:], bs[off:])
		off += keys.Ed25519KeyLen
		copy(vs[i].BLS[:], bs[off:])
		off += keys.BLSKeyLen
		copy(vs[i].Metadata[:], bs[off:off+keys.MetadataLen])
	}
	h.staging = vs
	return pvm.HostResult{Ret: retOK}
}

// solicit requests a preimage, or re-solicits a forgotten one.
func (h *hostContext) solicit(m *pvm.Machine) pvm.HostResult {
	hash, ok := readHash(m, m.Regs[8])
	if !ok {
		return pvm.HostResult{Ret: retHuh}
	}
	key := state.PreimageKey{Hash: hash, Length: uint32(m.Regs[9])}
	req, exists := h.svc.Requests[key]
	switch {
	case !exists:
		h.svc.AddFootprint(1, int64(key.Length))
		if h.svc.Balance < h.svc.Threshold(h.exec.params) {
			h.svc.AddFootprint(-1, -int64(key.Length))
			return pvm.HostResult{Ret: retLow}
		}
		h.svc.Requests[key] = state.PreimageRequest{}
	case len(req.Slots) == 2:
		req.Slots = append(req.Slots, h.exec.now)
		h.svc.Requests[key] = req
	default:
		return pvm.HostResult{Ret: retHuh}
	}
	return pvm.HostResult{Ret: retOK}
}

// forget releases a request: an unprovided one drops immediately, a
// provided one is stamped and drops with its preimage after expiry.
func (h *hostContext) forget(m *pvm.Machine) pvm.HostResult {
	hash, ok := readHash(m, m.Regs[8])
	if !ok {
		return pvm.HostResult{Ret: retHuh}
	}
	key := state.PreimageKey{Hash: hash, Length: uint32(m.Regs[9])}
	req, exists := h.svc.Requests[key]
	if !exists {
		return pvm.HostResult{Ret: retNone}
	}
	switch len(req.Slots) {
	case 0:
		delete(h.svc.Requests, key)
		h.svc.AddFootprint(-1, -int64(key.Length))
	case 1:
		req.Slots = append(req.Slots, h.exec.now)
		h.svc.Requests[key] = req
	case 2:
		if !req.Droppable(h.exec.now, h.exec.params.PreimageExpiry) {
			return pvm.HostResult{Ret: retHuh}
		}
		delete(h.svc.Requests, key)
		if blob, held := h.svc.Preimages[hash]; held {
			delete(h.svc.Preimages, hash)
			h.svc.AddFootprint(-1, -int64(len(blob)))
		}
		h.svc.AddFootprint(-1, -int64(key.Length))
	default: // re-solicited and provided again
		req.Slots = []state.TimeSlot{req.Slots[2], h.exec.now}
		h.svc.Requests[key] = req
	}
	return pvm.HostResult{Ret: retOK}
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
