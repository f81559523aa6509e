// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stf

import (
	"bytes"

	"github.com/luxfi/ids"

	"github.com/luxfi/jam/block"
	"github.com/luxfi/jam/state"
)

// applyPreimages validates and integrates supplied preimages. Validation
// is a single left-to-right pass; nothing mutates unless the whole
// extrinsic is acceptable.
func (c *Context) applyPreimages(st *state.State, preimages []block.Preimage, author state.ValidatorIndex) error {
	type insertion struct {
		service state.ServiceID
		hash    ids.ID
		blob    []byte
	}
	inserts := make([]insertion, 0, len(preimages))

	var prevService state.ServiceID
	var prevHash *ids.ID
	for i := range preimages {
		p := &preimages[i]
		if i > 0 && p.Service < prevService {
			return errCode(CodePreimagesNotSorted, "service ids decrease at %d", i)
		}
		if p.Service != prevService {
			prevHash = nil
		}
		prevService = p.Service

		h := c.Hasher.H(p.Blob)
		if prevHash != nil && bytes.Compare(prevHash[:], h[:]) >= 0 {
			return errCode(CodePreimagesNotSorted, "hashes not increasing within service %d", p.Service)
		}
		hcopy := h
		prevHash = &hcopy

		svc := st.Services[p.Service]
		if svc == nil {
			return errCode(CodeServiceNotFound, "service %d", p.Service)
		}
		key := state.PreimageKey{Hash: h, Length: uint32(len(p.Blob))}
		req, solicited := svc.Requests[key]
		if !solicited || !req.Requested() {
			return errCode(CodePreimageUnneeded, "service %d hash %s", p.Service, h)
		}
		if _, held := svc.Preimages[h]; held {
			return errCode(CodePreimageUnneeded, "service %d already holds %s", p.Service, h)
		}
		inserts = append(inserts, insertion{service: p.Service, hash: h, blob: p.Blob})
	}

	for _, ins := range inserts {
		svc := st.Services[ins.service]
		svc.Preimages[ins.hash] = bytes.Clone(ins.blob)
		svc.Requests[state.PreimageKey{Hash: ins.hash, Length: uint32(len(ins.blob))}] = state.PreimageRequest{
			Slots: []state.TimeSlot{st.Timeslot},
		}
		svc.AddFootprint(1, int64(len(ins.blob)))
		if int(author) < len(st.Statistics.Current) {
			st.Statistics.Current[author].Preimages++
			st.Statistics.Current[author].PreimageOctets += uint64(len(ins.blob))
		}
	}
	return nil
}
