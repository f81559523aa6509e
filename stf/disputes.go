// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stf

import (
	"github.com/luxfi/jam/block"
	"github.com/luxfi/jam/hashing"
	"github.com/luxfi/jam/keys"
	"github.com/luxfi/jam/state"
)

// applyDisputes folds the dispute extrinsic into ψ: verdicts classify
// reports as good or bad, culprits and faults accrue to the offender set,
// and faulted targets enter the wonky set.
func (c *Context) applyDisputes(st *state.State, disputes *block.Dispute) error {
	currentEpoch := c.Params.EpochIndex(uint32(st.Timeslot))

	for i := range disputes.Verdicts {
		v := &disputes.Verdicts[i]
		if st.Judgments.Judged(v.Target) {
			return errCode(CodeBadDispute, "target %s already judged", v.Target)
		}
		if len(v.Judgments) == 0 {
			return errCode(CodeBadDispute, "empty verdict")
		}

		// Jurors sign from the epoch the verdict is aged to.
		jury := st.Current
		if v.Age < currentEpoch {
			jury = st.Previous
		}

		guilty := 0
		seen := map[state.ValidatorIndex]struct{}{}
		for j := range v.Judgments {
			jd := &v.Judgments[j]
			if int(jd.Index) >= len(jury) {
				return errCode(CodeBadDispute, "judgment index %d out of range", jd.Index)
			}
			if _, dup := seen[jd.Index]; dup {
				return errCode(CodeBadDispute, "duplicate juror %d", jd.Index)
			}
			seen[jd.Index] = struct{}{}
			domain := hashing.DomainValid
			if !jd.Vote {
				domain = hashing.DomainInvalid
				guilty++
			}
			msg := hashing.SigningMessage(domain, v.Target[:])
			if !keys.VerifyEd25519(jury[jd.Index].Ed25519, msg, jd.Signature[:]) {
				return errCode(CodeBadDispute, "judgment signature %d", jd.Index)
			}
		}
		if 2*guilty > len(v.Judgments) {
			st.Judgments.Bad.Add(v.Target)
		} else {
			st.Judgments.Good.Add(v.Target)
		}
	}

	for i := range disputes.Culprits {
		cp := &disputes.Culprits[i]
		if !st.Judgments.Bad.Contains(cp.Target) {
			return errCode(CodeBadDispute, "culprit for unjudged report %s", cp.Target)
		}
		msg := hashing.SigningMessage(hashing.DomainGuarantee, cp.Target[:])
		if !keys.VerifyEd25519(cp.Key, msg, cp.Signature[:]) {
			return errCode(CodeBadDispute, "culprit signature")
		}
		st.Judgments.Offenders.Add(cp.Key)
	}

	for i := range disputes.Faults {
		f := &disputes.Faults[i]
		// A fault is a judge whose vote contradicts the verdict.
		badVerdict := st.Judgments.Bad.Contains(f.Target)
		goodVerdict := st.Judgments.Good.Contains(f.Target)
		if !badVerdict && !goodVerdict {
			return errCode(CodeBadDispute, "fault for unjudged report %s", f.Target)
		}
		if (badVerdict && !f.Vote) || (goodVerdict && f.Vote) {
			return errCode(CodeBadDispute, "fault vote agrees with verdict")
		}
		domain := hashing.DomainValid
		if !f.Vote {
			domain = hashing.DomainInvalid
		}
		msg := hashing.SigningMessage(domain, f.Target[:])
		if !keys.VerifyEd25519(f.Key, msg, f.Signature[:]) {
			return errCode(CodeBadDispute, "fault signature")
		}
		st.Judgments.Offenders.Add(f.Key)
		st.Judgments.Wonky.Add(f.Target)
	}

	// The header's offenders list is not compared with the offenders
	// added here.
	return nil
}

// clearDisputedReports drops pending reports judged bad.
func (c *Context) clearDisputedReports(st *state.State) {
	for core, pending := range st.Reports {
		if pending == nil {
			continue
		}
		h := c.reportHash(&pending.Report)
		if st.Judgments.Bad.Contains(h) {
			st.Reports[core] = nil
		}
	}
}
