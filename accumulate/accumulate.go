// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package accumulate executes the digests of newly available work
// reports against service state. Reports with unmet prerequisites wait in
// the ready queue; everything whose dependencies resolve within the block
// executes in deterministic order.
package accumulate

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/jam/config"
	"github.com/luxfi/jam/hashing"
	"github.com/luxfi/jam/pvm"
	"github.com/luxfi/jam/state"
	"github.com/luxfi/jam/utils/set"
)

// Result is the outcome of one block's accumulation.
type Result struct {
	// Outputs are the θ' entries: one per successfully accumulated
	// digest, in execution order.
	Outputs []state.ServiceOutput

	// Accumulated holds the package hashes accumulated this block.
	Accumulated set.Set[ids.ID]

	// Ready holds the reports still waiting on prerequisites.
	Ready []state.ReadyRecord

	// GasUsed is the total accumulation gas charged this block.
	GasUsed state.Gas
}

// Execute runs accumulation for [reports] (the newly available set, in
// availability order) over the scratch state [st]. Records already in the
// ready queue participate: hashes accumulated this block unlock them.
func Execute(
	p config.Params,
	h *hashing.Hasher,
	st *state.State,
	reports []state.WorkReport,
	now state.TimeSlot,
) Result {
	res := Result{Accumulated: set.Set[ids.ID]{}}
	ctx := &execContext{
		params: p,
		hasher: h,
		st:     st,
		now:    now,
	}

	type queued struct {
		report state.WorkReport
		deps   set.Set[ids.ID]
	}
	var queue []queued

	// Carried-over ready records queue first, oldest first. A new report
	// whose prerequisites are all accumulated executes at once; the rest
	// queue behind the carried records in availability order.
	for _, r := range st.Ready {
		deps := r.Deps.Clone()
		deps.Difference(res.Accumulated)
		queue = append(queue, queued{report: r.Report, deps: deps})
	}
	st.Ready = nil

	for i := range reports {
		deps := set.NewSet[ids.ID](len(reports[i].Context.Prerequisites))
		for _, pre := range reports[i].Context.Prerequisites {
			if !st.AccumulatedContains(pre) {
				deps.Add(pre)
			}
		}
		if deps.Len() == 0 {
			ctx.execute(&res, reports[i])
			continue
		}
		queue = append(queue, queued{report: reports[i], deps: deps})
	}

	// Fixed point: every pass executes each record whose remaining
	// dependencies are satisfied, until a pass makes no progress.
	for {
		progressed := false
		next := queue[:0]
		for _, q := range queue {
			q.deps.Difference(res.Accumulated)
			if q.deps.Len() == 0 {
				ctx.execute(&res, q.report)
				progressed = true
				continue
			}
			next = append(next, q)
		}
		queue = next
		if !progressed {
			break
		}
	}

	for _, q := range queue {
		res.Ready = append(res.Ready, state.ReadyRecord{Report: q.report, Deps: q.deps})
	}
	res.GasUsed = ctx.gasUsed
	return res
}

type execContext struct {
	params  config.Params
	hasher  *hashing.Hasher
	st      *state.State
	now     state.TimeSlot
	gasUsed state.Gas
}

// execute accumulates every successful digest of one report and records
// its package hash.
func (c *execContext) execute(res *Result, report state.WorkReport) {
	for i := range report.Digests {
		d := &report.Digests[i]
		if !d.OK() {
			continue
		}
		if output, ok := c.invokeDigest(d); ok {
			c.st.Recent.Belt.AppendOutput(c.hasher, uint32(d.Service), output)
			res.Outputs = append(res.Outputs, state.ServiceOutput{
				Service: d.Service,
				Output:  output,
			})
		}
	}
	res.Accumulated.Add(report.Spec.Hash)
}

// invokeDigest runs a service's accumulate entry for one digest. The
// returned hash commits to the digest result; false means the digest
// produced no accumulation output (missing service or code, a crashed
// guest, or an exhausted block gas allowance).
func (c *execContext) invokeDigest(d *state.WorkDigest) (ids.ID, bool) {
	svc := c.st.Services[d.Service]
	if svc == nil {
		return ids.Empty, false
	}
	remaining := state.Gas(c.params.GasTotalAccum) - c.gasUsed
	if remaining < 0 {
		remaining = 0
	}
	gas := d.GasAccumulate
	if gas > remaining {
		gas = remaining
	}

	code := svc.Preimages[svc.CodeHash]
	if len(code) == 0 {
		return ids.Empty, false
	}

	host := newHostContext(c, d.Service, d.Output)
	outcome, err := pvm.Invoke(code, pvm.EntryAccumulate, int64(gas), d.Output, host)
	if err != nil {
		return ids.Empty, false
	}
	used := gas - state.Gas(outcome.GasRemaining)
	c.gasUsed += used
	c.recordStats(d.Service, used)

	if outcome.Status != pvm.Halt {
		host.discard()
		return ids.Empty, false
	}
	host.commit()
	svc = c.st.Services[d.Service]
	if svc != nil {
		svc.LastAccAt = c.now
	}
	return c.hasher.H(d.Output), true
}

func (c *execContext) recordStats(sid state.ServiceID, gas state.Gas) {
	if c.st.Statistics.Services == nil {
		c.st.Statistics.Services = map[state.ServiceID]state.ServiceStats{}
	}
	s := c.st.Statistics.Services[sid]
	s.Accumulations++
	s.AccumulateGas += uint64(gas)
	c.st.Statistics.Services[sid] = s
}
