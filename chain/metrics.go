// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	blocksApplied    prometheus.Counter
	transitionErrors prometheus.Counter
	headSlot         prometheus.Gauge
	accumulationGas  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		blocksApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jam_blocks_applied_total",
			Help: "Blocks accepted by the state transition",
		}),
		transitionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jam_transition_errors_total",
			Help: "Blocks rejected by the state transition",
		}),
		headSlot: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jam_head_slot",
			Help: "Timeslot of the current head",
		}),
		accumulationGas: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jam_accumulation_gas_total",
			Help: "Gas charged to service accumulation",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.blocksApplied,
		m.transitionErrors,
		m.headSlot,
		m.accumulationGas,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
