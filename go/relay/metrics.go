// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package relay

import "github.com/ethereum/go-ethereum/metrics"

type relayMetrics struct {
	received  metrics.Counter
	succeeded metrics.Counter
	failed    metrics.Counter
	recorded  metrics.Counter
	retried   metrics.Counter
	sent      metrics.Counter
	claimed   metrics.Counter
}

// Counters are forced so that statistics are available even if metrics
// collection is disabled process wide.
func newRelayMetrics(registry metrics.Registry) *relayMetrics {
	counter := func(name string) metrics.Counter {
		return metrics.NewRegisteredCounterForced("xcall/relay/"+name, registry)
	}
	return &relayMetrics{
		received:  counter("received"),
		succeeded: counter("executions/succeeded"),
		failed:    counter("executions/failed"),
		recorded:  counter("failures/recorded"),
		retried:   counter("failures/retried"),
		sent:      counter("sent"),
		claimed:   counter("claimed"),
	}
}

// Stats is a snapshot of the relay's message counters.
type Stats struct {
	Received         int64 // messages accepted from the router
	Succeeded        int64 // executions completed by the target
	Failed           int64 // executions recovered after a target failure
	RecordedFailures int64 // messages moved to the failure ledger
	Retried          int64 // failure ledger entries resolved
	Sent             int64 // messages handed to the router
	Claims           int64 // escrow payouts
}

func (r *Relay) Stats() Stats {
	m := r.metrics
	return Stats{
		Received:         m.received.Snapshot().Count(),
		Succeeded:        m.succeeded.Snapshot().Count(),
		Failed:           m.failed.Snapshot().Count(),
		RecordedFailures: m.recorded.Snapshot().Count(),
		Retried:          m.retried.Snapshot().Count(),
		Sent:             m.sent.Snapshot().Count(),
		Claims:           m.claimed.Snapshot().Count(),
	}
}
