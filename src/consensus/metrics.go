// MIT License
//
// Copyright (c) 2024 sphinx-core
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// go/src/consensus/metrics.go
package consensus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of one node. Every node owns its registry
// so several nodes can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	RoundsTotal       prometheus.Counter
	Round             prometheus.Gauge
	VotesReceived     *prometheus.CounterVec
	VotesRejected     prometheus.Counter
	VotesDuplicate    prometheus.Counter
	BroadcastFailures prometheus.Counter
	QuorumWait        *prometheus.HistogramVec
	CoinFlips         prometheus.Counter
	Decisions         *prometheus.CounterVec
}

// NewMetrics initializes Prometheus metrics for node id.
func NewMetrics(id int) *Metrics {
	labels := prometheus.Labels{"node": strconv.Itoa(id)}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RoundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "benor_rounds_total",
			Help:        "Number of completed consensus rounds",
			ConstLabels: labels,
		}),
		Round: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "benor_round",
			Help:        "Current round number",
			ConstLabels: labels,
		}),
		VotesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "benor_votes_received_total",
				Help:        "Number of votes recorded in the message store",
				ConstLabels: labels,
			},
			[]string{"phase"},
		),
		VotesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "benor_votes_rejected_total",
			Help:        "Number of malformed inbound votes",
			ConstLabels: labels,
		}),
		VotesDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "benor_votes_duplicate_total",
			Help:        "Number of votes dropped as duplicates of the same sender",
			ConstLabels: labels,
		}),
		BroadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "benor_broadcast_failures_total",
			Help:        "Number of votes that could not be delivered to a target",
			ConstLabels: labels,
		}),
		QuorumWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "benor_quorum_wait_seconds",
				Help:        "Time spent waiting for a phase quorum",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"phase"},
		),
		CoinFlips: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "benor_coin_flips_total",
			Help:        "Number of randomized tie-breaks",
			ConstLabels: labels,
		}),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "benor_decisions_total",
				Help:        "Number of decisions by value",
				ConstLabels: labels,
			},
			[]string{"value"},
		),
	}
	m.Registry.MustRegister(
		m.RoundsTotal,
		m.Round,
		m.VotesReceived,
		m.VotesRejected,
		m.VotesDuplicate,
		m.BroadcastFailures,
		m.QuorumWait,
		m.CoinFlips,
		m.Decisions,
	)
	return m
}
