// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the pulsehub profile engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Profile store metrics
	profileOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsehub_profile_ops_total",
		Help: "Dynamic profile store operations by op and outcome",
	}, []string{"op", "outcome"}) // outcome=success|error|invalid

	profileOpDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pulsehub_profile_op_duration_seconds",
		Help:    "Latency of dynamic profile store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// Device classifier metrics
	unknownDevicesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsehub_unknown_devices_total",
		Help: "Total number of device tokens that missed the mapping table",
	})

	// Reaper metrics
	reaperTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsehub_reaper_ticks_total",
		Help: "Reaper ticks by outcome",
	}, []string{"outcome"}) // outcome=completed|failed|skipped

	reaperExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsehub_reaper_expired_total",
		Help: "Total number of expired profiles reconciled by the reaper",
	})

	reaperTickDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulsehub_reaper_tick_duration_seconds",
		Help:    "Duration of completed reaper ticks",
		Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
	})

	// Aggregator metrics
	snapshotComposeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsehub_snapshot_compose_total",
		Help: "Snapshot compositions by scenario and outcome",
	}, []string{"scenario", "outcome"}) // outcome=full|degraded|absent|cached

	aggregatorWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsehub_aggregator_warnings_total",
		Help: "Read-path degradations observed by the aggregator",
	})

	// Event boundary metrics
	eventsRoutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsehub_events_routed_total",
		Help: "Inbound activity events routed by type and outcome",
	}, []string{"type", "outcome"}) // outcome=applied|dropped|error
)

func IncProfileOp(op, outcome string) { profileOpsTotal.WithLabelValues(op, outcome).Inc() }
func ObserveProfileOp(op string, d time.Duration) {
	profileOpDurationSeconds.WithLabelValues(op).Observe(d.Seconds())
}

func IncUnknownDevice() { unknownDevicesTotal.Inc() }

func IncReaperTick(outcome string) { reaperTicksTotal.WithLabelValues(outcome).Inc() }

func AddReaperExpired(n int64) { reaperExpiredTotal.Add(float64(n)) }
func ObserveReaperTick(d time.Duration) {
	reaperTickDurationSeconds.Observe(d.Seconds())
}

func IncSnapshotCompose(scenario, outcome string) {
	snapshotComposeTotal.WithLabelValues(scenario, outcome).Inc()
}
func IncAggregatorWarning() { aggregatorWarningsTotal.Inc() }

func IncEventRouted(eventType, outcome string) {
	eventsRoutedTotal.WithLabelValues(eventType, outcome).Inc()
}
