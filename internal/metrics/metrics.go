// Package metrics exposes the escrow layer's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	ledgerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coduet",
			Subsystem: "ledger",
			Name:      "calls_total",
			Help:      "Total escrow program calls by instruction and outcome.",
		},
		[]string{"instruction", "outcome"},
	)

	ledgerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coduet",
			Subsystem: "ledger",
			Name:      "call_duration_seconds",
			Help:      "Duration of escrow program calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"instruction"},
	)

	escrowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coduet",
			Subsystem: "escrow",
			Name:      "transitions_total",
			Help:      "Total post status transitions applied to the index.",
		},
		[]string{"to"},
	)

	fundedNotIndexed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coduet",
			Subsystem: "escrow",
			Name:      "rows_needing_sync",
			Help:      "Index rows currently flagged for reconciliation.",
		},
	)

	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coduet",
			Subsystem: "reconciler",
			Name:      "runs_total",
			Help:      "Total reconciliation passes by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		ledgerCalls,
		ledgerDuration,
		escrowTransitions,
		fundedNotIndexed,
		reconcileRuns,
	)
}

// ObserveLedgerCall records one escrow program call.
func ObserveLedgerCall(instruction, outcome string, elapsed time.Duration) {
	ledgerCalls.WithLabelValues(instruction, outcome).Inc()
	ledgerDuration.WithLabelValues(instruction).Observe(elapsed.Seconds())
}

// ObserveTransition records one post status transition.
func ObserveTransition(to string) {
	escrowTransitions.WithLabelValues(to).Inc()
}

// SetRowsNeedingSync records the current reconciliation backlog.
func SetRowsNeedingSync(n int) {
	fundedNotIndexed.Set(float64(n))
}

// ObserveReconcileRun records one reconciliation pass.
func ObserveReconcileRun(result string) {
	reconcileRuns.WithLabelValues(result).Inc()
}

// Handler returns an HTTP handler serving the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
