package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Drain controller metrics
	ReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdrain_reconcile_total",
			Help: "Total number of reconcile cycles by outcome (ok, ignored, aborted)",
		},
		[]string{"outcome"},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetdrain_reconcile_duration_seconds",
			Help:    "Time taken by one reconcile cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PhaseTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdrain_phase_transitions_total",
			Help: "Total number of drain phase steps executed, by phase",
		},
		[]string{"phase"},
	)

	RemoteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdrain_remote_failures_total",
			Help: "Total number of failed remote calls by operation and error kind",
		},
		[]string{"operation", "kind"},
	)

	EvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdrain_evictions_total",
			Help: "Total number of pod evictions by result (evicted, failed, skipped)",
		},
		[]string{"result"},
	)

	// Ledger metrics
	LedgerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetdrain_ledger_operation_duration_seconds",
			Help:    "Ledger operation latency in seconds by backend and operation",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend", "operation"},
	)

	// Intake metrics
	IntakeMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdrain_intake_messages_total",
			Help: "Total number of intake messages by result (processed, undecodable, cancelled, uncommitted)",
		},
		[]string{"result"},
	)

	IntakeRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdrain_intake_records_total",
			Help: "Total number of instance records by result (ok, ignored, aborted, invalid)",
		},
		[]string{"result"},
	)

	// Capacity poller metrics
	PublishedBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdrain_published_batches_total",
			Help: "Total number of instance batches published by game server group",
		},
		[]string{"group"},
	)

	ComponentUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetdrain_component_up",
			Help: "Whether a probed component is reachable (1 = up, 0 = down)",
		},
		[]string{"component"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ReconcileTotal)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(PhaseTransitionsTotal)
	prometheus.MustRegister(RemoteFailuresTotal)
	prometheus.MustRegister(EvictionsTotal)
	prometheus.MustRegister(LedgerOperationDuration)
	prometheus.MustRegister(IntakeMessagesTotal)
	prometheus.MustRegister(IntakeRecordsTotal)
	prometheus.MustRegister(PublishedBatchesTotal)
	prometheus.MustRegister(ComponentUp)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
