// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	EventsReceived  prometheus.Counter
	EventsDropped   *prometheus.CounterVec
	DecodeErrors    *prometheus.CounterVec
	StaleUpdates    prometheus.Counter
	HighestSlotSeen prometheus.Gauge

	// Decision metrics
	Verdicts       *prometheus.CounterVec
	RejectReasons  *prometheus.CounterVec
	OracleErrors   *prometheus.CounterVec
	GuardRejects   *prometheus.CounterVec
	FlightsSkipped prometheus.Counter

	// Execution metrics
	ExecutionOutcomes *prometheus.CounterVec
	ExecutionAttempts prometheus.Histogram
	LedgerWrites      *prometheus.CounterVec
	Reconciliations   prometheus.Counter

	// Latency metrics
	StageLatency   *prometheus.HistogramVec
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastEventProcessed prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_pool_sniper"
	}

	return &Metrics{
		// Ingestion metrics
		EventsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_received_total",
			Help:      "Total number of pool account notifications received",
		}),
		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_dropped_total",
			Help:      "Total number of notifications dropped before processing by reason",
		}, []string{"reason"}),
		DecodeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "decode_errors_total",
			Help:      "Total number of pool payloads that failed to decode by error type",
		}, []string{"error_type"}),
		StaleUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "stale_updates_total",
			Help:      "Total number of pool states ignored as duplicate or out of order",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		// Decision metrics
		Verdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "verdicts_total",
			Help:      "Total number of eligibility verdicts by decision",
		}, []string{"decision"}),
		RejectReasons: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "reject_reasons_total",
			Help:      "Total number of failed admission criteria by reason",
		}, []string{"reason"}),
		OracleErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "oracle_errors_total",
			Help:      "Total number of oracle failures by error type",
		}, []string{"error_type"}),
		GuardRejects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "guard_rejects_total",
			Help:      "Total number of intents rejected by the balance/price guard by reason",
		}, []string{"reason"}),
		FlightsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "flights_skipped_total",
			Help:      "Total number of events skipped because the mint already had a trade in flight",
		}),

		// Execution metrics
		ExecutionOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "outcomes_total",
			Help:      "Total number of terminal execution results by side, outcome and failure kind",
		}, []string{"side", "outcome", "failure_kind"}),
		ExecutionAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "attempts",
			Help:      "Backend attempts per execution",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		LedgerWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "writes_total",
			Help:      "Total number of ledger writes by status",
		}, []string{"status"}),
		Reconciliations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "reconciliations_total",
			Help:      "Total number of confirmed trades that could not be recorded",
		}),

		// Latency metrics
		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_latency_seconds",
			Help:      "Per-event pipeline stage latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastEventProcessed: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_processed_timestamp",
			Help:      "Unix timestamp of the last fully processed notification",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HealthHandler answers /health with 200 OK.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventReceived increments the received counter and tracks the highest slot.
func RecordEventReceived(slot int64) {
	DefaultMetrics.EventsReceived.Inc()
	UpdateHighestSlot(slot)
}

// RecordEventDropped records a notification dropped before processing.
func RecordEventDropped(reason string) {
	DefaultMetrics.EventsDropped.WithLabelValues(reason).Inc()
}

// RecordDecodeError records a payload decode failure.
func RecordDecodeError(errorType string) {
	DefaultMetrics.DecodeErrors.WithLabelValues(errorType).Inc()
}

// RecordStaleUpdate records an ignored duplicate or out-of-order pool state.
func RecordStaleUpdate() {
	DefaultMetrics.StaleUpdates.Inc()
}

var (
	highestSlotMu sync.Mutex
	highestSlot   int64
)

// UpdateHighestSlot raises the highest slot seen gauge. It never moves backwards.
func UpdateHighestSlot(slot int64) {
	highestSlotMu.Lock()
	defer highestSlotMu.Unlock()
	if slot > highestSlot {
		highestSlot = slot
		DefaultMetrics.HighestSlotSeen.Set(float64(slot))
	}
}

// RecordVerdict records a verdict and each of its reasons.
func RecordVerdict(decision string, reasons []string) {
	DefaultMetrics.Verdicts.WithLabelValues(decision).Inc()
	for _, r := range reasons {
		DefaultMetrics.RejectReasons.WithLabelValues(r).Inc()
	}
}

// RecordOracleError records a price oracle failure.
func RecordOracleError(errorType string) {
	DefaultMetrics.OracleErrors.WithLabelValues(errorType).Inc()
}

// RecordGuardReject records a guard rejection.
func RecordGuardReject(reason string) {
	DefaultMetrics.GuardRejects.WithLabelValues(reason).Inc()
}

// RecordFlightSkipped records an event skipped because its mint was busy.
func RecordFlightSkipped() {
	DefaultMetrics.FlightsSkipped.Inc()
}

// RecordExecution records a terminal execution result.
func RecordExecution(side, outcome, failureKind string, attempts int) {
	if failureKind == "" {
		failureKind = "none"
	}
	DefaultMetrics.ExecutionOutcomes.WithLabelValues(side, outcome, failureKind).Inc()
	DefaultMetrics.ExecutionAttempts.Observe(float64(attempts))
}

// RecordLedgerWrite records a ledger write result.
func RecordLedgerWrite(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.LedgerWrites.WithLabelValues(status).Inc()
}

// RecordReconciliation records a confirmed trade missing from the ledger.
func RecordReconciliation() {
	DefaultMetrics.Reconciliations.Inc()
}

// ObserveStage records the duration of a pipeline stage started at start.
func ObserveStage(stage string, start time.Time) {
	DefaultMetrics.StageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordEventProcessed stamps the last fully processed notification.
func RecordEventProcessed(at time.Time) {
	DefaultMetrics.LastEventProcessed.Set(float64(at.Unix()))
}
