// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	BlocksReceived    prometheus.Counter
	LogsProcessed     prometheus.Counter
	EventsDecoded     *prometheus.CounterVec
	DecodeFailures    prometheus.Counter
	ForeignLogsSkipped prometheus.Counter
	HandlerErrors     *prometheus.CounterVec
	HighestBlockSeen  prometheus.Gauge

	// Trade metrics
	TradesIngested   *prometheus.CounterVec
	TradesDuplicate  prometheus.Counter
	TradesRejected   prometheus.Counter
	TokensCreated    prometheus.Counter
	StateTransitions *prometheus.CounterVec

	// Reconciler metrics
	ReconcilerReads     prometheus.Counter
	ReconcilerFallbacks prometheus.Counter

	// Backfill metrics
	ScanBatches     prometheus.Counter
	ScanLogsFetched prometheus.Counter
	TokensRestored  prometheus.Counter
	TradesRestored  prometheus.Counter

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulBlock prometheus.Gauge
	WSReconnects        prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "motherhaven"
	}

	return &Metrics{
		// Ingestion metrics
		BlocksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "blocks_received_total",
			Help:      "Total number of block payloads received",
		}),
		LogsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "logs_processed_total",
			Help:      "Total number of logs run through the decoder",
		}),
		EventsDecoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_decoded_total",
			Help:      "Total number of factory events decoded by name",
		}, []string{"event"}),
		DecodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "decode_failures_total",
			Help:      "Total number of logs that failed ABI decoding",
		}),
		ForeignLogsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "foreign_logs_skipped_total",
			Help:      "Total number of logs skipped for non-factory addresses",
		}),
		HandlerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "handler_errors_total",
			Help:      "Total number of handler errors by event name",
		}, []string{"event"}),
		HighestBlockSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "highest_block_seen",
			Help:      "Highest block number seen",
		}),

		// Trade metrics
		TradesIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "ingested_total",
			Help:      "Total number of trades stored by direction",
		}, []string{"direction"}),
		TradesDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "duplicate_total",
			Help:      "Total number of trades skipped as already stored",
		}),
		TradesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "rejected_total",
			Help:      "Total number of trades rejected for invalid amounts",
		}),
		TokensCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "created_total",
			Help:      "Total number of token creations mirrored",
		}),
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "state_transitions_total",
			Help:      "Total number of lifecycle transitions applied by state",
		}, []string{"state"}),

		// Reconciler metrics
		ReconcilerReads: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "reads_total",
			Help:      "Total number of successful contract state reads",
		}),
		ReconcilerFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "fallbacks_total",
			Help:      "Total number of trades applied with delta arithmetic",
		}),

		// Backfill metrics
		ScanBatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "scan_batches_total",
			Help:      "Total number of block ranges scanned",
		}),
		ScanLogsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "scan_logs_fetched_total",
			Help:      "Total number of logs fetched during backfill",
		}),
		TokensRestored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "tokens_restored_total",
			Help:      "Total number of tokens restored from chain history",
		}),
		TradesRestored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "trades_restored_total",
			Help:      "Total number of trades restored from chain history",
		}),

		// RPC metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_errors_total",
			Help:      "Total number of JSON-RPC call failures",
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
		LastSuccessfulBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_block_timestamp",
			Help:      "Unix timestamp of the last fully processed block",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnects",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventDecoded increments the decoded counter for one event name.
func RecordEventDecoded(event string) {
	DefaultMetrics.EventsDecoded.WithLabelValues(event).Inc()
}

// RecordHandlerError records a handler failure for one event name.
func RecordHandlerError(event string) {
	DefaultMetrics.HandlerErrors.WithLabelValues(event).Inc()
}

// RecordTradeIngested increments the trade counter for a direction.
func RecordTradeIngested(direction string) {
	DefaultMetrics.TradesIngested.WithLabelValues(direction).Inc()
}

// RecordStateTransition increments the transition counter for a state.
func RecordStateTransition(state string) {
	DefaultMetrics.StateTransitions.WithLabelValues(state).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCError records an RPC call failure.
func RecordRPCError(method string) {
	DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// UpdateHighestBlock updates the highest block seen gauge.
func UpdateHighestBlock(block uint64) {
	DefaultMetrics.HighestBlockSeen.Set(float64(block))
}
