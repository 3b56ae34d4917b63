package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreOperationLatency records document store operation latency by
	// operation and collection.
	StoreOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inkwell_store_operation_latency_seconds",
		Help:    "Document store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "collection"})

	// TransactionsTotal counts multi-document transactions by outcome.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_store_transactions_total",
		Help: "Total number of store transactions by outcome",
	}, []string{"status"})

	// SnapshotsDelivered counts snapshot pushes delivered to typed streams.
	SnapshotsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_snapshots_delivered_total",
		Help: "Total number of subscription snapshots delivered",
	}, []string{"collection"})

	// ActiveSubscriptions is the gauge of open subscription streams.
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inkwell_active_subscriptions",
		Help: "Number of currently open subscription streams",
	})

	// StreamErrors counts subscription streams terminated by transport errors.
	StreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_stream_errors_total",
		Help: "Total number of subscription streams ended by an error",
	}, []string{"collection"})

	// ToggleOperations counts toggle reconciliations by relation and action.
	ToggleOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_toggle_operations_total",
		Help: "Total number of toggle operations by relation and action",
	}, []string{"relation", "action"})
)

// StoreMetrics wraps store access for recording operation latency.
type StoreMetrics struct{}

// NewStoreMetrics returns a new StoreMetrics instance.
func NewStoreMetrics() *StoreMetrics {
	return &StoreMetrics{}
}

// ObserveOperation records the latency of a store operation.
func (m *StoreMetrics) ObserveOperation(operation, collection string, start time.Time) {
	StoreOperationLatency.WithLabelValues(operation, collection).Observe(time.Since(start).Seconds())
}

// TrackOperation returns a function that records operation latency when
// called (e.g. defer).
func (m *StoreMetrics) TrackOperation(operation, collection string) func() {
	start := time.Now()
	return func() {
		m.ObserveOperation(operation, collection, start)
	}
}

// RecordTransaction increments the transaction counter for the outcome.
func (m *StoreMetrics) RecordTransaction(status string) {
	TransactionsTotal.WithLabelValues(status).Inc()
}

// StreamMetrics tracks subscription stream activity.
type StreamMetrics struct{}

// NewStreamMetrics returns a new StreamMetrics instance.
func NewStreamMetrics() *StreamMetrics {
	return &StreamMetrics{}
}

// StreamOpened increments the active subscription gauge.
func (*StreamMetrics) StreamOpened() {
	ActiveSubscriptions.Inc()
}

// StreamClosed decrements the active subscription gauge.
func (*StreamMetrics) StreamClosed() {
	ActiveSubscriptions.Dec()
}

// RecordSnapshot counts a delivered snapshot for the collection.
func (*StreamMetrics) RecordSnapshot(collection string) {
	SnapshotsDelivered.WithLabelValues(collection).Inc()
}

// RecordStreamError counts a stream terminated by a transport error.
func (*StreamMetrics) RecordStreamError(collection string) {
	StreamErrors.WithLabelValues(collection).Inc()
}
