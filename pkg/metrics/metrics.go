// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// StreamDuration tracks completion stream duration.
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "completion_stream_duration_seconds",
			Help:    "Completion stream duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// TokensTotal tracks tokens processed per model and direction.
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_tokens_total",
			Help: "Total completion tokens processed",
		},
		[]string{"model", "direction"},
	)

	// ActiveStreams tracks in-flight completion streams.
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "completion_streams_active",
			Help: "Number of active completion streams",
		},
	)

	// SagaSteps tracks consistency saga step outcomes.
	SagaSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consistency_saga_steps_total",
			Help: "Consistency saga steps by outcome",
		},
		[]string{"saga", "step", "outcome"},
	)

	// StoreErrors tracks persistence failures per operation.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Persistence operation failures",
		},
		[]string{"op"},
	)

	// MessagesTotal tracks messages written to history.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"role"},
	)

	// AdapterCacheSize tracks live adapter instances in the factory.
	AdapterCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adapter_cache_size",
			Help: "Number of cached protocol adapter instances",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordStream records metrics for a completion stream.
func RecordStream(model, status string, duration float64, tokensIn, tokensOut int) {
	StreamDuration.WithLabelValues(model, status).Observe(duration)
	TokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	TokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordSagaStep records the outcome of a single saga step.
func RecordSagaStep(saga, step, outcome string) {
	SagaSteps.WithLabelValues(saga, step, outcome).Inc()
}

// RecordStoreError records a persistence failure.
func RecordStoreError(op string) {
	StoreErrors.WithLabelValues(op).Inc()
}
