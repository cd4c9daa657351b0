// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the quillgate server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quillgate_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quillgate_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quillgate_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// GenerationsTotal counts generation calls routed to backend providers,
	// labeled with the error kind ("ok" on success).
	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quillgate_generations_total",
			Help: "Generation calls by provider and outcome",
		},
		[]string{"provider", "kind"},
	)

	// GenerationLatency records backend provider latency in seconds.
	GenerationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quillgate_generation_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider"},
	)

	// RetryAttemptsTotal counts retried provider calls.
	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quillgate_retry_attempts_total",
			Help: "Provider call retries",
		},
		[]string{"provider"},
	)

	// StreamSkippedFramesTotal counts malformed protocol lines dropped by
	// the stream relay. A steady climb signals backend protocol drift.
	StreamSkippedFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quillgate_stream_skipped_frames_total",
			Help: "Malformed stream frames skipped",
		},
		[]string{"provider"},
	)

	// SessionsActive tracks live sessions in the session store.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quillgate_sessions_active",
			Help: "Live sessions",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		GenerationsTotal,
		GenerationLatency,
		RetryAttemptsTotal,
		StreamSkippedFramesTotal,
		SessionsActive,
	)
}
