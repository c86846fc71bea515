// Package observability provides Prometheus metrics, OpenTelemetry tracing,
// and HTTP middleware for monitoring the ClawBridge gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Attempt outcomes recorded on BackendAttemptsTotal.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeEmpty    = "empty"
	OutcomeFiltered = "filtered"
	OutcomeNotReady = "not_ready"
	OutcomeAborted  = "aborted"
)

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawbridge_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clawbridge_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clawbridge_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// BackendAttemptsTotal counts completion attempts per backend and outcome.
	BackendAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawbridge_backend_attempts_total",
			Help: "Backend completion attempts",
		},
		[]string{"provider", "model", "outcome"},
	)

	// BackendLatency records backend latency in seconds.
	BackendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clawbridge_backend_latency_seconds",
			Help:    "Backend latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// FallbacksTotal counts chain advances that led to an answer.
	FallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clawbridge_fallbacks_total",
			Help: "Fallback models used",
		},
	)

	// GatewayPhase is 1 for the supervised gateway's current phase, 0 otherwise.
	GatewayPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clawbridge_gateway_phase",
			Help: "Supervised gateway phase",
		},
		[]string{"phase"},
	)

	// GatewayRestartsTotal counts automatic gateway restarts.
	GatewayRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clawbridge_gateway_restarts_total",
			Help: "Gateway restarts",
		},
	)

	// ConnectivityResults counts connectivity probe results.
	ConnectivityResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawbridge_connectivity_results",
			Help: "Connectivity probe results",
		},
		[]string{"provider", "outcome"},
	)

	// AuthRejectedTotal counts management API requests rejected by auth.
	AuthRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawbridge_auth_rejected_total",
			Help: "Authentication rejections",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		BackendAttemptsTotal,
		BackendLatency,
		FallbacksTotal,
		GatewayPhase,
		GatewayRestartsTotal,
		ConnectivityResults,
		AuthRejectedTotal,
	)
}

// SetGatewayPhase marks phase as current among phases.
func SetGatewayPhase(phase string, phases []string) {
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		GatewayPhase.WithLabelValues(p).Set(v)
	}
}
