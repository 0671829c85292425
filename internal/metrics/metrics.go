// Package metrics holds the prometheus collectors of the service.
// They register on the default registry, which /metrics exposes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	codesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlative_codes_issued_total",
			Help: "Codes issued partitioned by entity type and kind (code or subcode)",
		},
		[]string{"entity_type", "kind"},
	)

	generationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlative_generation_failures_total",
			Help: "Failed code generations partitioned by entity type and error code",
		},
		[]string{"entity_type", "reason"},
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "correlative_generation_duration_seconds",
			Help:    "Latency of code generation including storage round-trips",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"entity_type", "outcome"},
	)

	scopeCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlative_scope_cache_lookups_total",
			Help: "Scope id cache lookups partitioned by result",
		},
		[]string{"result"},
	)

	errorLogWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "correlative_error_log_write_failures_total",
			Help: "Error log appends that failed and were swallowed",
		},
	)

	countersReset = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlative_counters_reset_total",
			Help: "Counters zeroed by period resets partitioned by policy",
		},
		[]string{"policy"},
	)

	resetFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlative_reset_failures_total",
			Help: "Configurations that failed to reset partitioned by policy",
		},
		[]string{"policy"},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "correlative_db_query_duration_seconds",
			Help:    "Latency of database statements partitioned by verb and outcome",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		},
		[]string{"verb", "outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

func CodeIssued(entityType, kind string) {
	codesIssued.WithLabelValues(entityType, kind).Inc()
}

func GenerationFailed(entityType, reason string) {
	generationFailures.WithLabelValues(entityType, reason).Inc()
}

func ObserveGeneration(entityType, outcome string, started time.Time) {
	generationDuration.WithLabelValues(entityType, outcome).Observe(time.Since(started).Seconds())
}

func ScopeCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	scopeCacheLookups.WithLabelValues(result).Inc()
}

func ErrorLogWriteFailed() {
	errorLogWriteFailures.Inc()
}

func CountersReset(policy string, n int) {
	countersReset.WithLabelValues(policy).Add(float64(n))
}

func ResetFailed(policy string) {
	resetFailures.WithLabelValues(policy).Inc()
}

func ObserveQuery(verb, outcome string, started time.Time) {
	dbQueryDuration.WithLabelValues(verb, outcome).Observe(time.Since(started).Seconds())
}

// HTTPInFlight tracks a request in flight and returns the function ending it
func HTTPInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

func ObserveHTTPRequest(method, route, status string, started time.Time) {
	labels := prometheus.Labels{"method": method, "route": route, "status": status}
	httpRequestsTotal.With(labels).Inc()
	httpRequestDuration.With(labels).Observe(time.Since(started).Seconds())
}
