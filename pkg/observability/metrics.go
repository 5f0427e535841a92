// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the cloudcompchem service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// CalculationBuckets defines histogram buckets suited for electronic
// structure runs, from 100ms single points to hour-long optimizations.
var CalculationBuckets = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudcompchem_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudcompchem_request_duration_seconds",
			Help:    "Request duration",
			Buckets: CalculationBuckets,
		},
		[]string{"method", "route"},
	)

	// CalculationsTotal counts finished calculations by kind and outcome
	// (ok or the error type).
	CalculationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudcompchem_calculations_total",
			Help: "Calculations by outcome",
		},
		[]string{"kind", "outcome"},
	)

	// UnconvergedTotal counts results the engine returned with converged=false.
	UnconvergedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudcompchem_unconverged_total",
			Help: "Results that did not converge",
		},
		[]string{"kind"},
	)

	// EngineRequestsTotal counts calls to the electronic-structure engine.
	EngineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudcompchem_engine_requests_total",
			Help: "Engine requests",
		},
		[]string{"provider", "kind", "status"},
	)

	// EngineLatency records engine latency in seconds.
	EngineLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudcompchem_engine_latency_seconds",
			Help:    "Engine latency",
			Buckets: CalculationBuckets,
		},
		[]string{"provider", "kind"},
	)

	// JobsActive tracks asynchronous jobs currently running on local workers.
	JobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudcompchem_jobs_active",
			Help: "Running jobs",
		},
	)

	// JobsTotal counts asynchronous jobs by queue backend and final status.
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudcompchem_jobs_total",
			Help: "Finished jobs",
		},
		[]string{"backend", "status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudcompchem_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		CalculationsTotal,
		UnconvergedTotal,
		EngineRequestsTotal,
		EngineLatency,
		JobsActive,
		JobsTotal,
		RateLimitRejectedTotal,
	)
}
