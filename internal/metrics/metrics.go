// Package metrics exposes Prometheus collectors for the gateway service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	cacheEventsTotal           *prometheus.CounterVec
	processorRunsTotal         *prometheus.CounterVec
	semaphoreWaitSeconds       prometheus.Histogram
	activeJobs                 prometheus.Gauge
	storeErrorsTotal           *prometheus.CounterVec
	rateLimitedTotal           prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		cacheEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_cache_events_total",
				Help: "Cache lookups and writes, labeled by backend and event.",
			},
			[]string{"backend", "event"},
		)

		processorRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_processor_runs_total",
				Help: "External tool invocations, labeled by outcome.",
			},
			[]string{"status"},
		)

		semaphoreWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_semaphore_wait_seconds",
				Help:    "Histogram of time spent waiting for a subprocess permit.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
		)

		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_active_jobs",
				Help: "Number of subprocess executions currently in flight.",
			},
		)

		storeErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_store_errors_total",
				Help: "Swallowed best-effort store failures, labeled by store.",
			},
			[]string{"store"},
		)

		rateLimitedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_rate_limited_total",
				Help: "Requests rejected by the per-client rate limiter.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCacheEvent counts a cache hit, miss, write, or error.
func ObserveCacheEvent(backend, event string) {
	cacheEventsTotal.WithLabelValues(backend, event).Inc()
}

// ObserveProcessorRun counts a finished external tool invocation.
func ObserveProcessorRun(status string) {
	processorRunsTotal.WithLabelValues(status).Inc()
}

// ObserveSemaphoreWait records the duration of a permit wait.
func ObserveSemaphoreWait(duration time.Duration) {
	semaphoreWaitSeconds.Observe(duration.Seconds())
}

// IncActiveJobs increments the in-flight job gauge.
func IncActiveJobs() {
	activeJobs.Inc()
}

// DecActiveJobs decrements the in-flight job gauge.
func DecActiveJobs() {
	activeJobs.Dec()
}

// ObserveStoreError counts a swallowed result-store or cache failure.
func ObserveStoreError(store string) {
	storeErrorsTotal.WithLabelValues(store).Inc()
}

// IncRateLimited counts a request rejected by the rate limiter.
func IncRateLimited() {
	rateLimitedTotal.Inc()
}
