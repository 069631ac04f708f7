// Package metrics exposes Prometheus collectors for the emblem crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entitiesTotal              *prometheus.CounterVec
	fetchRequestsTotal         *prometheus.CounterVec
	fetchRetriesTotal          prometheus.Counter
	fetchDurationSeconds       *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	hostCooldownsTotal         *prometheus.CounterVec
	rejectionsTotal            *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		entitiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emblem_entities_total",
				Help: "Entities finished, labeled by terminal status.",
			},
			[]string{"status"},
		)
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emblem_fetch_requests_total",
				Help: "Fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "emblem_fetch_retries_total",
				Help: "Fetch retries after transient failures.",
			},
		)
		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emblem_fetch_duration_seconds",
				Help:    "Duration of successful fetches.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"host"},
		)
		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emblem_rate_limit_delay_seconds",
				Help:    "Delay introduced by the per-host rate limiter.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"host"},
		)
		hostCooldownsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emblem_host_cooldowns_total",
				Help: "Circuit-breaker cooldowns triggered per host.",
			},
			[]string{"host"},
		)
		rejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emblem_validation_rejections_total",
				Help: "Candidate validation rejections, labeled by reason.",
			},
			[]string{"reason"},
		)
		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "emblem_active_workers",
				Help: "Workers currently processing an entity.",
			},
		)
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emblem_http_requests_total",
				Help: "API requests served, labeled by method and status code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emblem_http_request_duration_seconds",
				Help:    "API request handling duration.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		)
	})
}

// Middleware instruments API handlers with request counts and latency.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		if httpRequestsTotal != nil {
			httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.code)).Inc()
		}
		if httpRequestDurationSeconds != nil {
			httpRequestDurationSeconds.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// IncEntityOutcome records one finished entity.
func IncEntityOutcome(status string) {
	if entitiesTotal != nil {
		entitiesTotal.WithLabelValues(status).Inc()
	}
}

// IncFetch records one fetch attempt outcome.
func IncFetch(outcome string) {
	if fetchRequestsTotal != nil {
		fetchRequestsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncFetchRetry records one retry.
func IncFetchRetry() {
	if fetchRetriesTotal != nil {
		fetchRetriesTotal.Inc()
	}
}

// ObserveFetchDuration records the duration of a successful fetch.
func ObserveFetchDuration(host string, d time.Duration) {
	if fetchDurationSeconds != nil {
		fetchDurationSeconds.WithLabelValues(host).Observe(d.Seconds())
	}
}

// ObserveRateLimitDelay records time spent waiting on the host limiter.
func ObserveRateLimitDelay(host string, d time.Duration) {
	if rateLimitDelaySeconds != nil {
		rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
	}
}

// IncHostCooldown records a circuit-breaker trip.
func IncHostCooldown(host string) {
	if hostCooldownsTotal != nil {
		hostCooldownsTotal.WithLabelValues(host).Inc()
	}
}

// IncRejection records a validation rejection.
func IncRejection(reason string) {
	if rejectionsTotal != nil {
		rejectionsTotal.WithLabelValues(reason).Inc()
	}
}

// WorkerStarted marks a worker as busy.
func WorkerStarted() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// WorkerFinished marks a worker as idle.
func WorkerFinished() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}
