// Package metrics is the snapshotable counters-and-latency registry shared
// by the gateway and the node, grounded in friggdb/pool.go's promauto
// usage: every counter also feeds a Prometheus collector so a caller can
// additionally wire promhttp.HandlerFor over the same registry, even
// though the wire encoding of GET /metrics itself is the JSON Snapshot.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "inferplane"

// Registry accumulates request counters, error counters, rate-limit hits,
// circuit-breaker opens and per-endpoint latency, and can produce a point
// -in-time JSON Snapshot.
type Registry struct {
	promReg *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	rateLimitHits prometheus.Counter
	breakerOpens  prometheus.Counter
	latencySecs   *prometheus.HistogramVec

	mu          sync.Mutex
	requests    map[requestKey]int64
	errors      map[string]int64
	rateLimit   int64
	breakerOpen int64
	latencySum  map[string]float64
	latencyN    map[string]int64
}

type requestKey struct {
	endpoint string
	status   string
}

// NewRegistry builds a Registry backed by its own private
// prometheus.Registry so that gateway and node instances (and tests) never
// collide over global collector registration.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Registry{
		promReg: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requests handled, by endpoint and status.",
		}, []string{"endpoint", "status"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total errors, by endpoint.",
		}, []string{"endpoint"}),
		rateLimitHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total requests rejected by the tenant rate limiter.",
		}),
		breakerOpens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_opens_total",
			Help:      "Total circuit breaker trips across all nodes.",
		}),
		latencySecs: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "latency_seconds",
			Help:      "Request latency in seconds, by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		requests:   make(map[requestKey]int64),
		errors:     make(map[string]int64),
		latencySum: make(map[string]float64),
		latencyN:   make(map[string]int64),
	}
}

// Registerer exposes the private Prometheus registry so a binary can mount
// promhttp.HandlerFor(reg, ...) alongside the JSON snapshot endpoint.
func (r *Registry) Registerer() *prometheus.Registry {
	return r.promReg
}

// RecordRequest records one completed request against endpoint with the
// given HTTP status code.
func (r *Registry) RecordRequest(endpoint string, status int) {
	statusStr := statusBucket(status)
	r.requestsTotal.WithLabelValues(endpoint, statusStr).Inc()

	r.mu.Lock()
	r.requests[requestKey{endpoint, statusStr}]++
	r.mu.Unlock()
}

// RecordError records an error against endpoint, independent of whatever
// HTTP status was ultimately returned.
func (r *Registry) RecordError(endpoint string) {
	r.errorsTotal.WithLabelValues(endpoint).Inc()

	r.mu.Lock()
	r.errors[endpoint]++
	r.mu.Unlock()
}

// RecordRateLimitHit records one 429 rejection by the tenant rate limiter.
func (r *Registry) RecordRateLimitHit() {
	r.rateLimitHits.Inc()

	r.mu.Lock()
	r.rateLimit++
	r.mu.Unlock()
}

// RecordCircuitBreakerOpen records one breaker trip (closed -> open).
func (r *Registry) RecordCircuitBreakerOpen() {
	r.breakerOpens.Inc()

	r.mu.Lock()
	r.breakerOpen++
	r.mu.Unlock()
}

// RecordLatency records one observation of request latency for endpoint.
func (r *Registry) RecordLatency(endpoint string, d time.Duration) {
	secs := d.Seconds()
	r.latencySecs.WithLabelValues(endpoint).Observe(secs)

	r.mu.Lock()
	r.latencySum[endpoint] += secs
	r.latencyN[endpoint]++
	r.mu.Unlock()
}

// Snapshot is the JSON-serializable point-in-time view of the registry,
// matching the documented metrics snapshot shape.
type Snapshot struct {
	RequestsTotal            map[string]int64   `json:"requests_total"`
	ErrorsTotal               map[string]int64   `json:"errors_total"`
	RateLimitHitsTotal        int64               `json:"rate_limit_hits_total"`
	CircuitBreakerOpensTotal  int64               `json:"circuit_breaker_opens_total"`
	LatencyAvgSeconds         map[string]float64  `json:"latency_avg_seconds"`
}

// Snapshot takes a consistent point-in-time copy of every counter.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		RequestsTotal:            make(map[string]int64, len(r.requests)),
		ErrorsTotal:               make(map[string]int64, len(r.errors)),
		RateLimitHitsTotal:        r.rateLimit,
		CircuitBreakerOpensTotal:  r.breakerOpen,
		LatencyAvgSeconds:         make(map[string]float64, len(r.latencySum)),
	}
	for k, v := range r.requests {
		snap.RequestsTotal[k.endpoint+":"+k.status] = v
	}
	for k, v := range r.errors {
		snap.ErrorsTotal[k] = v
	}
	for endpoint, sum := range r.latencySum {
		n := r.latencyN[endpoint]
		if n > 0 {
			snap.LatencyAvgSeconds[endpoint] = sum / float64(n)
		}
	}
	return snap
}

func statusBucket(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
