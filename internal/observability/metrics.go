// Package observability owns the Prometheus registry shared by the API and worker.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects HTTP and pharmacy domain metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	stockUnits  *prometheus.CounterVec
	retries     *prometheus.CounterVec
	exhausted   *prometheus.CounterVec
	drift       prometheus.Counter
	transitions *prometheus.CounterVec
}

// NewMetrics initialises the registry with request and domain collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	stockUnits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_pharmacy_stock_units_total",
		Help: "Units moved in or out of batches by reason.",
	}, []string{"reason"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_pharmacy_allocation_retries_total",
		Help: "Allocation attempts retried after a write conflict.",
	}, []string{"operation"})
	exhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_pharmacy_allocation_exhausted_total",
		Help: "Allocations abandoned after the retry budget ran out.",
	}, []string{"operation"})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_pharmacy_stock_drift_total",
		Help: "Drugs whose cached stock disagreed with their batches during reconciliation.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_pharmacy_transitions_total",
		Help: "Workflow transitions applied by entity and action.",
	}, []string{"entity", "action"})
	registry.MustRegister(requests, duration, stockUnits, retries, exhausted, drift, transitions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		stockUnits:      stockUnits,
		retries:         retries,
		exhausted:       exhausted,
		drift:           drift,
		transitions:     transitions,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency for every request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for extra collectors such as job metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveStockMovement counts units received or allocated.
func (m *Metrics) ObserveStockMovement(reason string, units int64) {
	if m == nil || units <= 0 {
		return
	}
	m.stockUnits.WithLabelValues(reason).Add(float64(units))
}

// ObserveAllocationRetry counts a conflict-driven retry.
func (m *Metrics) ObserveAllocationRetry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

// ObserveAllocationExhausted counts a stock write that spent its retry budget.
func (m *Metrics) ObserveAllocationExhausted(operation string) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(operation).Inc()
}

// ObserveStockDrift counts drugs found out of sync.
func (m *Metrics) ObserveStockDrift(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.drift.Add(float64(count))
}

// ObserveTransition counts a workflow transition.
func (m *Metrics) ObserveTransition(entity, action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, action).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
