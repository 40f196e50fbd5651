package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	entriesDecided  *prometheus.CounterVec
	stockRejections prometheus.Counter
	integrityDrift  prometheus.Gauge
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "Number of HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decided := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_stock_entries_decided_total",
		Help: "Stock entries moved to a terminal status, by type and outcome.",
	}, []string{"entry_type", "outcome"})
	rejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_stock_insufficient_total",
		Help: "Outward approvals rejected for insufficient stock.",
	})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meridian_stock_integrity_drift",
		Help: "Products whose stored quantity disagrees with the approved ledger, as of the last scan.",
	})
	registry.MustRegister(requests, duration, decided, rejections, drift)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		entriesDecided:  decided,
		stockRejections: rejections,
		integrityDrift:  drift,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
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

// EntryDecided counts a terminal transition of a stock entry.
func (m *Metrics) EntryDecided(entryType, outcome string) {
	if m == nil {
		return
	}
	m.entriesDecided.WithLabelValues(entryType, outcome).Inc()
}

// StockRejection counts an insufficient-stock approval failure.
func (m *Metrics) StockRejection() {
	if m == nil {
		return
	}
	m.stockRejections.Inc()
}

// SetIntegrityDrift publishes the mismatch count from the integrity scan.
func (m *Metrics) SetIntegrityDrift(count int) {
	if m == nil {
		return
	}
	m.integrityDrift.Set(float64(count))
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
