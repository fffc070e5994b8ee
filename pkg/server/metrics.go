package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finverse/finverse/pkg/session"
)

// Metrics holds the Prometheus metrics of the service.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	gateEvaluations *prometheus.CounterVec
	staleResults    prometheus.Counter
	sessionsActive  prometheus.Gauge
	modelLoads      *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates the metrics on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finverse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finverse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		gateEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finverse_gate_evaluations_total",
				Help: "Total number of classification gate evaluations by outcome",
			},
			[]string{"outcome"},
		),

		staleResults: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "finverse_gate_stale_results_total",
				Help: "Total number of gate results discarded because a newer one was applied",
			},
		),

		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "finverse_sessions_active",
				Help: "Number of currently active drawing sessions",
			},
		),

		modelLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finverse_model_loads_total",
				Help: "Total number of classifier load attempts by result",
			},
			[]string{"result"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.gateEvaluations,
		m.staleResults,
		m.sessionsActive,
		m.modelLoads,
	)

	return m
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordGateEvaluation counts a gate evaluation by outcome.
func (m *Metrics) RecordGateEvaluation(outcome string) {
	m.gateEvaluations.WithLabelValues(outcome).Inc()
}

// RecordStaleResult counts a discarded gate result.
func (m *Metrics) RecordStaleResult() {
	m.staleResults.Inc()
}

// SetActiveSessions updates the session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.sessionsActive.Set(float64(n))
}

// RecordModelLoad counts a classifier load attempt.
func (m *Metrics) RecordModelLoad(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.modelLoads.WithLabelValues(result).Inc()
}

// SessionHooks routes session events into the metrics.
func (m *Metrics) SessionHooks() session.Hooks {
	return session.Hooks{
		Evaluated: m.RecordGateEvaluation,
		Stale:     m.RecordStaleResult,
		Active:    m.SetActiveSessions,
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsMiddleware records request metrics labelled by the matched route
// pattern.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.RecordHTTPRequest(r.Method, endpointName(r), strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not support http.Hijacker")
}

// endpointName returns the chi route pattern, which keeps label cardinality
// independent of session and client IDs.
func endpointName(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unknown"
}
