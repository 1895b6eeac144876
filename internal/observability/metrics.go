package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application. It also
// implements ledger.Recorder so the posting engine can count accepted
// and rejected batches on the same registry.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	postingsTotal     *prometheus.CounterVec
	postingLinesTotal *prometheus.CounterVec
	rejectionsTotal   *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_ledger_postings_total",
		Help: "Accepted ledger posting batches by source document type.",
	}, []string{"source"})
	postingLines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_ledger_posting_lines_total",
		Help: "Ledger entry lines written, by source document type.",
	}, []string{"source"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_ledger_posting_rejections_total",
		Help: "Rejected ledger posting batches by source type and reason.",
	}, []string{"source", "reason"})
	registry.MustRegister(requests, duration, postings, postingLines, rejections)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		postingsTotal:     postings,
		postingLinesTotal: postingLines,
		rejectionsTotal:   rejections,
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

// PostingAccepted counts a committed posting batch and its lines.
func (m *Metrics) PostingAccepted(sourceType string, lines int) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(sourceType).Inc()
	m.postingLinesTotal.WithLabelValues(sourceType).Add(float64(lines))
}

// PostingRejected counts a batch the engine refused to write.
func (m *Metrics) PostingRejected(sourceType, reason string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(sourceType, reason).Inc()
}

// Registerer exposes the registry for registering custom metrics.
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
