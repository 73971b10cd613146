package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	postings        *prometheus.CounterVec
	voids           *prometheus.CounterVec
	rejected        *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik buku besar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "books_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "books_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "books_postings_total",
		Help: "Journal entries appended, by origin.",
	}, []string{"origin"})
	voids := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "books_voids_total",
		Help: "Entries voided, by the origin of the voided entry.",
	}, []string{"origin"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "books_rejected_operations_total",
		Help: "Write operations rolled back, by operation and error kind.",
	}, []string{"op", "kind"})
	registry.MustRegister(requests, duration, postings, voids, rejected)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		postings:        postings,
		voids:           voids,
		rejected:        rejected,
	}
}

// RecordPosting counts an appended entry.
func (m *Metrics) RecordPosting(origin string) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(origin).Inc()
}

// RecordVoid counts a voided entry.
func (m *Metrics) RecordVoid(origin string) {
	if m == nil {
		return
	}
	m.voids.WithLabelValues(origin).Inc()
}

// RecordRejected counts a write that was rolled back.
func (m *Metrics) RecordRejected(op, kind string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(op, kind).Inc()
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
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

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
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
