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
	postingEntries  *prometheus.CounterVec
	postingFailures *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_postings_total",
		Help: "Jumlah transaksi yang berhasil diposting per jenis transaksi.",
	}, []string{"type"})
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_total",
		Help: "Jumlah baris buku besar yang ditulis per jenis transaksi.",
	}, []string{"type"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_posting_failures_total",
		Help: "Jumlah posting yang gagal per jenis transaksi dan alasan.",
	}, []string{"type", "reason"})
	registry.MustRegister(requests, duration, postings, entries, failures)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		postings:        postings,
		postingEntries:  entries,
		postingFailures: failures,
	}
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

// ObservePosting mencatat posting yang berhasil beserta jumlah baris buku besarnya.
func (m *Metrics) ObservePosting(txType string, entries int) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(txType).Inc()
	if entries > 0 {
		m.postingEntries.WithLabelValues(txType).Add(float64(entries))
	}
}

// ObservePostingFailure mencatat posting yang ditolak.
func (m *Metrics) ObservePostingFailure(txType, reason string) {
	if m == nil {
		return
	}
	m.postingFailures.WithLabelValues(txType, reason).Inc()
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
