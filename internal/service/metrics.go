package service

import (
	"net/http"
	"strconv"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements ports.LedgerMetrics and the HTTP request
// metrics on a dedicated registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	mutationsTotal      *prometheus.CounterVec
	mutationDuration    *prometheus.HistogramVec
	lockWait            prometheus.Histogram
	retriesTotal        *prometheus.CounterVec
	compensationsTotal  *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewPrometheusMetrics registers all collectors on a fresh registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		mutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_mutations_total",
			Help: "Balance mutations, labeled by entry type and outcome (ok or error code)",
		}, []string{"type", "outcome"}),
		mutationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_mutation_duration_seconds",
			Help:    "Latency of balance mutations including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"type"}),
		lockWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_account_lock_wait_seconds",
			Help:    "Time spent waiting for exclusive account access",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}),
		retriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_mutation_retries_total",
			Help: "Transient mutation failures that were retried",
		}, []string{"type"}),
		compensationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transfer_compensations_total",
			Help: "Transfer compensations, labeled by outcome",
		}, []string{"outcome"}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total HTTP requests processed, labeled by status code",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "Latency distribution of HTTP requests",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "route"}),
	}
}

func (m *PrometheusMetrics) ObserveMutation(entryType domain.EntryType, outcome string, d time.Duration) {
	m.mutationsTotal.WithLabelValues(string(entryType), outcome).Inc()
	m.mutationDuration.WithLabelValues(string(entryType)).Observe(d.Seconds())
}

func (m *PrometheusMetrics) ObserveLockWait(d time.Duration) {
	m.lockWait.Observe(d.Seconds())
}

func (m *PrometheusMetrics) IncRetry(entryType domain.EntryType) {
	m.retriesTotal.WithLabelValues(string(entryType)).Inc()
}

func (m *PrometheusMetrics) IncCompensation(outcome string) {
	m.compensationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one served request.
func (m *PrometheusMetrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

type noopMetrics struct{}

func (noopMetrics) ObserveMutation(domain.EntryType, string, time.Duration) {}
func (noopMetrics) ObserveLockWait(time.Duration)                          {}
func (noopMetrics) IncRetry(domain.EntryType)                              {}
func (noopMetrics) IncCompensation(string)                                 {}
