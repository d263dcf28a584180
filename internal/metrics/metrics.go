package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for scraper runs. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	WindowsTotal    *prometheus.CounterVec
	RecordsTotal    *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planscrape_requests_total",
			Help: "HTTP requests issued, by authority and method.",
		},
		[]string{"authority", "method"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planscrape_request_duration_seconds",
			Help:    "HTTP request latency per authority.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"authority"},
	)
	windows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planscrape_windows_total",
			Help: "Sequence windows fetched by iteration strategies.",
		},
		[]string{"authority", "strategy"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planscrape_records_total",
			Help: "Records returned to callers, by kind (id or application).",
		},
		[]string{"authority", "kind"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planscrape_errors_total",
			Help: "Scrape errors by taxonomy tag.",
		},
		[]string{"authority", "tag"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planscrape_retries_total",
			Help: "Transport retry attempts scheduled.",
		},
		[]string{"authority"},
	)

	registry.MustRegister(requests, duration, windows, records, errorsTotal, retries)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: duration,
		WindowsTotal:    windows,
		RecordsTotal:    records,
		ErrorsTotal:     errorsTotal,
		RetriesTotal:    retries,
	}
}

// ObserveRequest records one HTTP request and its latency.
func (m *Metrics) ObserveRequest(authority, method string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(authority, method).Inc()
	m.RequestDuration.WithLabelValues(authority).Observe(d.Seconds())
}

// IncWindow counts one inner fetch of a strategy.
func (m *Metrics) IncWindow(authority, strategy string) {
	if m == nil {
		return
	}
	m.WindowsTotal.WithLabelValues(authority, strategy).Inc()
}

// AddRecords counts records handed back to the caller.
func (m *Metrics) AddRecords(authority, kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsTotal.WithLabelValues(authority, kind).Add(float64(n))
}

// IncError counts one error by taxonomy tag.
func (m *Metrics) IncError(authority, tag string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(authority, tag).Inc()
}

// IncRetry counts one scheduled retry.
func (m *Metrics) IncRetry(authority string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(authority).Inc()
}

// WriteTextfile dumps the registry in the node-exporter textfile format so
// cron-driven runs can be picked up by a collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
