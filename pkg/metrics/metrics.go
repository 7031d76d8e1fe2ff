// Package metrics defines the Prometheus collectors of the shop service and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors of the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ExtractionsTotal     *prometheus.CounterVec
	ExtractionDuration   prometheus.Histogram
	TermsExtracted       prometheus.Histogram
	QuerySegments        *prometheus.HistogramVec
	HandoffsTotal        *prometheus.CounterVec
	PageFetchesTotal     *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ExtractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_extractions_total",
				Help: "Catalog page extractions by outcome (ok, failed).",
			},
			[]string{"outcome"},
		),
		ExtractionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shop_extraction_duration_seconds",
				Help:    "Time to parse a catalog page and build its shop section.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
		),
		TermsExtracted: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shop_dictionary_entries",
				Help:    "Number of translatable terms found per page.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),
		QuerySegments: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shop_query_segments",
				Help:    "Segments per tokenized query by operation.",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
			},
			[]string{"operation"},
		),
		HandoffsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_handoffs_total",
				Help: "Queries sent to a marketplace by merchant.",
			},
			[]string{"merchant"},
		),
		PageFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_page_fetches_total",
				Help: "Catalog page downloads by outcome (ok, error, rejected).",
			},
			[]string{"outcome"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of term cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of term cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ExtractionsTotal,
		m.ExtractionDuration,
		m.TermsExtracted,
		m.QuerySegments,
		m.HandoffsTotal,
		m.PageFetchesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
