package core

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements MetricsCollector using Prometheus, and
// additionally exposes domain counters recorded by the advisory pipeline.
// All metrics are registered on a private registry so tests can construct
// multiple collectors without duplicate-registration panics.
type PrometheusCollector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	advisoriesTotal   *prometheus.CounterVec
	weatherCacheTotal *prometheus.CounterVec
	upstreamErrors    *prometheus.CounterVec
}

// NewPrometheusCollector creates a collector with all metric vectors registered.
func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &PrometheusCollector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropsense_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cropsense_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		advisoriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropsense_advisories_total",
				Help: "Total number of advisories generated",
			},
			[]string{"source"},
		),
		weatherCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropsense_weather_cache_total",
				Help: "Weather cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropsense_upstream_errors_total",
				Help: "Total number of upstream provider errors",
			},
			[]string{"provider", "kind"},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.advisoriesTotal,
		c.weatherCacheTotal,
		c.upstreamErrors,
	)

	return c
}

// RecordRequest implements MetricsCollector.
func (c *PrometheusCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, endpoint, status).Inc()
	c.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordAdvisory records a generated advisory. Source is "model" or "override".
func (c *PrometheusCollector) RecordAdvisory(source string) {
	c.advisoriesTotal.WithLabelValues(source).Inc()
}

// RecordCacheOutcome records a weather cache lookup outcome
// ("hit", "miss", "stale", "unavailable").
func (c *PrometheusCollector) RecordCacheOutcome(outcome string) {
	c.weatherCacheTotal.WithLabelValues(outcome).Inc()
}

// RecordUpstreamError records a failed call to an external provider.
func (c *PrometheusCollector) RecordUpstreamError(provider, kind string) {
	c.upstreamErrors.WithLabelValues(provider, kind).Inc()
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
