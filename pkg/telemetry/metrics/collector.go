// Package metrics exposes Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcome label values.
const (
	OutcomeRelayed       = "relayed"
	OutcomeUnauthorized  = "unauthorized"
	OutcomeForbidden     = "forbidden"
	OutcomeUnknown       = "unknown_deployment"
	OutcomeNotProxied    = "not_proxied"
	OutcomeUnavailable   = "upstream_unavailable"
	OutcomeMisconfigured = "gateway_misconfigured"
	OutcomeStreamError   = "stream_error"
)

// Collector registers and records the gateway's Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	firstByteLatency *prometheus.HistogramVec
	attemptsTotal    *prometheus.CounterVec
	failoversTotal   *prometheus.CounterVec
	inFlight         prometheus.Gauge
	relayedBytes     *prometheus.CounterVec
	relayedChunks    *prometheus.CounterVec
}

// NewCollector creates a collector backed by registry. A nil registry gets
// a fresh one, which keeps tests isolated from each other.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ganymede",
				Name:      "requests_total",
				Help:      "Inbound requests by deployment and outcome",
			},
			[]string{"deployment", "outcome"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ganymede",
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration including stream delivery",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"deployment"},
		),

		firstByteLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ganymede",
				Name:      "upstream_first_byte_seconds",
				Help:      "Latency from dispatch to committed upstream response headers",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"deployment"},
		),

		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ganymede",
				Name:      "upstream_attempts_total",
				Help:      "Upstream candidate attempts by deployment and result",
			},
			[]string{"deployment", "result"},
		),

		failoversTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ganymede",
				Name:      "upstream_failovers_total",
				Help:      "Requests served by a non-primary upstream candidate",
			},
			[]string{"deployment"},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ganymede",
				Name:      "requests_in_flight",
				Help:      "Requests currently being relayed",
			},
		),

		relayedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ganymede",
				Name:      "relayed_bytes_total",
				Help:      "Response bytes delivered to callers",
			},
			[]string{"deployment"},
		),

		relayedChunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ganymede",
				Name:      "relayed_chunks_total",
				Help:      "Response chunks delivered to callers",
			},
			[]string{"deployment"},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.firstByteLatency,
		c.attemptsTotal,
		c.failoversTotal,
		c.inFlight,
		c.relayedBytes,
		c.relayedChunks,
	)

	return c
}

// RecordRequest records a finished inbound request.
func (c *Collector) RecordRequest(deployment, outcome string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(deployment, outcome).Inc()
	c.requestDuration.WithLabelValues(deployment).Observe(duration.Seconds())
}

// RecordFirstByte records the latency to the committed candidate's headers.
func (c *Collector) RecordFirstByte(deployment string, latency time.Duration) {
	c.firstByteLatency.WithLabelValues(deployment).Observe(latency.Seconds())
}

// RecordAttempt records one upstream candidate attempt.
func (c *Collector) RecordAttempt(deployment, result string) {
	c.attemptsTotal.WithLabelValues(deployment, result).Inc()
}

// RecordFailover records a request committed on a fallback candidate.
func (c *Collector) RecordFailover(deployment string) {
	c.failoversTotal.WithLabelValues(deployment).Inc()
}

// RequestStarted marks a request in flight; call the returned func when it
// finishes.
func (c *Collector) RequestStarted() func() {
	c.inFlight.Inc()
	return c.inFlight.Dec
}

// RecordRelayed accumulates delivered stream volume.
func (c *Collector) RecordRelayed(deployment string, bytes, chunks int64) {
	c.relayedBytes.WithLabelValues(deployment).Add(float64(bytes))
	c.relayedChunks.WithLabelValues(deployment).Add(float64(chunks))
}

// Handler returns the Prometheus scrape handler for this collector's
// registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Registry exposes the underlying registry for test assertions.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
