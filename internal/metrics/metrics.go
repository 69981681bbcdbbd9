// Package metrics exposes mixer and server counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsiec/mosaic/internal/mixer"
)

// Metrics holds the Prometheus collectors for one mixer process. It
// implements mixer.Observer.
type Metrics struct {
	registry *prometheus.Registry

	framesRendered   prometheus.Counter
	framesSkipped    prometheus.Counter
	composeSeconds   prometheus.Histogram
	composedChannels prometheus.Gauge
	qosJitter        prometheus.Gauge
	buffersDropped   *prometheus.CounterVec

	channels          prometheus.Gauge
	subscribers       prometheus.Gauge
	ingestConnections prometheus.Counter
	subscriberDrops   prometheus.Counter
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
}

var _ mixer.Observer = (*Metrics)(nil)

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mosaic_frames_rendered_total",
			Help: "Total number of composited output frames",
		}),
		framesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mosaic_frames_skipped_total",
			Help: "Total number of output frames skipped by QoS",
		}),
		composeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mosaic_compose_seconds",
			Help:    "Time spent compositing one output frame",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		composedChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mosaic_composed_channels",
			Help: "Number of channels blended into the last output frame",
		}),
		qosJitter: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mosaic_qos_jitter_seconds",
			Help: "Lateness of the last skipped output frame",
		}),
		buffersDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mosaic_buffers_dropped_total",
			Help: "Input buffers discarded before compositing",
		}, []string{"channel", "reason"}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mosaic_channels",
			Help: "Number of input channels",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mosaic_subscribers",
			Help: "Number of output subscribers",
		}),
		ingestConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mosaic_ingest_connections_total",
			Help: "Total number of accepted ingest connections",
		}),
		subscriberDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mosaic_subscriber_frames_dropped_total",
			Help: "Output frames dropped because a subscriber fell behind",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mosaic_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mosaic_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
	}

	m.registry.MustRegister(
		m.framesRendered,
		m.framesSkipped,
		m.composeSeconds,
		m.composedChannels,
		m.qosJitter,
		m.buffersDropped,
		m.channels,
		m.subscribers,
		m.ingestConnections,
		m.subscriberDrops,
		m.requestsTotal,
		m.errorsTotal,
	)
	return m
}

// FrameRendered implements mixer.Observer.
func (m *Metrics) FrameRendered(channels int, compose time.Duration) {
	m.framesRendered.Inc()
	m.composedChannels.Set(float64(channels))
	m.composeSeconds.Observe(compose.Seconds())
}

// FrameSkipped implements mixer.Observer.
func (m *Metrics) FrameSkipped(jitter time.Duration) {
	m.framesSkipped.Inc()
	m.qosJitter.Set(jitter.Seconds())
}

// BufferDropped implements mixer.Observer.
func (m *Metrics) BufferDropped(channel string, reason mixer.DropReason) {
	m.buffersDropped.WithLabelValues(channel, string(reason)).Inc()
}

// IncIngestConnections counts an accepted ingest connection.
func (m *Metrics) IncIngestConnections() {
	m.ingestConnections.Inc()
}

// AddSubscriberDrops counts output frames a slow subscriber missed.
func (m *Metrics) AddSubscriberDrops(n int64) {
	m.subscriberDrops.Add(float64(n))
}

// SetChannels sets the input channel gauge.
func (m *Metrics) SetChannels(n int) {
	m.channels.Set(float64(n))
}

// SetSubscribers sets the output subscriber gauge.
func (m *Metrics) SetSubscribers(n int) {
	m.subscribers.Set(float64(n))
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
