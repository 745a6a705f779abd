package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all relay metrics
type Metrics struct {
	// Dispatch metrics
	EventsPublished    *prometheus.CounterVec
	EventsFailed       *prometheus.CounterVec
	EventsDeadLettered *prometheus.CounterVec
	PublishDuration    *prometheus.HistogramVec
	DispatchCycles     *prometheus.CounterVec
	ClaimBatchSize     prometheus.Histogram

	// Backlog metrics
	OutboxBacklog           prometheus.Gauge
	OutboxFailedTotal       prometheus.Gauge
	OldestPendingAgeSeconds prometheus.Gauge

	// Publisher metrics
	BreakerState *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of outbox events delivered to the broker",
			},
			[]string{"event_type"},
		),
		EventsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_failed_total",
				Help:      "Total number of failed delivery attempts by error class and terminality",
			},
			[]string{"event_type", "error_class", "terminal"},
		),
		EventsDeadLettered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dead_lettered_total",
				Help:      "Total number of events routed to the dead-letter sink",
			},
			[]string{"event_type"},
		),
		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "publish_duration_seconds",
				Help:      "Broker publish duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"event_type", "status"},
		),
		DispatchCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_cycles_total",
				Help:      "Total number of dispatch cycles by outcome",
			},
			[]string{"status"},
		),
		ClaimBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "claim_batch_size",
				Help:      "Number of events claimed per dispatch cycle",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
		),
		OutboxBacklog: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_backlog",
				Help:      "Number of pending outbox events awaiting delivery",
			},
		),
		OutboxFailedTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_failed",
				Help:      "Number of terminally failed outbox events awaiting operator action",
			},
		),
		OldestPendingAgeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "oldest_pending_age_seconds",
				Help:      "Age of the oldest pending outbox event",
			},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Publisher circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.EventsPublished,
		m.EventsFailed,
		m.EventsDeadLettered,
		m.PublishDuration,
		m.DispatchCycles,
		m.ClaimBatchSize,
		m.OutboxBacklog,
		m.OutboxFailedTotal,
		m.OldestPendingAgeSeconds,
		m.BreakerState,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}
