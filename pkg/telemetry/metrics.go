package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus counters for the event outbox and its consumers.
type Metrics struct {
	outboxDispatch     *prometheus.CounterVec
	outboxDispatchTime *prometheus.HistogramVec
	outboxBacklog      prometheus.Gauge
	handlerDuration    *prometheus.HistogramVec
	handlerErrors      *prometheus.CounterVec
}

// NewMetrics registers outbox metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer registers outbox metrics on registerer.
func NewMetricsWithRegisterer(registerer prometheus.Registerer) *Metrics {
	outboxDispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aquabill_outbox_dispatch_total",
		Help: "Counts outbox deliveries by status.",
	}, []string{"status"})

	outboxDispatchTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aquabill_outbox_dispatch_duration_seconds",
		Help:    "Outbox relay batch durations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	outboxBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aquabill_outbox_backlog",
		Help: "Number of undelivered events claimed by the last relay run.",
	})

	handlerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aquabill_event_handler_duration_seconds",
		Help:    "Notification handler durations by event type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type", "status"})

	handlerErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aquabill_event_handler_errors_total",
		Help: "Notification handler failures by event type.",
	}, []string{"event_type"})

	registerer.MustRegister(outboxDispatch, outboxDispatchTime, outboxBacklog, handlerDuration, handlerErrors)

	return &Metrics{
		outboxDispatch:     outboxDispatch,
		outboxDispatchTime: outboxDispatchTime,
		outboxBacklog:      outboxBacklog,
		handlerDuration:    handlerDuration,
		handlerErrors:      handlerErrors,
	}
}

// RecordOutboxBatch tracks one relay batch.
func (m *Metrics) RecordOutboxBatch(status string, count int, duration time.Duration) {
	if m == nil {
		return
	}
	m.outboxDispatch.WithLabelValues(status).Add(float64(count))
	m.outboxDispatchTime.WithLabelValues(status).Observe(duration.Seconds())
}

// SetOutboxBacklog records the number of pending events.
func (m *Metrics) SetOutboxBacklog(value float64) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(value)
}

// RecordHandler tracks a single event handled by a consumer.
func (m *Metrics) RecordHandler(eventType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(eventType, status).Observe(duration.Seconds())
	if status != "ok" {
		m.handlerErrors.WithLabelValues(eventType).Inc()
	}
}
