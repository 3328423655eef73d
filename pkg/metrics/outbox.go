package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks the relay from the outbox table to the broker.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_events_total",
		Help:      "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "outbox_publish_lag_seconds",
		Help:      "Time between an event being recorded and its successful publish.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 15, 60, 300, 1800},
	}, []string{"event_type"})
	reg.MustRegister(events, latency)
	return &OutboxMetrics{events: events, latency: latency}
}

// ObserveEvent records one row's outcome. lag is only recorded for published rows.
func (m *OutboxMetrics) ObserveEvent(eventType, outcome string, lag time.Duration) {
	if m == nil || m.events == nil {
		return
	}
	eventType = normalizeLabel(eventType)
	m.events.WithLabelValues(eventType, outcome).Inc()
	if outcome == OutboxPublished && lag >= 0 {
		m.latency.WithLabelValues(eventType).Observe(lag.Seconds())
	}
}
