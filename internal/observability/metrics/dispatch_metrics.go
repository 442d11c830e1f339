package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics tracks scheduled webhook tasks and their delivery outcomes.
type DispatchMetrics struct {
	pending  prometheus.Gauge
	outcomes *prometheus.CounterVec
	latency  prometheus.Histogram
}

func NewDispatchMetrics(registerer prometheus.Registerer) (*DispatchMetrics, error) {
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "acquirer_webhook_pending",
		Help: "Webhook tasks scheduled but not yet fired",
	})

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "acquirer_webhook_deliveries_total",
		Help: "Webhook delivery attempts by outcome",
	}, []string{"outcome"})

	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "acquirer_webhook_delivery_duration_seconds",
		Help:    "Webhook POST round-trip latency",
		Buckets: prometheus.DefBuckets,
	})

	for _, collector := range []prometheus.Collector{pending, outcomes, latency} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}

	return &DispatchMetrics{
		pending:  pending,
		outcomes: outcomes,
		latency:  latency,
	}, nil
}

func (m *DispatchMetrics) TaskScheduled() {
	if m == nil {
		return
	}
	m.pending.Inc()
}

func (m *DispatchMetrics) TaskFired() {
	if m == nil {
		return
	}
	m.pending.Dec()
}

// ObserveDelivery records a finished attempt. Outcome is delivered, rejected,
// failed or invoice_missing.
func (m *DispatchMetrics) ObserveDelivery(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
	if duration > 0 {
		m.latency.Observe(duration.Seconds())
	}
}

// PendingGauge exposes the pending-task gauge for scraping in tests.
func (m *DispatchMetrics) PendingGauge() prometheus.Gauge {
	return m.pending
}

func (m *DispatchMetrics) OutcomeCounter(outcome string) prometheus.Counter {
	return m.outcomes.WithLabelValues(outcome)
}
