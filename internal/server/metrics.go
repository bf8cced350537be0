// Package server exposes Prometheus metrics for admission, queueing and
// broadcast dispatch.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "gochat"

// Metrics holds the relay's Prometheus collectors. A nil *Metrics is valid and
// records nothing, which keeps unit tests free of registry plumbing.
type Metrics struct {
	admitted       *prometheus.CounterVec
	rejected       prometheus.Counter
	activeSessions prometheus.Gauge
	enqueued       *prometheus.CounterVec
	delivered      prometheus.Counter
	pruned         prometheus.Counter
	dispatchPanics prometheus.Counter
	rateLimited    prometheus.Counter
	sessionEnds    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		admitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_admitted_total",
			Help:      "Connections that obtained an admission slot, by transport",
		}, []string{"transport"}),

		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_rejected_total",
			Help:      "Connections closed because every admission slot was taken",
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Sessions currently holding an admission slot",
		}),

		enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_enqueued_total",
			Help:      "Messages pushed onto the broadcast queue, by kind",
		}, []string{"kind"}),

		delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_total",
			Help:      "Successful writes of a message to one recipient",
		}),

		pruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "recipients_pruned_total",
			Help:      "Recipients removed from the registry after a failed write",
		}),

		dispatchPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_panics_total",
			Help:      "Recovered panics while dispatching a message",
		}),

		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lines_rate_limited_total",
			Help:      "Inbound lines discarded by the per-session rate limiter",
		}),

		sessionEnds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_ended_total",
			Help:      "Finished sessions, by the status that ended the read loop",
		}, []string{"status"}),
	}
}

func (m *Metrics) sessionAdmitted(transport string) {
	if m == nil {
		return
	}
	m.admitted.WithLabelValues(transport).Inc()
	m.activeSessions.Inc()
}

func (m *Metrics) sessionEnded(status ReadStatus) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.sessionEnds.WithLabelValues(status.String()).Inc()
}

func (m *Metrics) sessionRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *Metrics) messageEnqueued(msg OutboundMessage) {
	if m == nil {
		return
	}
	kind := "chat"
	if msg.IsNotice() {
		kind = "notice"
	}
	m.enqueued.WithLabelValues(kind).Inc()
}

func (m *Metrics) messageDelivered() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

func (m *Metrics) recipientPruned() {
	if m == nil {
		return
	}
	m.pruned.Inc()
}

func (m *Metrics) dispatchPanicked() {
	if m == nil {
		return
	}
	m.dispatchPanics.Inc()
}

func (m *Metrics) lineRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
