// Package metrics exposes Prometheus counters for the reconciliation engine
// and the presence pipeline.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Resolution outcomes used as the "outcome" label.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeEvidence  = "evidence"
	OutcomeRejected  = "rejected"
	OutcomeExpired   = "expired"
	OutcomeCancelled = "cancelled"
	OutcomeDismissed = "dismissed"
)

// Metrics groups the collectors.
type Metrics struct {
	IntentsEnqueued  *prometheus.CounterVec
	IntentsResolved  *prometheus.CounterVec
	DeliveryAttempts *prometheus.CounterVec
	PresenceRefresh  *prometheus.CounterVec
	PresenceEntries  prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered (useful in tests that read values directly).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IntentsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optisync",
			Name:      "intents_enqueued_total",
			Help:      "Mutation intents appended to a view's queue.",
		}, []string{"kind"}),
		IntentsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optisync",
			Name:      "intents_resolved_total",
			Help:      "Mutation intents leaving the pending state, by outcome.",
		}, []string{"kind", "outcome"}),
		DeliveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optisync",
			Name:      "delivery_attempts_total",
			Help:      "Backend calls made for intents, by result.",
		}, []string{"kind", "result"}),
		PresenceRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optisync",
			Name:      "presence_source_fetch_total",
			Help:      "Presence source queries, by source and result.",
		}, []string{"source", "result"}),
		PresenceEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "optisync",
			Name:      "presence_entries",
			Help:      "Entries in the last aggregated presence list.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.IntentsEnqueued,
			m.IntentsResolved,
			m.DeliveryAttempts,
			m.PresenceRefresh,
			m.PresenceEntries,
		)
	}
	return m
}

// IntentEnqueued counts a new intent.
func (m *Metrics) IntentEnqueued(kind string) {
	if m == nil {
		return
	}
	m.IntentsEnqueued.WithLabelValues(kind).Inc()
}

// IntentResolved counts an intent leaving the pending state.
func (m *Metrics) IntentResolved(kind, outcome string) {
	if m == nil {
		return
	}
	m.IntentsResolved.WithLabelValues(kind, outcome).Inc()
}

// DeliveryAttempt counts one backend call for an intent.
func (m *Metrics) DeliveryAttempt(kind string, err error) {
	if m == nil {
		return
	}
	m.DeliveryAttempts.WithLabelValues(kind, result(err)).Inc()
}

// PresenceFetched counts one presence source query.
func (m *Metrics) PresenceFetched(source string, err error) {
	if m == nil {
		return
	}
	m.PresenceRefresh.WithLabelValues(source, result(err)).Inc()
}

// PresenceSize records the size of the latest presence list.
func (m *Metrics) PresenceSize(n int) {
	if m == nil {
		return
	}
	m.PresenceEntries.Set(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
