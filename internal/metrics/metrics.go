// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"net/http"

	"backoffice/internal/apperr"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	Transitions   *prometheus.CounterVec
	Conversions   *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	DroppedEvents *prometheus.CounterVec
	CacheEvicted  prometheus.Counter

	gatherer prometheus.Gatherer
}

func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Name:      "status_transitions_total",
			Help:      "Status transition attempts by entity, action and outcome.",
		}, []string{"entity", "action", "outcome"}),
		Conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Name:      "conversions_total",
			Help:      "Conversions by target and outcome (created, reused, failed).",
		}, []string{"target", "outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Name:      "notifications_raised_total",
			Help:      "Notifications written per entity type.",
		}, []string{"entity"}),
		DroppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Name:      "change_events_dropped_total",
			Help:      "Change events a subscriber failed to handle.",
		}, []string{"table"}),
		CacheEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "backoffice",
			Name:      "view_cache_invalidations_total",
			Help:      "Cached views dropped after a change event.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.Transitions, m.Conversions, m.Notifications, m.DroppedEvents, m.CacheEvicted)
	return m
}

// Outcome labels an operation result by its error kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := apperr.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

func (m *Metrics) ObserveTransition(entity, action string, err error) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(entity, action, Outcome(err)).Inc()
}

func (m *Metrics) ObserveConversion(target, outcome string) {
	if m == nil {
		return
	}
	m.Conversions.WithLabelValues(target, outcome).Inc()
}

func (m *Metrics) NotificationRaised(entity string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(entity).Inc()
}

func (m *Metrics) EventDropped(table string) {
	if m == nil {
		return
	}
	m.DroppedEvents.WithLabelValues(table).Inc()
}

func (m *Metrics) CacheInvalidated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheEvicted.Add(float64(n))
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
