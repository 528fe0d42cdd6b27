// Package metrics exposes Prometheus counters for resolution outcomes and
// invitation lifecycle events. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gatehouse"

// Invitation events.
const (
	InvitationCreated  = "created"
	InvitationConsumed = "consumed"
	InvitationRevoked  = "revoked"
)

type Metrics struct {
	resolutions *prometheus.CounterVec
	invitations *prometheus.CounterVec
	reg         *prometheus.Registry
}

// New registers the collectors on a fresh registry, alongside the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Identity resolutions by outcome and rejection reason.",
		}, []string{"outcome", "reason"}),
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitations_total",
			Help:      "Invitation lifecycle events.",
		}, []string{"event"}),
		reg: reg,
	}
	reg.MustRegister(
		m.resolutions,
		m.invitations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Resolution counts one resolver decision. reason is empty unless rejected.
func (m *Metrics) Resolution(outcome, reason string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) Invitation(event string) {
	if m == nil {
		return
	}
	m.invitations.WithLabelValues(event).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
