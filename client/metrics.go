package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the session counters. A nil *Metrics records nothing.
type Metrics struct {
	MessagesSent     prometheus.Counter
	MessagesReceived prometheus.Counter
	Commands         *prometheus.CounterVec
	Sessions         *prometheus.CounterVec
	Queued           prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ipcd",
			Name:      "messages_sent_total",
			Help:      "Messages written to the server socket.",
		}),
		MessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ipcd",
			Name:      "messages_received_total",
			Help:      "Messages read from the server socket.",
		}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipcd",
			Name:      "commands_total",
			Help:      "Server commands handled, by command and result.",
		}, []string{"command", "result"}),
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipcd",
			Name:      "sessions_total",
			Help:      "Connection attempts, by outcome.",
		}, []string{"outcome"}),
		Queued: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ipcd",
			Name:      "queued_messages",
			Help:      "Messages queued and not yet written.",
		}),
	}
}

func (m *Metrics) sent() {
	if m == nil {
		return
	}
	m.MessagesSent.Inc()
}

func (m *Metrics) received() {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
}

func (m *Metrics) command(name, result string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(name, result).Inc()
}

func (m *Metrics) session(outcome string) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) queued(delta float64) {
	if m == nil {
		return
	}
	m.Queued.Add(delta)
}
