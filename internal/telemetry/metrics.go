package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the client-side transport counters. A nil Registerer yields
// working but unregistered counters, which is what tests use.
type Metrics struct {
	ReconnectAttempts prometheus.Counter
	EventsDispatched  *prometheus.CounterVec
	FramesDropped     prometheus.Counter
	SendsRejected     prometheus.Counter
	RequestsFailed    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "equiz",
			Subsystem: "transport",
			Name:      "reconnect_attempts_total",
			Help:      "Automatic reconnect attempts after unclean disconnects.",
		}),
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "equiz",
			Subsystem: "transport",
			Name:      "events_dispatched_total",
			Help:      "Inbound events dispatched to subscribers, by event name.",
		}, []string{"event"}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "equiz",
			Subsystem: "transport",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped because the envelope could not be parsed.",
		}),
		SendsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "equiz",
			Subsystem: "transport",
			Name:      "sends_rejected_total",
			Help:      "Outbound frames rejected because no live connection existed.",
		}),
		RequestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "equiz",
			Subsystem: "rest",
			Name:      "requests_failed_total",
			Help:      "REST calls that ended in a network error or non-2xx response.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ReconnectAttempts,
			m.EventsDispatched,
			m.FramesDropped,
			m.SendsRejected,
			m.RequestsFailed,
		)
	}

	return m
}
