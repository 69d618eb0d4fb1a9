package metrics

import "github.com/prometheus/client_golang/prometheus"

// ObserverMetrics tracks the centrifuge observer fan-out.
type ObserverMetrics struct {
	ActiveConnections prometheus.Gauge
	MessagesPublished prometheus.Counter
	PublishErrors     prometheus.Counter
}

func NewObserverMetrics(reg prometheus.Registerer) *ObserverMetrics {
	m := &ObserverMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "observers",
			Name:      "active_connections",
			Help:      "Number of connected heart observers.",
		}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "observers",
			Name:      "messages_published_total",
			Help:      "Total number of heart deltas published to observers.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "observers",
			Name:      "publish_errors_total",
			Help:      "Total number of heart deltas that failed to publish.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesPublished, m.PublishErrors)
	return m
}
