package metrics

import "github.com/prometheus/client_golang/prometheus"

// GroupMetrics tracks heart signal and membership per group.
type GroupMetrics struct {
	Hearts  *prometheus.CounterVec
	Members *prometheus.GaugeVec
}

func NewGroupMetrics(reg prometheus.Registerer) *GroupMetrics {
	m := &GroupMetrics{
		Hearts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "hearts_total",
			Help:      "Total number of hearts counted per group.",
		}, []string{"group"}),
		Members: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "members",
			Help:      "Current number of members per group.",
		}, []string{"group"}),
	}

	reg.MustRegister(m.Hearts, m.Members)
	return m
}

// ObserveHearts adds a heart delta for group. It has the shape of a router
// heart observer.
func (m *GroupMetrics) ObserveHearts(group string, hearts int) {
	if hearts <= 0 {
		return
	}
	m.Hearts.WithLabelValues(group).Add(float64(hearts))
}

// SetMembers replaces the member gauges with counts.
func (m *GroupMetrics) SetMembers(counts map[string]int) {
	for group, n := range counts {
		m.Members.WithLabelValues(group).Set(float64(n))
	}
}
