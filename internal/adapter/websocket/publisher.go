package websocket

import (
	"encoding/json"
	"log/slog"

	"github.com/centrifugal/centrifuge"
	"github.com/pscheid92/crowdpulse/internal/adapter/metrics"
)

type heartDelta struct {
	Group  string `json:"group"`
	Hearts int    `json:"hearts"`
}

// HeartPublisher forwards per-group heart deltas to observers.
type HeartPublisher struct {
	node            *centrifuge.Node
	observerMetrics *metrics.ObserverMetrics
}

func NewHeartPublisher(node *centrifuge.Node, observerMetrics *metrics.ObserverMetrics) *HeartPublisher {
	return &HeartPublisher{node: node, observerMetrics: observerMetrics}
}

// Observe publishes a non-zero delta on the group's heart channel. It has
// the shape of a router heart observer.
func (p *HeartPublisher) Observe(group string, hearts int) {
	if hearts <= 0 {
		return
	}

	data, err := json.Marshal(heartDelta{Group: group, Hearts: hearts})
	if err != nil {
		slog.Error("Failed to marshal heart delta", "group", group, "error", err)
		return
	}

	channel := HeartsChannel(group)
	if _, err := p.node.Publish(channel, data); err != nil {
		slog.Warn("Failed to publish heart delta", "channel", channel, "error", err)
		if p.observerMetrics != nil {
			p.observerMetrics.PublishErrors.Inc()
		}
		return
	}

	if p.observerMetrics != nil {
		p.observerMetrics.MessagesPublished.Inc()
	}
}
