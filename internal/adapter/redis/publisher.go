package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pscheid92/crowdpulse/internal/domain"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
	"github.com/pscheid92/crowdpulse/internal/outbound"
	goredis "github.com/redis/go-redis/v9"
)

// Publisher is an outbound sink that publishes direct messages on a Redis
// channel for a separate delivery worker to pick up.
type Publisher struct {
	rdb         *goredis.Client
	channel     string
	broadcastID string
}

var _ domain.Sender = (*Publisher)(nil)

func NewPublisher(rdb *goredis.Client, channel, broadcastID string) *Publisher {
	return &Publisher{rdb: rdb, channel: channel, broadcastID: broadcastID}
}

func (p *Publisher) Send(ctx context.Context, msg domain.OutboundMessage) error {
	data, err := json.Marshal(outbound.NewDirectMessage(p.broadcastID, msg))
	if err != nil {
		return fmt.Errorf("failed to marshal direct message: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		return apperrors.TransportError("failed to publish direct message", err).
			WithContext("channel", p.channel)
	}
	return nil
}
