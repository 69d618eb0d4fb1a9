package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/centrifugal/centrifuge"
	"github.com/pscheid92/crowdpulse/internal/adapter/metrics"
	"github.com/rs/xid"
)

// HeartsChannelPrefix namespaces the per-group heart channels observers may
// subscribe to.
const HeartsChannelPrefix = "hearts:"

// HeartsChannel returns the observer channel for a group.
func HeartsChannel(group string) string {
	return HeartsChannelPrefix + group
}

// NewNode creates the centrifuge node that fans heart deltas out to
// observers. Observers connect anonymously and may only subscribe to heart
// channels.
func NewNode(observerMetrics *metrics.ObserverMetrics, logLevel string) (*centrifuge.Node, error) {
	conf := centrifuge.Config{LogLevel: parseCentrifugeLogLevel(logLevel), LogHandler: slogHandler}
	node, err := centrifuge.New(conf)
	if err != nil {
		return nil, fmt.Errorf("create centrifuge node: %w", err)
	}

	node.OnConnecting(onConnecting)
	node.OnConnect(onConnect(observerMetrics))

	return node, nil
}

func onConnecting(ctx context.Context, _ centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
	if cred, ok := centrifuge.GetCredentials(ctx); ok && cred.UserID != "" {
		return centrifuge.ConnectReply{}, nil
	}
	return centrifuge.ConnectReply{
		Credentials: &centrifuge.Credentials{UserID: "observer-" + xid.New().String()},
	}, nil
}

func onConnect(observerMetrics *metrics.ObserverMetrics) func(client *centrifuge.Client) {
	return func(client *centrifuge.Client) {
		slog.Debug("Observer connected", "client_id", client.ID(), "user_id", client.UserID())

		if observerMetrics != nil {
			observerMetrics.ActiveConnections.Inc()
		}

		client.OnSubscribe(func(e centrifuge.SubscribeEvent, cb centrifuge.SubscribeCallback) {
			if !strings.HasPrefix(e.Channel, HeartsChannelPrefix) {
				cb(centrifuge.SubscribeReply{}, centrifuge.ErrorPermissionDenied)
				return
			}
			cb(centrifuge.SubscribeReply{}, nil)
		})

		client.OnDisconnect(func(e centrifuge.DisconnectEvent) {
			slog.Debug("Observer disconnected", "client_id", client.ID(), "reason", e.Reason)
			if observerMetrics != nil {
				observerMetrics.ActiveConnections.Dec()
			}
		})
	}
}

// SetupRedis switches the node to a Redis broker so that observers connected
// to any instance receive every instance's heart deltas.
func SetupRedis(node *centrifuge.Node, redisAddr string) error {
	shard, err := centrifuge.NewRedisShard(node, centrifuge.RedisShardConfig{Address: redisAddr})
	if err != nil {
		return fmt.Errorf("create redis shard: %w", err)
	}

	broker, err := centrifuge.NewRedisBroker(node, centrifuge.RedisBrokerConfig{
		Prefix: "crowdpulse",
		Shards: []*centrifuge.RedisShard{shard},
	})
	if err != nil {
		return fmt.Errorf("create redis broker: %w", err)
	}
	node.SetBroker(broker)

	return nil
}

func slogHandler(entry centrifuge.LogEntry) {
	attrs := make([]any, 0, len(entry.Fields)*2)
	for k, v := range entry.Fields {
		attrs = append(attrs, k, v)
	}
	switch entry.Level {
	case centrifuge.LogLevelTrace, centrifuge.LogLevelDebug:
		slog.Debug(entry.Message, attrs...)
	case centrifuge.LogLevelInfo:
		slog.Info(entry.Message, attrs...)
	case centrifuge.LogLevelWarn:
		slog.Warn(entry.Message, attrs...)
	case centrifuge.LogLevelError:
		slog.Error(entry.Message, attrs...)
	case centrifuge.LogLevelNone:
		// EMPTY
	}
}

func parseCentrifugeLogLevel(level string) centrifuge.LogLevel {
	switch strings.ToLower(level) {
	case "none":
		return centrifuge.LogLevelNone
	case "debug":
		return centrifuge.LogLevelDebug
	case "warn":
		return centrifuge.LogLevelWarn
	case "error":
		return centrifuge.LogLevelError
	default:
		return centrifuge.LogLevelInfo
	}
}
