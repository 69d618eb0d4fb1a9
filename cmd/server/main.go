package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/centrifugal/centrifuge"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/crowdpulse/internal/adapter/chatapi"
	"github.com/pscheid92/crowdpulse/internal/adapter/httpserver"
	"github.com/pscheid92/crowdpulse/internal/adapter/metrics"
	"github.com/pscheid92/crowdpulse/internal/adapter/redis"
	"github.com/pscheid92/crowdpulse/internal/adapter/websocket"
	"github.com/pscheid92/crowdpulse/internal/app"
	"github.com/pscheid92/crowdpulse/internal/domain"
	"github.com/pscheid92/crowdpulse/internal/groups"
	"github.com/pscheid92/crowdpulse/internal/ingest"
	"github.com/pscheid92/crowdpulse/internal/outbound"
	"github.com/pscheid92/crowdpulse/internal/platform/config"
	"github.com/pscheid92/crowdpulse/internal/platform/logging"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout    = 10 * time.Second
	groupGaugeInterval = 5 * time.Second
	leasePollInterval  = 5 * time.Second
	taskGroupGauges    = "group-gauges"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func setupRedis(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) *goredis.Client {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(connectCtx, cfg.RedisURL, metrics.NewRedisMetrics(reg))
	if err != nil {
		fatal("Failed to connect to Redis", err)
	}
	return client
}

func setupSender(cfg *config.Config, wsSink *websocket.Sink, rdb *goredis.Client, reg prometheus.Registerer) domain.Sender {
	switch cfg.OutboundSink {
	case config.SinkWebsocket:
		return wsSink
	case config.SinkHTTP:
		return chatapi.New(chatapi.Config{
			BaseURL:     cfg.ChatAPIURL,
			AccessToken: cfg.AccessToken,
			BroadcastID: cfg.BroadcastID,
		}, metrics.NewBreakerMetrics(reg))
	case config.SinkRedis:
		return redis.NewPublisher(rdb, cfg.RedisChannel, cfg.BroadcastID)
	default:
		fatal("Invalid outbound sink", fmt.Errorf("%w: %s", domain.ErrUnknownSink, cfg.OutboundSink))
		return nil
	}
}

func pipelineConfig(cfg *config.Config, defs []groups.Definition) app.Config {
	return app.Config{
		BroadcastID:     cfg.BroadcastID,
		MaxQueuedEvents: cfg.MaxQueuedEvents,
		MaxCachedUsers:  cfg.MaxCachedUsers,
		Throttle: ingest.ThrottleConfig{
			Disabled:          cfg.ThrottleDisabled,
			MaxBatchSize:      cfg.MaxBatchSize,
			MaxSnooze:         cfg.MaxSnooze,
			MinAcceptableRate: cfg.MinAcceptableRate,
		},
		Groups: groups.Config{
			Groups:                   defs,
			DisregardLimits:          cfg.DisregardLimits,
			MaxTrackedUsers:          cfg.MaxTrackedUsers,
			UserTimeout:              cfg.UserTimeout,
			HeartResponseProbability: cfg.HeartResponseProbability,
			ChatResponseProbability:  cfg.ChatResponseProbability,
		},
		Outbound: outbound.Config{
			MaxQueued:   cfg.MaxQueuedMessages,
			MaxInFlight: cfg.MaxInFlight,
		},
		TickInterval:     cfg.TickInterval,
		PeriodicInterval: cfg.PeriodicInterval,
	}
}

func setupObserverNode(cfg *config.Config, observerMetrics *metrics.ObserverMetrics) *centrifuge.Node {
	node, err := websocket.NewNode(observerMetrics, cfg.CentrifugeLogLevel)
	if err != nil {
		fatal("Failed to create observer node", err)
	}

	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			fatal("Failed to parse Redis URL", err)
		}
		if err := websocket.SetupRedis(node, opts.Addr); err != nil {
			fatal("Failed to set up observer broker", err)
		}
	}

	if err := node.Run(); err != nil {
		fatal("Failed to start observer node", err)
	}
	return node
}

// runIngestion holds the broadcast lease, when Redis is configured, for as
// long as the supervisor runs.
func runIngestion(ctx context.Context, cfg *config.Config, rdb *goredis.Client, supervisor *app.Supervisor, clock clockwork.Clock) error {
	if rdb == nil {
		return supervisor.Run(ctx)
	}

	holder, _ := os.Hostname()
	holder = fmt.Sprintf("%s-%d", holder, os.Getpid())
	lease := redis.NewLease(rdb, clock, redis.LeaseKey(cfg.BroadcastID), holder, cfg.LeaseTTL)

	if err := lease.Acquire(ctx, leasePollInterval); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to acquire broadcast lease: %w", err)
	}
	slog.Info("Broadcast lease acquired", "holder", holder)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return lease.Hold(gctx) })
	g.Go(func() error { return supervisor.Run(gctx) })
	return g.Wait()
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting",
		"env", cfg.AppEnv, "port", cfg.Port,
		"broadcast_id", cfg.BroadcastID, "sink", cfg.OutboundSink)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defs, err := groups.LoadDefinitions(cfg.GroupsFile)
	if err != nil {
		fatal("Failed to load group definitions", err)
	}

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	observerMetrics := metrics.NewObserverMetrics(reg)
	groupMetrics := metrics.NewGroupMetrics(reg)

	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		rdb = setupRedis(ctx, cfg, reg)
		defer func() { _ = rdb.Close() }()
	}

	wsSink := websocket.NewSink(cfg.BroadcastID)
	sender := setupSender(cfg, wsSink, rdb, reg)

	pipeline := app.NewPipeline(pipelineConfig(cfg, defs), sender, clock)
	reg.MustRegister(metrics.NewPipelineCollector(pipeline.Snapshot))

	node := setupObserverNode(cfg, observerMetrics)
	heartPublisher := websocket.NewHeartPublisher(node, observerMetrics)
	pipeline.Router().OnHearts(groupMetrics.ObserveHearts)
	pipeline.Router().OnHearts(heartPublisher.Observe)

	dialer := websocket.NewDialer(websocket.ClientConfig{URL: cfg.StreamURL, AccessToken: cfg.AccessToken})
	supervisor := app.NewSupervisor(app.SupervisorConfig{
		BroadcastID: cfg.BroadcastID,
		Backoff:     cfg.ReconnectBackoff,
		MaxBackoff:  cfg.MaxReconnectBackoff,
	}, pipeline, dialer, clock)
	if cfg.OutboundSink == config.SinkWebsocket {
		supervisor.OnConnect(wsSink.Attach)
	}

	healthChecks := []httpserver.HealthCheck{{
		Name: "stream",
		Check: func(context.Context) error {
			if !supervisor.Connected() {
				return domain.ErrNotConnected
			}
			return nil
		},
	}}
	if rdb != nil {
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		Pipeline:    pipeline,
		Groups:      pipeline.Router(),
		Gatherer:    reg,
		HTTPMetrics: httpMetrics,
		Observer: centrifuge.NewWebsocketHandler(node, centrifuge.WebsocketConfig{
			CheckOrigin: websocket.NewCheckOrigin(cfg.AllowedOrigins(), cfg.IsDevelopment()),
		}),
		HealthChecks: healthChecks,
		Clock:        clock,
	})

	gauges := app.NewScheduler(clock)
	gauges.Every(taskGroupGauges, groupGaugeInterval, func(context.Context, time.Time) {
		groupMetrics.SetMembers(pipeline.Router().MemberCounts())
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runIngestion(gctx, cfg, rdb, supervisor, clock) })
	g.Go(func() error { return gauges.Run(gctx) })
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := node.Shutdown(shutdownCtx); err != nil {
			slog.Error("Observer node shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		fatal("Application stopped with error", err)
	}
	slog.Info("Application stopped")
}
