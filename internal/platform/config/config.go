package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	SinkWebsocket = "websocket"
	SinkHTTP      = "http"
	SinkRedis     = "redis"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	BroadcastID string `env:"BROADCAST_ID"`
	StreamURL   string `env:"STREAM_URL"`
	AccessToken string `env:"ACCESS_TOKEN"`

	OutboundSink string `env:"OUTBOUND_SINK" default:"websocket"`
	ChatAPIURL   string `env:"CHAT_API_URL"`
	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL" default:"crowdpulse:dm"`

	GroupsFile string `env:"GROUPS_FILE"`

	MaxQueuedEvents   int           `env:"MAX_QUEUED_EVENTS" default:"1000"`
	MaxCachedUsers    int           `env:"MAX_CACHED_USERS" default:"10000"`
	ThrottleDisabled  bool          `env:"THROTTLE_DISABLED" default:"false"`
	MaxBatchSize      int           `env:"MAX_BATCH_SIZE" default:"150"`
	MaxSnooze         time.Duration `env:"MAX_SNOOZE" default:"250ms"`
	MinAcceptableRate float64       `env:"MIN_ACCEPTABLE_RATE" default:"50"`
	TickInterval      time.Duration `env:"TICK_INTERVAL" default:"16ms"`

	DisregardLimits          bool          `env:"DISREGARD_LIMITS" default:"false"`
	MaxTrackedUsers          int           `env:"MAX_TRACKED_USERS" default:"200000"`
	UserTimeout              time.Duration `env:"USER_TIMEOUT" default:"60s"`
	PeriodicInterval         time.Duration `env:"PERIODIC_INTERVAL" default:"15s"`
	HeartResponseProbability int           `env:"HEART_RESPONSE_PROBABILITY" default:"100"`
	ChatResponseProbability  int           `env:"CHAT_RESPONSE_PROBABILITY" default:"100"`

	MaxQueuedMessages int `env:"MAX_QUEUED_MESSAGES" default:"1000"`
	MaxInFlight       int `env:"MAX_IN_FLIGHT" default:"100"`

	ReconnectBackoff    time.Duration `env:"RECONNECT_BACKOFF" default:"1s"`
	MaxReconnectBackoff time.Duration `env:"MAX_RECONNECT_BACKOFF" default:"30s"`

	LeaseTTL time.Duration `env:"LEASE_TTL" default:"30s"`

	CentrifugeLogLevel string  `env:"CENTRIFUGE_LOG_LEVEL" default:"info"`
	ObserverOrigins    string  `env:"OBSERVER_ORIGINS"`
	MessageRateLimit   float64 `env:"MESSAGE_RATE_LIMIT" default:"2"`
	MessageRateBurst   int     `env:"MESSAGE_RATE_BURST" default:"10"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// AllowedOrigins splits OBSERVER_ORIGINS on commas, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.ObserverOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"BROADCAST_ID", cfg.BroadcastID},
		{"STREAM_URL", cfg.StreamURL},
	}
	switch cfg.OutboundSink {
	case SinkWebsocket:
	case SinkHTTP:
		required = append(required, struct{ name, value string }{"CHAT_API_URL", cfg.ChatAPIURL})
	case SinkRedis:
		required = append(required, struct{ name, value string }{"REDIS_URL", cfg.RedisURL})
	default:
		return fmt.Errorf("OUTBOUND_SINK must be one of websocket, http, redis, got %q", cfg.OutboundSink)
	}

	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	u, err := url.Parse(cfg.StreamURL)
	if err != nil {
		return fmt.Errorf("STREAM_URL is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("STREAM_URL must use ws or wss, got %q", u.Scheme)
	}

	if cfg.MaxBatchSize < 1 {
		return errors.New("MAX_BATCH_SIZE must be at least 1")
	}
	if cfg.MaxInFlight < 1 {
		return errors.New("MAX_IN_FLIGHT must be at least 1")
	}
	if cfg.TickInterval <= 0 || cfg.PeriodicInterval <= 0 {
		return errors.New("TICK_INTERVAL and PERIODIC_INTERVAL must be positive")
	}
	if cfg.RedisURL != "" && cfg.LeaseTTL < time.Second {
		return errors.New("LEASE_TTL must be at least 1s")
	}
	if cfg.MaxQueuedEvents < 0 || cfg.MaxQueuedMessages < 0 {
		return errors.New("queue limits must not be negative")
	}

	return nil
}
