// Package chatapi delivers direct messages through the chat HTTP API.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pscheid92/crowdpulse/internal/adapter/metrics"
	"github.com/pscheid92/crowdpulse/internal/domain"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
	"github.com/pscheid92/crowdpulse/internal/outbound"
	"github.com/pscheid92/crowdpulse/internal/platform/version"
	"github.com/sony/gobreaker"
)

const (
	dmPath         = "/v1/chat/dm"
	breakerName    = "chatapi"
	defaultTimeout = 10 * time.Second
)

type Config struct {
	BaseURL     string
	AccessToken string
	BroadcastID string
	Timeout     time.Duration
	// MaxFailures consecutive failures open the breaker for OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Client posts direct messages behind a circuit breaker. Rejected requests
// (4xx other than 429) do not count against the breaker.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

var _ domain.Sender = (*Client)(nil)

func New(cfg Config, breakerMetrics *metrics.BreakerMetrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || apperrors.IsType(err, apperrors.TypeValidation)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			if breakerMetrics != nil {
				breakerMetrics.StateChanges.WithLabelValues(name, to.String()).Inc()
				breakerMetrics.State.WithLabelValues(name).Set(stateToFloat(to))
			}
		},
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) Send(ctx context.Context, msg domain.OutboundMessage) error {
	body, err := json.Marshal(outbound.NewDirectMessage(c.cfg.BroadcastID, msg))
	if err != nil {
		return fmt.Errorf("marshal direct message: %w", err)
	}

	_, err = c.breaker.Execute(func() (any, error) {
		return nil, c.post(ctx, msg.ID.String(), body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.TransportError("chat api circuit breaker open", err)
	}
	return err
}

func (c *Client) post(ctx context.Context, requestID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+dmPath, bytes.NewReader(body))
	if err != nil {
		return apperrors.InternalError("failed to build chat api request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", version.UserAgent())
	if c.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.TransportError("chat api request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.CapacityError("chat api rate limited").WithContext("status", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apperrors.ValidationError("chat api rejected message").WithContext("status", resp.StatusCode)
	default:
		return apperrors.TransportError("chat api unavailable", nil).WithContext("status", resp.StatusCode)
	}
}
