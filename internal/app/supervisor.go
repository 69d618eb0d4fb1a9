package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/crowdpulse/internal/domain"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
	"github.com/pscheid92/crowdpulse/internal/platform/correlation"
	"github.com/pscheid92/crowdpulse/internal/platform/retry"
)

// Dialer opens a transport whose receive side pushes payloads into sink.
type Dialer interface {
	Dial(ctx context.Context, sink domain.PayloadSink) (domain.Transport, error)
}

type DialerFunc func(ctx context.Context, sink domain.PayloadSink) (domain.Transport, error)

func (f DialerFunc) Dial(ctx context.Context, sink domain.PayloadSink) (domain.Transport, error) {
	return f(ctx, sink)
}

type SupervisorConfig struct {
	BroadcastID string
	Backoff     time.Duration
	MaxBackoff  time.Duration
	// MaxDialAttempts bounds consecutive failed dials. Zero retries forever.
	MaxDialAttempts int
}

// Supervisor keeps a pipeline connected. Every session starts from a reset
// pipeline seeded with the broadcast id; a transport or stale fault closes
// the transport and triggers a reconnect with backoff.
type Supervisor struct {
	cfg      SupervisorConfig
	pipeline *Pipeline
	dialer   Dialer
	clock    clockwork.Clock

	mu        sync.Mutex
	transport domain.Transport
	onConnect []func(domain.Transport)
}

func NewSupervisor(cfg SupervisorConfig, pipeline *Pipeline, dialer Dialer, clock clockwork.Clock) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		pipeline: pipeline,
		dialer:   dialer,
		clock:    clock,
	}
}

// OnConnect registers a callback invoked with each new transport before the
// pipeline starts consuming from it.
func (s *Supervisor) OnConnect(fn func(domain.Transport)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = append(s.onConnect, fn)
}

// Connected reports whether a transport is attached and healthy.
func (s *Supervisor) Connected() bool {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	return t != nil && t.Connected()
}

// Run connects and reconnects until ctx is cancelled, which returns nil, or
// until dialing fails permanently.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx = correlation.WithBroadcast(ctx, s.cfg.BroadcastID)

	for {
		s.pipeline.Reset(s.cfg.BroadcastID)

		transport, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to connect to event stream: %w", err)
		}

		s.attach(transport)

		sessionCtx := correlation.WithID(ctx, correlation.NewID())
		slog.InfoContext(sessionCtx, "Connected to event stream")
		err = s.pipeline.Run(sessionCtx, transport)

		s.detach()
		if closeErr := transport.Close(); closeErr != nil {
			slog.DebugContext(sessionCtx, "Transport close failed", "error", closeErr)
		}

		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !apperrors.IsFatal(err) {
			return err
		}
		slog.WarnContext(sessionCtx, "Event stream lost, reconnecting", "error", err)
	}
}

func (s *Supervisor) dial(ctx context.Context) (domain.Transport, error) {
	policy := retry.Policy{
		MaxAttempts:      s.cfg.MaxDialAttempts,
		InitialBackoff:   s.cfg.Backoff,
		MaxBackoff:       s.cfg.MaxBackoff,
		RateLimitBackoff: s.cfg.MaxBackoff,
		Clock:            s.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.WarnContext(ctx, "Dial failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	return retry.Do(ctx, policy, classifyDial, func() (domain.Transport, error) {
		return s.dialer.Dial(ctx, s.pipeline.Sink())
	})
}

func classifyDial(err error) retry.Action {
	switch {
	case errors.Is(err, context.Canceled), apperrors.IsType(err, apperrors.TypeValidation):
		return retry.Stop
	case apperrors.IsType(err, apperrors.TypeCapacity):
		return retry.After
	default:
		return retry.Retry
	}
}

func (s *Supervisor) attach(t domain.Transport) {
	s.mu.Lock()
	s.transport = t
	callbacks := slices.Clone(s.onConnect)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(t)
	}
}

func (s *Supervisor) detach() {
	s.mu.Lock()
	s.transport = nil
	s.mu.Unlock()
}
