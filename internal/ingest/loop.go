package ingest

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/crowdpulse/internal/domain"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
)

const (
	// StaleAfter is how long the stream may stay silent before the
	// connection is considered dead.
	StaleAfter = 60 * time.Second
	// IdleSleep is the longest pause between health checks while the
	// queue is empty. A push ends the pause early.
	IdleSleep = 100 * time.Millisecond
)

// ConnectionHealth is the subset of the transport the loop inspects.
type ConnectionHealth interface {
	Connected() bool
	LastError() string
}

// Loop is the single consumer of the inbound queue.
type Loop struct {
	queue     *Queue
	health    ConnectionHealth
	decoder   *Decoder
	directory *UserDirectory
	throttle  *Throttle
	stats     *Stats
	clock     clockwork.Clock
	handlers  []domain.EventHandler
}

func NewLoop(queue *Queue, health ConnectionHealth, directory *UserDirectory, throttle *Throttle, stats *Stats, clock clockwork.Clock) *Loop {
	return &Loop{
		queue:     queue,
		health:    health,
		decoder:   NewDecoder(),
		directory: directory,
		throttle:  throttle,
		stats:     stats,
		clock:     clock,
	}
}

// Subscribe registers a handler for decoded events. Handlers run on the
// loop goroutine in registration order and must be registered before Run.
func (l *Loop) Subscribe(h domain.EventHandler) {
	l.handlers = append(l.handlers, h)
}

// Run drains the queue until ctx is cancelled or the connection fails.
// A transport or stale fault is returned as a structured error; cancellation
// returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.stats.markActivity(l.clock.Now())
	inBatch := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		payload, ok := l.queue.Pop()
		if !ok {
			if err := l.checkHealth(); err != nil {
				return err
			}
			if !l.idle(ctx) {
				return nil
			}
			continue
		}

		l.stats.markActivity(l.clock.Now())
		l.process(ctx, payload)

		inBatch++
		if inBatch < l.throttle.BatchSize() {
			continue
		}
		inBatch = 0

		if snooze := l.throttle.Snooze(); snooze > 0 {
			if !l.sleep(ctx, snooze) {
				return nil
			}
		} else {
			runtime.Gosched()
		}
	}
}

func (l *Loop) checkHealth() error {
	if !l.health.Connected() || l.health.LastError() != "" {
		return apperrors.TransportError("disconnected from event stream", nil).
			WithContext("last_error", l.health.LastError())
	}
	if idle := l.clock.Since(l.stats.LastActivity()); idle > StaleAfter {
		return apperrors.StaleError("event stream has been silent").
			WithContext("idle", idle.String())
	}
	return nil
}

func (l *Loop) process(ctx context.Context, payload []byte) {
	decoded, err := l.decoder.Decode(payload)
	if err != nil {
		l.stats.decodeErrors.Add(1)
		slog.DebugContext(ctx, "Dropped undecodable payload", "error", err, "size", len(payload))
		return
	}

	switch decoded.Outcome {
	case OutcomeIgnored:
		l.stats.ignored.Add(1)
	case OutcomeServerError:
		l.stats.serverErrors.Add(1)
		slog.WarnContext(ctx, "Event stream reported an error", "description", decoded.Description)
	case OutcomeEvent:
		event := decoded.Event
		event.User = l.directory.Resolve(event.User)
		l.stats.recordEvent(event.Kind)
		for _, h := range l.handlers {
			h(event)
		}
	}
}

func (l *Loop) idle(ctx context.Context) bool {
	timer := l.clock.NewTimer(IdleSleep)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
	case <-l.queue.Ready():
	}
	return true
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-l.clock.After(d):
		return true
	}
}
