package app

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/crowdpulse/internal/cache"
	"github.com/pscheid92/crowdpulse/internal/domain"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
	"github.com/pscheid92/crowdpulse/internal/groups"
	"github.com/pscheid92/crowdpulse/internal/identity"
	"github.com/pscheid92/crowdpulse/internal/ingest"
	"github.com/pscheid92/crowdpulse/internal/outbound"
	"golang.org/x/sync/errgroup"
)

// Scheduled task names.
const (
	TaskHostTick         = "host-tick"
	TaskHeartAggregation = "heart-aggregation"
	TaskPeriodicMessages = "periodic-messages"
	TaskTTLSweep         = "ttl-sweep"
)

type Config struct {
	BroadcastID      string
	MaxQueuedEvents  int
	MaxCachedUsers   int
	Throttle         ingest.ThrottleConfig
	Groups           groups.Config
	Outbound         outbound.Config
	TickInterval     time.Duration
	PeriodicInterval time.Duration
}

// Pipeline wires the inbound queue through the ingestion loop and group
// router into the outbound dispatcher. Components outlive a single
// connection; Reset prepares them for the next session.
type Pipeline struct {
	cfg   Config
	clock clockwork.Clock

	hasher      *identity.Hasher
	queue       *ingest.Queue
	directory   *ingest.UserDirectory
	throttle    *ingest.Throttle
	frames      *ingest.FrameRate
	stats       *ingest.Stats
	router      *groups.Router
	dispatcher  *outbound.Dispatcher
	broadcaster domain.User

	running atomic.Bool
	runs    atomic.Int64
}

func NewPipeline(cfg Config, sender domain.Sender, clock clockwork.Clock, opts ...groups.Option) *Pipeline {
	hasher := identity.NewHasher(cfg.BroadcastID)
	dispatcher := outbound.NewDispatcher(cfg.Outbound, sender)
	throttle := ingest.NewThrottle(cfg.Throttle)

	// An unthrottled pipeline never drops inbound payloads.
	capacity := cfg.MaxQueuedEvents
	if throttle.Disabled() {
		capacity = 0
	}

	return &Pipeline{
		cfg:         cfg,
		clock:       clock,
		hasher:      hasher,
		queue:       ingest.NewQueue(capacity),
		directory:   ingest.NewUserDirectory(hasher, cfg.MaxCachedUsers, clock),
		throttle:    throttle,
		frames:      ingest.NewFrameRate(),
		stats:       ingest.NewStats(),
		router:      groups.NewRouter(cfg.Groups, dispatcher, clock, opts...),
		dispatcher:  dispatcher,
		broadcaster: domain.User{ID: outbound.BroadcasterSenderID, Username: outbound.BroadcasterSenderID},
	}
}

// Sink is where the transport pushes raw payloads.
func (p *Pipeline) Sink() domain.PayloadSink { return p.queue }

func (p *Pipeline) Router() *groups.Router { return p.router }

func (p *Pipeline) Dispatcher() *outbound.Dispatcher { return p.dispatcher }

func (p *Pipeline) Running() bool { return p.running.Load() }

// Reset starts a new session: user hashes are re-seeded and every cache,
// membership and throttle state is dropped.
func (p *Pipeline) Reset(seed string) {
	p.hasher.SetSeed(seed)
	p.directory.Flush()
	p.router.Reset()
	p.throttle.Reset()
	p.queue.Clear()
	p.dispatcher.Clear()
}

// Run processes events from the queue until ctx is cancelled or health
// reports a transport or stale fault, which is returned. On return the
// inbound and outbound queues are cleared, scheduled tasks are cancelled and
// in-flight sends are abandoned.
func (p *Pipeline) Run(ctx context.Context, health ingest.ConnectionHealth) error {
	loop := ingest.NewLoop(p.queue, health, p.directory, p.throttle, p.stats, p.clock)
	loop.Subscribe(p.router.Handle)
	loop.Subscribe(p.handleDirect)

	scheduler := NewScheduler(p.clock)
	var lastTick time.Time
	scheduler.Every(TaskHostTick, p.cfg.TickInterval, func(_ context.Context, now time.Time) {
		if !lastTick.IsZero() {
			p.frames.Observe(now.Sub(lastTick))
			p.throttle.Adjust(p.frames.Rate())
		}
		lastTick = now
		p.router.FlushLeaves()
		p.stats.Sample(now)
	})
	scheduler.Every(TaskHeartAggregation, p.cfg.TickInterval, func(context.Context, time.Time) {
		p.router.ReportHearts()
	})
	scheduler.Every(TaskPeriodicMessages, p.cfg.PeriodicInterval, func(ctx context.Context, _ time.Time) {
		if n := p.router.SendPeriodic(); n > 0 {
			slog.DebugContext(ctx, "Sent periodic group messages", "groups", n)
		}
	})
	scheduler.Every(TaskTTLSweep, cache.SweepInterval, func(ctx context.Context, _ time.Time) {
		if n := p.router.SweepInactive(); n > 0 {
			slog.DebugContext(ctx, "Evicted inactive users", "count", n, "remaining", p.router.ActiveUsers())
		}
	})

	p.running.Store(true)
	p.runs.Add(1)
	defer func() {
		p.running.Store(false)
		p.queue.Clear()
		p.dispatcher.Clear()
	}()

	slog.InfoContext(ctx, "Pipeline started", "groups", len(p.router.Summaries()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return p.dispatcher.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	err := g.Wait()
	if err != nil {
		slog.WarnContext(ctx, "Pipeline stopped", "error", err)
	} else {
		slog.InfoContext(ctx, "Pipeline stopped")
	}
	return err
}

func (p *Pipeline) handleDirect(e domain.Event) {
	if e.Kind != domain.EventDirectMessage {
		return
	}
	if _, err := p.SendDirect(e.Recipients, e.Text, e.Color); err != nil {
		slog.Debug("Direct message not queued", "error", err)
	}
}

// SendDirect queues a message from the broadcaster to the given recipients.
func (p *Pipeline) SendDirect(recipients []string, text, color string) (uuid.UUID, error) {
	if !p.running.Load() {
		return uuid.Nil, apperrors.TransportError("pipeline is not running", domain.ErrNotConnected)
	}
	if len(recipients) == 0 {
		return uuid.Nil, apperrors.ValidationError(domain.ErrNoRecipients.Error())
	}
	if text == "" {
		return uuid.Nil, apperrors.ValidationError(domain.ErrEmptyBody.Error())
	}

	msg := p.directMessage(recipients, text, color)
	if !p.dispatcher.Enqueue(msg) {
		return uuid.Nil, apperrors.CapacityError("outbound queue is full").
			WithContext("recipients", len(recipients))
	}
	return msg.ID, nil
}

func (p *Pipeline) directMessage(recipients []string, text, color string) domain.OutboundMessage {
	return domain.OutboundMessage{
		ID:         uuid.New(),
		Sender:     p.broadcaster,
		Recipients: recipients,
		Body:       text,
		ColorIndex: domain.ColorIndex(domain.NormalizeColor(color)),
	}
}

// QueueSnapshot describes the inbound queue.
type QueueSnapshot struct {
	Length   int   `json:"length"`
	Capacity int   `json:"capacity"`
	Dropped  int64 `json:"dropped"`
}

// Snapshot is the polled observability view of the pipeline.
type Snapshot struct {
	BroadcastID string               `json:"broadcast_id"`
	Running     bool                 `json:"running"`
	Sessions    int64                `json:"sessions"`
	Ingest      ingest.StatsSnapshot `json:"ingest"`
	Queue       QueueSnapshot        `json:"queue"`
	Throttle    ingest.ThrottleState `json:"throttle"`
	TickRate    float64              `json:"tick_rate"`
	CachedUsers int                  `json:"cached_users"`
	ActiveUsers int                  `json:"active_users"`
	Groups      map[string]int       `json:"groups"`
	Outbound    outbound.Stats       `json:"outbound"`
	// StreamIdle is how long the running loop has gone without a payload.
	StreamIdle  time.Duration        `json:"stream_idle_ns"`
}

func (p *Pipeline) Snapshot() Snapshot {
	tickRate, _ := p.frames.Rate()
	running := p.running.Load()

	var idle time.Duration
	if last := p.stats.LastActivity(); running && !last.IsZero() {
		idle = p.clock.Since(last)
	}

	return Snapshot{
		BroadcastID: p.cfg.BroadcastID,
		Running:     running,
		Sessions:    p.runs.Load(),
		Ingest:      p.stats.Snapshot(),
		Queue: QueueSnapshot{
			Length:   p.queue.Len(),
			Capacity: p.queue.Capacity(),
			Dropped:  p.queue.Dropped(),
		},
		Throttle:    p.throttle.State(),
		TickRate:    tickRate,
		CachedUsers: p.directory.Len(),
		ActiveUsers: p.router.ActiveUsers(),
		Groups:      p.router.MemberCounts(),
		Outbound:    p.dispatcher.Stats(),
		StreamIdle:  idle,
	}
}
