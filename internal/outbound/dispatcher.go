// Package outbound queues direct messages in two priority classes and
// delivers them with bounded concurrency.
package outbound

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pscheid92/crowdpulse/internal/domain"
)

// Config bounds the dispatcher. A MaxQueued of zero leaves the queues
// unbounded.
type Config struct {
	MaxQueued   int
	MaxInFlight int
}

// Dispatcher holds a priority queue for group-addressed messages and a
// regular queue for single-recipient messages. Priority messages are always
// dispatched first. Full queues drop instead of blocking; failed sends are
// counted and discarded.
type Dispatcher struct {
	mu       sync.Mutex
	priority []domain.OutboundMessage
	regular  []domain.OutboundMessage
	inFlight int

	cfg    Config
	sender domain.Sender
	wake   chan struct{}

	dropped   atomic.Int64
	rejected  atomic.Int64
	processed atomic.Int64
	delivered atomic.Int64
}

func NewDispatcher(cfg Config, sender domain.Sender) *Dispatcher {
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}
	return &Dispatcher{
		cfg:    cfg,
		sender: sender,
		wake:   make(chan struct{}, 1),
	}
}

// Enqueue classifies msg once and appends it to its queue. It returns false
// when the message is invalid or its queue is full.
func (d *Dispatcher) Enqueue(msg domain.OutboundMessage) bool {
	if err := msg.Validate(); err != nil {
		d.rejected.Add(1)
		return false
	}

	d.mu.Lock()
	queue := &d.regular
	if msg.IsGroup() {
		queue = &d.priority
	}
	if d.cfg.MaxQueued > 0 && len(*queue) >= d.cfg.MaxQueued {
		d.mu.Unlock()
		d.dropped.Add(1)
		return false
	}
	*queue = append(*queue, msg)
	d.mu.Unlock()

	d.signal()
	return true
}

// Run dispatches queued messages until ctx is cancelled. Sends still in
// flight at that point are abandoned.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		d.dispatch(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-d.wake:
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for d.inFlight < d.cfg.MaxInFlight {
		msg, ok := d.next()
		if !ok {
			return
		}
		d.inFlight++
		go d.deliver(ctx, msg)
	}
}

// next pops from the priority queue, falling back to the regular queue.
// The caller holds d.mu.
func (d *Dispatcher) next() (domain.OutboundMessage, bool) {
	for _, queue := range []*[]domain.OutboundMessage{&d.priority, &d.regular} {
		if len(*queue) == 0 {
			continue
		}
		msg := (*queue)[0]
		(*queue)[0] = domain.OutboundMessage{}
		*queue = (*queue)[1:]
		return msg, true
	}
	return domain.OutboundMessage{}, false
}

func (d *Dispatcher) deliver(ctx context.Context, msg domain.OutboundMessage) {
	msg.Body = Emojify(msg.Body)
	err := d.sender.Send(ctx, msg)

	d.mu.Lock()
	d.inFlight--
	d.mu.Unlock()

	d.processed.Add(1)
	if err != nil {
		if ctx.Err() == nil {
			slog.DebugContext(ctx, "Direct message failed", "message_id", msg.ID, "recipients", len(msg.Recipients), "error", err)
		}
	} else {
		d.delivered.Add(1)
	}
	d.signal()
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Clear discards every queued message. In-flight sends are unaffected.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.priority = nil
	d.regular = nil
}

// Stats is a best-effort view of the dispatcher counters.
type Stats struct {
	QueuedPriority int   `json:"queued_priority"`
	QueuedRegular  int   `json:"queued_regular"`
	InFlight       int   `json:"in_flight"`
	Dropped        int64 `json:"dropped"`
	Rejected       int64 `json:"rejected"`
	Processed      int64 `json:"processed"`
	Delivered      int64 `json:"delivered"`
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	s := Stats{
		QueuedPriority: len(d.priority),
		QueuedRegular:  len(d.regular),
		InFlight:       d.inFlight,
	}
	d.mu.Unlock()

	s.Dropped = d.dropped.Load()
	s.Rejected = d.rejected.Load()
	s.Processed = d.processed.Load()
	s.Delivered = d.delivered.Load()
	return s
}
