package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// TaskFunc runs once per tick. now is the tick time reported by the clock.
type TaskFunc func(ctx context.Context, now time.Time)

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
}

// Scheduler runs named recurring tasks, each on its own ticker. Tasks can
// be cancelled individually while the others keep running.
type Scheduler struct {
	clock clockwork.Clock

	mu      sync.Mutex
	tasks   []task
	cancels map[string]context.CancelFunc
}

func NewScheduler(clock clockwork.Clock) *Scheduler {
	return &Scheduler{
		clock:   clock,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Every registers fn to run every interval. Registration after Run has
// started has no effect on that run.
func (s *Scheduler) Every(name string, interval time.Duration, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task{name: name, interval: interval, fn: fn})
}

// Run starts every registered task and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	s.mu.Lock()
	for _, t := range s.tasks {
		if t.interval <= 0 {
			s.mu.Unlock()
			return fmt.Errorf("task %s: interval must be positive", t.name)
		}
	}
	for _, t := range s.tasks {
		taskCtx, cancel := context.WithCancel(ctx)
		s.cancels[t.name] = cancel
		g.Go(func() error {
			s.loop(taskCtx, t)
			return nil
		})
	}
	s.mu.Unlock()

	err := g.Wait()

	s.mu.Lock()
	for name, cancel := range s.cancels {
		cancel()
		delete(s.cancels, name)
	}
	s.mu.Unlock()

	return err
}

// Cancel stops one running task. It reports whether the task was running.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.cancels[name]
	if !ok {
		return false
	}
	cancel()
	delete(s.cancels, name)
	return true
}

// Running returns the names of tasks that have not been cancelled.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.cancels))
	for _, t := range s.tasks {
		if _, ok := s.cancels[t.name]; ok {
			names = append(names, t.name)
		}
	}
	return names
}

func (s *Scheduler) loop(ctx context.Context, t task) {
	ticker := s.clock.NewTicker(t.interval)
	defer ticker.Stop()

	slog.DebugContext(ctx, "Scheduler: task started", "task", t.name, "interval", t.interval)

	for {
		select {
		case <-ctx.Done():
			slog.DebugContext(ctx, "Scheduler: task stopped", "task", t.name)
			return
		case now := <-ticker.Chan():
			t.fn(ctx, now)
		}
	}
}
