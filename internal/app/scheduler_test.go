package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsTasksOnTheirIntervals(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock)

	var fast, slow atomic.Int32
	s.Every("fast", time.Second, func(context.Context, time.Time) { fast.Add(1) })
	s.Every("slow", 3*time.Second, func(context.Context, time.Time) { slow.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 2))

	for range 3 {
		clock.Advance(time.Second)
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return fast.Load() == 3 && slow.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, s.Running())
}

func TestScheduler_CancelStopsOneTask(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock)

	var a, b atomic.Int32
	s.Every("a", time.Second, func(context.Context, time.Time) { a.Add(1) })
	s.Every("b", time.Second, func(context.Context, time.Time) { b.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 2))

	assert.True(t, s.Cancel("a"))
	assert.False(t, s.Cancel("a"))
	assert.False(t, s.Cancel("missing"))
	assert.Equal(t, []string{"b"}, s.Running())

	// a's ticker is released once its goroutine exits.
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return b.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), a.Load())
}

func TestScheduler_RejectsNonPositiveInterval(t *testing.T) {
	s := NewScheduler(clockwork.NewFakeClock())
	s.Every("broken", 0, func(context.Context, time.Time) {})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}
