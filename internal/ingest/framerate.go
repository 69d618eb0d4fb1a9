package ingest

import (
	"sync"
	"time"
)

const smoothing = 0.1

// FrameRate tracks how regularly the host tick fires. A tick that arrives
// late means the process is short on headroom. The average period is an
// exponential moving average of observed tick intervals.
type FrameRate struct {
	mu       sync.Mutex
	avg      float64
	current  float64
	previous float64
}

func NewFrameRate() *FrameRate {
	return &FrameRate{}
}

// Observe records the time elapsed since the previous tick.
func (f *FrameRate) Observe(dt time.Duration) {
	seconds := dt.Seconds()
	if seconds <= 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.avg == 0 {
		f.avg = seconds
	}
	f.previous = 1 / f.avg
	f.avg += (seconds - f.avg) * smoothing
	f.current = 1 / f.avg
}

// Rate returns the current and previous smoothed rate in ticks per second.
func (f *FrameRate) Rate() (current, previous float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.previous
}
