package ingest

import (
	"math"
	"sync"
	"time"
)

const (
	batchStep      = 1.0
	batchRampStep  = 0.05
	snoozeStep     = time.Millisecond
	minBatchSize   = 1.0
	unboundedBatch = math.MaxInt

	// batchEpsilon absorbs float drift from repeated ramp steps.
	batchEpsilon = 1e-6
)

// ThrottleConfig bounds the adaptive batch/snooze state.
type ThrottleConfig struct {
	Disabled          bool
	MaxBatchSize      int
	MaxSnooze         time.Duration
	MinAcceptableRate float64
}

// Throttle paces ingestion. It shrinks the batch and then grows the pause
// between batches while the host rate is below the acceptable minimum, and
// reverses that order once the rate recovers.
type Throttle struct {
	mu     sync.Mutex
	cfg    ThrottleConfig
	batch  float64
	snooze time.Duration
}

func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.MaxBatchSize < 1 {
		cfg.MaxBatchSize = 1
	}
	return &Throttle{cfg: cfg, batch: minBatchSize}
}

// Adjust recomputes the batch size and snooze from the current and
// previous host rate. It is called once per host tick.
func (t *Throttle) Adjust(current, previous float64) {
	if t.cfg.Disabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case current < t.cfg.MinAcceptableRate:
		if t.batch <= minBatchSize {
			t.snooze = min(t.cfg.MaxSnooze, t.snooze+snoozeStep)
		}
		t.batch = max(minBatchSize, t.batch-batchStep)
	case previous < current:
		if t.snooze > 0 {
			t.snooze = max(0, t.snooze-snoozeStep)
		} else {
			t.batch = min(float64(t.cfg.MaxBatchSize), t.batch+batchRampStep)
		}
	}
}

// BatchSize returns how many events may be processed back to back.
func (t *Throttle) BatchSize() int {
	if t.cfg.Disabled {
		return unboundedBatch
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return int(math.Ceil(t.batch - batchEpsilon))
}

// Snooze returns the pause between batches.
func (t *Throttle) Snooze() time.Duration {
	if t.cfg.Disabled {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snooze
}

// Disabled reports whether pacing is switched off.
func (t *Throttle) Disabled() bool {
	return t.cfg.Disabled
}

// Reset restores the initial batch of one and no snooze.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batch = minBatchSize
	t.snooze = 0
}

// ThrottleState is a point-in-time view for observability.
type ThrottleState struct {
	Disabled  bool    `json:"disabled"`
	BatchSize float64 `json:"batch_size"`
	SnoozeMS  int64   `json:"snooze_ms"`
}

func (t *Throttle) State() ThrottleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ThrottleState{
		Disabled:  t.cfg.Disabled,
		BatchSize: t.batch,
		SnoozeMS:  t.snooze.Milliseconds(),
	}
}
