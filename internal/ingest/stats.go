package ingest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pscheid92/crowdpulse/internal/domain"
)

const rateWindow = time.Second

// Stats counts ingestion outcomes. Counters are monotonic; EventsPerSecond
// is recomputed at most once per rateWindow.
type Stats struct {
	processed    atomic.Int64
	decodeErrors atomic.Int64
	ignored      atomic.Int64
	serverErrors atomic.Int64
	hearts       atomic.Int64
	chats        atomic.Int64
	joins        atomic.Int64
	lastActivity atomic.Int64

	mu            sync.Mutex
	lastSample    time.Time
	lastProcessed int64
	perSecond     float64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) recordEvent(kind domain.EventKind) {
	s.processed.Add(1)
	switch kind {
	case domain.EventHeart:
		s.hearts.Add(1)
	case domain.EventChat:
		s.chats.Add(1)
	case domain.EventJoin:
		s.joins.Add(1)
	}
}

// markActivity records that the stream was heard from at now.
func (s *Stats) markActivity(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

// LastActivity is when the loop last received a payload or started a run.
// It is zero before the first run.
func (s *Stats) LastActivity() time.Time {
	ns := s.lastActivity.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Sample recomputes the events-per-second figure if at least one rate
// window has passed since the previous sample.
func (s *Stats) Sample(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastSample.IsZero() {
		s.lastSample = now
		s.lastProcessed = s.processed.Load()
		return
	}

	elapsed := now.Sub(s.lastSample)
	if elapsed < rateWindow {
		return
	}

	processed := s.processed.Load()
	s.perSecond = float64(processed-s.lastProcessed) / elapsed.Seconds()
	s.lastProcessed = processed
	s.lastSample = now
}

// StatsSnapshot is a best-effort view of the counters.
type StatsSnapshot struct {
	Processed       int64   `json:"processed"`
	DecodeErrors    int64   `json:"decode_errors"`
	Ignored         int64   `json:"ignored"`
	ServerErrors    int64   `json:"server_errors"`
	Hearts          int64   `json:"hearts"`
	Chats           int64   `json:"chats"`
	Joins           int64   `json:"joins"`
	EventsPerSecond float64 `json:"events_per_second"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	perSecond := s.perSecond
	s.mu.Unlock()

	return StatsSnapshot{
		Processed:       s.processed.Load(),
		DecodeErrors:    s.decodeErrors.Load(),
		Ignored:         s.ignored.Load(),
		ServerErrors:    s.serverErrors.Load(),
		Hearts:          s.hearts.Load(),
		Chats:           s.chats.Load(),
		Joins:           s.joins.Load(),
		EventsPerSecond: perSecond,
	}
}
