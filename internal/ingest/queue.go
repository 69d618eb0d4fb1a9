package ingest

import (
	"sync"
	"sync/atomic"
)

// Queue is a FIFO of raw payloads. A capacity of zero means unbounded;
// otherwise pushes beyond capacity are dropped and counted. Push never
// blocks.
type Queue struct {
	mu       sync.Mutex
	items    [][]byte
	capacity int
	dropped  atomic.Int64
	ready    chan struct{}
}

func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{capacity: capacity, ready: make(chan struct{}, 1)}
}

// Push appends payload and reports whether it was accepted.
func (q *Queue) Push(payload []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.dropped.Add(1)
		return false
	}

	q.items = append(q.items, payload)
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready receives a value after a push. Several pushes may collapse into
// a single signal.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Pop removes and returns the oldest payload. The boolean is false when the
// queue is empty.
func (q *Queue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	payload := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return payload, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Capacity() int {
	return q.capacity
}

// Dropped returns the number of payloads rejected since creation.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Clear discards every queued payload. The drop counter is left untouched.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
