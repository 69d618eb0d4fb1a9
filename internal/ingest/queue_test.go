package ingest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(10)

	require.True(t, q.Push([]byte("a")))
	require.True(t, q.Push([]byte("b")))

	p, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", string(p))

	p, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", string(p))

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueue_DropsWhenFull(t *testing.T) {
	q := NewQueue(2)

	assert.True(t, q.Push([]byte("1")))
	assert.True(t, q.Push([]byte("2")))
	assert.False(t, q.Push([]byte("3")))
	assert.False(t, q.Push([]byte("4")))

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, int64(2), q.Dropped())

	p, _ := q.Pop()
	assert.Equal(t, "1", string(p))
	assert.True(t, q.Push([]byte("5")))
	assert.Equal(t, int64(2), q.Dropped())
}

func TestQueue_ZeroCapacityIsUnbounded(t *testing.T) {
	q := NewQueue(0)

	for i := range 5000 {
		require.True(t, q.Push([]byte(fmt.Sprint(i))))
	}
	assert.Equal(t, 5000, q.Len())
	assert.Equal(t, int64(0), q.Dropped())
}

func TestQueue_ReadySignalsAfterPush(t *testing.T) {
	q := NewQueue(1)

	select {
	case <-q.Ready():
		t.Fatal("empty queue signalled ready")
	default:
	}

	q.Push([]byte("a"))
	select {
	case <-q.Ready():
	default:
		t.Fatal("push did not signal ready")
	}

	q.Push([]byte("b"))
	select {
	case <-q.Ready():
		t.Fatal("rejected push signalled ready")
	default:
	}
}

func TestQueue_Clear(t *testing.T) {
	q := NewQueue(1)
	q.Push([]byte("a"))
	q.Push([]byte("b"))

	q.Clear()

	assert.Equal(t, 0, q.Len())
	assert.Equal(t, int64(1), q.Dropped())
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue(100)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				q.Push([]byte("x"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, q.Len())
	assert.Equal(t, int64(400), q.Dropped())
}
