package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pscheid92/crowdpulse/internal/domain"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
	"github.com/pscheid92/crowdpulse/internal/ingest"
	"github.com/pscheid92/crowdpulse/internal/platform/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedDialer struct {
	mu         sync.Mutex
	failures   []error
	transports []*fakeTransport
	sinks      []domain.PayloadSink
}

func (d *scriptedDialer) Dial(_ context.Context, sink domain.PayloadSink) (domain.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		return nil, err
	}
	t := newFakeTransport()
	d.transports = append(d.transports, t)
	d.sinks = append(d.sinks, sink)
	return t, nil
}

func (d *scriptedDialer) dialed() []*fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeTransport(nil), d.transports...)
}

func newSupervisorFixture(dialer Dialer) (*pipelineFixture, *Supervisor) {
	f := newPipelineFixture()
	s := NewSupervisor(SupervisorConfig{
		BroadcastID: "bcast-42",
		Backoff:     time.Second,
		MaxBackoff:  4 * time.Second,
	}, f.pipeline, dialer, f.clock)
	return f, s
}

func runSupervisor(t *testing.T, s *Supervisor) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestSupervisor_RetriesDialWithBackoff(t *testing.T) {
	dialer := &scriptedDialer{failures: []error{errors.New("refused"), errors.New("refused")}}
	f, s := newSupervisorFixture(dialer)
	cancel, done := runSupervisor(t, s)

	f.advanceUntil(t, time.Second, s.Connected)
	require.Len(t, dialer.dialed(), 1)

	dialer.sinks[0].Push([]byte(`{"type":"join","user":{"id":"u1","username":"alice"}}`))
	require.Eventually(t, func() bool { return len(f.sender.sent()) == 1 }, time.Second, 2*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.True(t, dialer.dialed()[0].closed.Load())
	assert.False(t, s.Connected())
}

func TestSupervisor_ReconnectsAfterTransportFault(t *testing.T) {
	dialer := &scriptedDialer{}
	f, s := newSupervisorFixture(dialer)

	var mu sync.Mutex
	var attached []domain.Transport
	s.OnConnect(func(tr domain.Transport) {
		mu.Lock()
		defer mu.Unlock()
		attached = append(attached, tr)
	})

	runSupervisor(t, s)
	require.Eventually(t, func() bool { return len(dialer.dialed()) == 1 && s.Connected() }, time.Second, 2*time.Millisecond)

	dialer.sinks[0].Push([]byte(`{"type":"join","user":{"id":"u1","username":"alice"}}`))
	require.Eventually(t, func() bool { return f.pipeline.Router().ActiveUsers() == 1 }, time.Second, 2*time.Millisecond)

	first := dialer.dialed()[0]
	first.connected.Store(false)

	f.advanceUntil(t, ingest.IdleSleep, func() bool { return len(dialer.dialed()) == 2 && s.Connected() })

	assert.True(t, first.closed.Load())
	assert.Equal(t, 0, f.pipeline.Router().ActiveUsers(), "session state is reset on reconnect")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, attached, 2)
	assert.Same(t, dialer.dialed()[1], attached[1])
}

func TestSupervisor_PermanentDialFailure(t *testing.T) {
	dialer := &scriptedDialer{failures: []error{apperrors.ValidationError("access token rejected")}}
	_, s := newSupervisorFixture(dialer)

	err := s.Run(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
	assert.Empty(t, dialer.dialed())
}

func TestSupervisor_GivesUpAfterMaxDialAttempts(t *testing.T) {
	dialer := &scriptedDialer{failures: []error{errors.New("refused"), errors.New("refused")}}
	f := newPipelineFixture()
	s := NewSupervisor(SupervisorConfig{BroadcastID: "bcast-42", Backoff: time.Second, MaxDialAttempts: 2}, f.pipeline, dialer, f.clock)
	_, done := runSupervisor(t, s)

	var err error
	f.advanceUntil(t, time.Second, func() bool {
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
}

func TestClassifyDial(t *testing.T) {
	assert.Equal(t, retry.Stop, classifyDial(context.Canceled))
	assert.Equal(t, retry.Stop, classifyDial(apperrors.ValidationError("bad token")))
	assert.Equal(t, retry.After, classifyDial(apperrors.CapacityError("too many connections")))
	assert.Equal(t, retry.Retry, classifyDial(errors.New("connection refused")))
}
