package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pscheid92/crowdpulse/internal/domain"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
	"github.com/pscheid92/crowdpulse/internal/outbound"
)

// Sink sends direct messages over the event stream connection itself.
// The supervisor attaches each new transport as it connects.
type Sink struct {
	broadcastID string

	mu        sync.RWMutex
	transport domain.Transport
}

var _ domain.Sender = (*Sink)(nil)

func NewSink(broadcastID string) *Sink {
	return &Sink{broadcastID: broadcastID}
}

// Attach replaces the transport used for sending.
func (s *Sink) Attach(t domain.Transport) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
}

func (s *Sink) Send(ctx context.Context, msg domain.OutboundMessage) error {
	s.mu.RLock()
	t := s.transport
	s.mu.RUnlock()

	if t == nil || !t.Connected() {
		return apperrors.TransportError("no event stream to send on", domain.ErrNotConnected)
	}

	payload, err := json.Marshal(outbound.NewDirectMessage(s.broadcastID, msg))
	if err != nil {
		return fmt.Errorf("marshal direct message: %w", err)
	}
	return t.Send(ctx, payload)
}
