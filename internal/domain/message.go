package domain

import (
	"context"

	"github.com/google/uuid"
)

// OutboundMessage is a direct message addressed to one or more viewers.
type OutboundMessage struct {
	ID         uuid.UUID
	Sender     User
	Recipients []string
	Body       string
	ColorIndex int
	// Broadcast marks a message addressed to a whole group, even when the
	// group currently has a single member.
	Broadcast bool
}

// IsGroup reports whether the message belongs in the priority class.
func (m OutboundMessage) IsGroup() bool {
	return m.Broadcast || len(m.Recipients) > 1
}

// Validate rejects messages that can never be delivered.
func (m OutboundMessage) Validate() error {
	if len(m.Recipients) == 0 {
		return ErrNoRecipients
	}
	if m.Body == "" {
		return ErrEmptyBody
	}
	return nil
}

// Sender delivers a single outbound message. Implementations must be safe
// for concurrent use; the dispatcher runs sends in parallel.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// Transport is the duplex connection to the broadcast event stream.
type Transport interface {
	Connected() bool
	LastError() string
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// PayloadSink accepts raw inbound payloads. Push never blocks and reports
// whether the payload was accepted.
type PayloadSink interface {
	Push(payload []byte) bool
}
