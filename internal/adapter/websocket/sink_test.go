package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pscheid92/crowdpulse/internal/domain"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
	"github.com/pscheid92/crowdpulse/internal/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureTransport struct {
	mu        sync.Mutex
	connected bool
	frames    [][]byte
}

func (t *captureTransport) Connected() bool   { return t.connected }
func (t *captureTransport) LastError() string { return "" }
func (t *captureTransport) Close() error      { return nil }

func (t *captureTransport) Send(_ context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = append(t.frames, payload)
	return nil
}

func TestSink_SendsDirectMessageJSON(t *testing.T) {
	sink := NewSink("bcast-42")
	msg := domain.OutboundMessage{
		Sender:     domain.User{ID: "red", Username: "red", ProfileImageURL: "https://img/red.png"},
		Recipients: []string{"u1", "u2"},
		Body:       "hello",
		ColorIndex: 13,
	}

	err := sink.Send(context.Background(), msg)
	assert.True(t, apperrors.IsType(err, apperrors.TypeTransport))

	tr := &captureTransport{connected: true}
	sink.Attach(tr)
	require.NoError(t, sink.Send(context.Background(), msg))

	require.Len(t, tr.frames, 1)
	var dm outbound.DirectMessage
	require.NoError(t, json.Unmarshal(tr.frames[0], &dm))
	assert.Equal(t, "bcast-42", dm.BroadcastID)
	assert.Equal(t, []string{"u1", "u2"}, dm.RecipientUserIDs)
	assert.Equal(t, outbound.BroadcasterSenderID, dm.SenderUserID)
	assert.Equal(t, "red", dm.SenderUsername)
	assert.Equal(t, 13, dm.SenderParticipantIndex)

	tr.connected = false
	assert.Error(t, sink.Send(context.Background(), msg))
}
