package chatapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/crowdpulse/internal/adapter/metrics"
	"github.com/pscheid92/crowdpulse/internal/domain"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
	"github.com/pscheid92/crowdpulse/internal/outbound"
	"github.com/pscheid92/crowdpulse/internal/platform/version"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() domain.OutboundMessage {
	return domain.OutboundMessage{
		ID:         uuid.New(),
		Sender:     domain.User{ID: "red", Username: "red"},
		Recipients: []string{"u1"},
		Body:       "@alice welcome",
		ColorIndex: 13,
	}
}

func TestClient_PostsDirectMessage(t *testing.T) {
	msg := testMessage()
	var got outbound.DirectMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/dm", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, msg.ID.String(), r.Header.Get("X-Request-ID"))
		assert.Equal(t, version.UserAgent(), r.Header.Get("User-Agent"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", AccessToken: "token-1", BroadcastID: "bcast-42"}, nil)
	require.NoError(t, c.Send(context.Background(), msg))

	assert.Equal(t, "bcast-42", got.BroadcastID)
	assert.Equal(t, []string{"u1"}, got.RecipientUserIDs)
	assert.Equal(t, "@alice welcome", got.Message)
	assert.Equal(t, outbound.BroadcasterSenderID, got.SenderUserID)
	assert.Equal(t, 13, got.SenderParticipantIndex)
}

func TestClient_ClassifiesResponses(t *testing.T) {
	tests := []struct {
		status int
		want   apperrors.ErrorType
	}{
		{http.StatusBadRequest, apperrors.TypeValidation},
		{http.StatusTooManyRequests, apperrors.TypeCapacity},
		{http.StatusBadGateway, apperrors.TypeTransport},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := New(Config{BaseURL: srv.URL}, nil).Send(context.Background(), testMessage())
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.want), err.Error())
		})
	}
}

func TestClient_BreakerOpensOnServerFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	bm := metrics.NewBreakerMetrics(reg)
	c := New(Config{BaseURL: srv.URL, MaxFailures: 3}, bm)

	for range 3 {
		assert.Error(t, c.Send(context.Background(), testMessage()))
	}
	require.Equal(t, gobreaker.StateOpen, c.State())

	err := c.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, apperrors.IsType(err, apperrors.TypeTransport))
	assert.Equal(t, int32(3), hits.Load())

	assert.InDelta(t, 2, testutil.ToFloat64(bm.State.WithLabelValues("chatapi")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(bm.StateChanges.WithLabelValues("chatapi", "open")), 0)
}

func TestClient_RejectionsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxFailures: 2}, nil)
	for range 5 {
		assert.Error(t, c.Send(context.Background(), testMessage()))
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}
