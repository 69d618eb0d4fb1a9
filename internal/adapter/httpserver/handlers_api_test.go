package httpserver

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/pscheid92/crowdpulse/internal/app"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleStats(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap app.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "bcast-42", snap.BroadcastID)
	assert.True(t, snap.Running)
	assert.Equal(t, 2, snap.ActiveUsers)
	assert.Equal(t, map[string]int{"sunrise": 2, "lagoon": 0}, snap.Groups)
}

func TestHandleGroups(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/groups", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"name":"sunrise","color":"#ff9966","max_size":500,"members":2},
		{"name":"lagoon","color":"#76d7ea","max_size":500,"members":0}
	]`, rec.Body.String())
}

func TestHandleGroup(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/groups/sunrise", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"name":"sunrise","color":"#ff9966","max_size":500,"members":2,
		"users":[{"id":"u1","username":"alice","hash":3},{"id":"u2","username":"bob","hash":6}]
	}`, rec.Body.String())
}

func TestHandleGroup_Unknown(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/groups/nowhere", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"not_found"`)
}

func TestHandleSendMessage(t *testing.T) {
	srv, pipeline, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/messages",
		`{"recipients":["u1","u2"],"text":"hello :redheart:","color":"#ff0000"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"id":"6f1c2b7e-2d53-4b8e-9a55-3f0e9b1d2c4a"}`, rec.Body.String())
	require.Len(t, pipeline.sent, 1)
	assert.Equal(t, []string{"u1", "u2"}, pipeline.sent[0].Recipients)
	assert.Equal(t, "hello :redheart:", pipeline.sent[0].Text)
	assert.Equal(t, "#ff0000", pipeline.sent[0].Color)
}

func TestHandleSendMessage_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{"malformed body", nil, `{"recipients":`, http.StatusBadRequest},
		{"validation", apperrors.ValidationError("message has no recipients"), `{"text":"hi"}`, http.StatusBadRequest},
		{"queue full", apperrors.CapacityError("outbound queue full"), `{"recipients":["u1"],"text":"hi"}`, http.StatusTooManyRequests},
		{"not running", errNotRunning, `{"recipients":["u1"],"text":"hi"}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []serverOption
			if tt.err != nil {
				opts = append(opts, withSendError(tt.err))
			}
			srv, _, _ := newTestServer(t, opts...)

			rec := doRequest(t, srv, http.MethodPost, "/api/messages", tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCorrelationHeader(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/stats", "")
	assert.Len(t, rec.Header().Get(requestIDHeader), 20)
}
