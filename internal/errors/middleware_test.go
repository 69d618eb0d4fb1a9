package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_http_errors_total",
		Help: "test",
	}, []string{"type"})
}

func serve(t *testing.T, counter *prometheus.CounterVec, handlerErr error) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/groups/x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := Middleware(counter)(func(c echo.Context) error {
		return handlerErr
	})

	require.NoError(t, handler(c))
	return rec
}

func TestMiddlewareWithStructuredError(t *testing.T) {
	counter := newCounter()
	rec := serve(t, counter, NotFoundError("group not found").WithContext("group", "x"))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "group not found", resp.Error)
	assert.Equal(t, TypeNotFound, resp.Type)
	assert.Equal(t, "x", resp.Context["group"])

	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("not_found")))
}

func TestMiddlewareWithStandardError(t *testing.T) {
	counter := newCounter()
	rec := serve(t, counter, fmt.Errorf("standard error"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, TypeInternal, resp.Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("internal")))
}

func TestMiddlewareWithTransportError(t *testing.T) {
	rec := serve(t, nil, TransportError("stream down", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMiddlewareWithNoError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := Middleware(nil)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMiddlewarePassesThroughEchoErrors(t *testing.T) {
	counter := newCounter()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := Middleware(counter)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTooManyRequests, "slow down")
	})

	err := handler(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("http")))
}
