package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/crowdpulse/internal/ingest"
	"github.com/pscheid92/crowdpulse/internal/platform/version"
)

const (
	readinessTimeout = 5 * time.Second
	// streamQuietAfter marks a running stream as not ready well before the
	// ingestion loop gives up on it.
	streamQuietAfter = ingest.StaleAfter / 2

	checkPipeline = "pipeline"
	checkOK       = "ok"
)

// HealthCheck is a named readiness dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type livenessResponse struct {
	Status   string  `json:"status"`
	Uptime   float64 `json:"uptime"`
	Sessions int64   `json:"sessions"`
}

type readinessResponse struct {
	Status            string            `json:"status"`
	Checks            map[string]string `json:"checks"`
	StreamIdleSeconds float64           `json:"stream_idle_seconds"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	resp := livenessResponse{
		Status:   "ok",
		Uptime:   s.clock.Since(s.startTime).Seconds(),
		Sessions: s.deps.Pipeline.Snapshot().Sessions,
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

// handleReadiness runs every check and reports each result. The pipeline
// itself is always checked: it must be running and have heard from the
// stream recently.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	snap := s.deps.Pipeline.Snapshot()
	resp := readinessResponse{
		Status:            "ready",
		Checks:            map[string]string{checkPipeline: checkOK},
		StreamIdleSeconds: snap.StreamIdle.Seconds(),
	}

	switch {
	case !snap.Running:
		resp.Checks[checkPipeline] = "not running"
	case snap.StreamIdle > streamQuietAfter:
		resp.Checks[checkPipeline] = fmt.Sprintf("stream silent for %s", snap.StreamIdle.Truncate(time.Second))
	}

	for _, hc := range s.deps.HealthChecks {
		resp.Checks[hc.Name] = checkOK
		if err := hc.Check(ctx); err != nil {
			resp.Checks[hc.Name] = err.Error()
		}
	}

	status := http.StatusOK
	for _, result := range resp.Checks {
		if result != checkOK {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			break
		}
	}

	if err := c.JSON(status, resp); err != nil {
		return fmt.Errorf("failed to write readiness response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
