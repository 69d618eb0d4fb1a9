// Package httpserver is the polling surface: health probes, version,
// Prometheus scrape, pipeline stats, group listings, direct messages and
// the observer websocket endpoint.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/crowdpulse/internal/adapter/metrics"
	"github.com/pscheid92/crowdpulse/internal/app"
	"github.com/pscheid92/crowdpulse/internal/domain"
	"github.com/pscheid92/crowdpulse/internal/groups"
	"github.com/pscheid92/crowdpulse/internal/platform/config"
)

type pipelineService interface {
	Snapshot() app.Snapshot
	SendDirect(recipients []string, text, color string) (uuid.UUID, error)
}

type groupDirectory interface {
	Summaries() []groups.Summary
	Members(name string) ([]domain.User, error)
}

// Deps are the collaborators the handlers read from. Observer and Gatherer
// may be nil, in which case their routes are not registered.
type Deps struct {
	Pipeline     pipelineService
	Groups       groupDirectory
	Gatherer     prometheus.Gatherer
	HTTPMetrics  *metrics.HTTPMetrics
	Observer     http.Handler
	HealthChecks []HealthCheck
	Clock        clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	deps   Deps

	clock     clockwork.Clock
	startTime time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:      e,
		config:    cfg,
		deps:      deps,
		clock:     clock,
		startTime: clock.Now(),
	}
	srv.registerRoutes()
	return srv
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
