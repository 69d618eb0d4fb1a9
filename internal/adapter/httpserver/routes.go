package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/crowdpulse/internal/adapter/metrics"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
)

func (s *Server) registerRoutes() {
	errorsTotal := s.errorsCounter()

	s.echo.Use(correlationMiddleware)
	s.echo.Use(requestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.deps.HTTPMetrics != nil {
		s.echo.Use(s.deps.HTTPMetrics.Middleware())
	}
	s.echo.Use(apperrors.Middleware(errorsTotal))

	s.registerHealthRoutes()

	if s.deps.Gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.deps.Gatherer)))
	}
	if s.deps.Observer != nil {
		s.echo.Any("/connection/websocket", echo.WrapHandler(s.deps.Observer))
	}

	s.registerAPIRoutes(s.echo.Group("/api"))
}
