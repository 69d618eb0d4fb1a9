package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/crowdpulse/internal/domain"
	apperrors "github.com/pscheid92/crowdpulse/internal/errors"
	"github.com/pscheid92/crowdpulse/internal/groups"
)

const maxRecipients = 1000

type directMessageRequest struct {
	Recipients []string `json:"recipients"`
	Text       string   `json:"text"`
	Color      string   `json:"color"`
}

type groupResponse struct {
	groups.Summary
	Users []domain.User `json:"users"`
}

func (s *Server) registerAPIRoutes(api *echo.Group) {
	api.GET("/stats", s.handleStats)
	api.GET("/groups", s.handleGroups)
	api.GET("/groups/:name", s.handleGroup)
	api.POST("/messages", s.handleSendMessage, messageRateLimit(s.config.MessageRateLimit, s.config.MessageRateBurst))
}

func (s *Server) handleStats(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.deps.Pipeline.Snapshot()); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGroups(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.deps.Groups.Summaries()); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGroup(c echo.Context) error {
	name := c.Param("name")

	users, err := s.deps.Groups.Members(name)
	if errors.Is(err, domain.ErrGroupNotFound) {
		return apperrors.NotFoundError("group not found").WithContext("group", name)
	}
	if err != nil {
		return apperrors.InternalError("failed to list group members", err).WithContext("group", name)
	}

	resp := groupResponse{Users: users}
	for _, summary := range s.deps.Groups.Summaries() {
		if summary.Name == name {
			resp.Summary = summary
			break
		}
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleSendMessage(c echo.Context) error {
	var req directMessageRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if len(req.Recipients) > maxRecipients {
		return apperrors.ValidationError("too many recipients").WithContext("max", maxRecipients)
	}

	id, err := s.deps.Pipeline.SendDirect(req.Recipients, req.Text, req.Color)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusAccepted, map[string]string{"id": id.String()}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
