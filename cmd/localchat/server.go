package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const writeTimeout = 5 * time.Second

type serverConfig struct {
	Users       int
	EventsPerS  float64
	Seed        uint64
	AccessToken string
}

// chatServer streams synthetic frames to every connection and counts the
// direct messages sent back.
type chatServer struct {
	cfg      serverConfig
	upgrader websocket.Upgrader

	sent     atomic.Int64
	received atomic.Int64
}

func newChatServer(cfg serverConfig) *chatServer {
	return &chatServer{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AccessToken != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.AccessToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.readLoop(conn, cancel)

	slog.Info("Client connected", "remote", r.RemoteAddr)
	err = s.writeLoop(ctx, conn)
	slog.Info("Client disconnected", "remote", r.RemoteAddr, "reason", err)
}

func (s *chatServer) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.received.Add(1)
		if strings.Contains(string(data), `"recipient_user_ids"`) {
			slog.Debug("Direct message received", "payload", string(data))
		}
	}
}

func (s *chatServer) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	gen := NewGenerator(s.cfg.Users, s.cfg.Seed)
	limiter := rate.NewLimiter(rate.Limit(s.cfg.EventsPerS), max(1, int(s.cfg.EventsPerS/10)))

	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, gen.Next()); err != nil {
			return err
		}
		s.sent.Add(1)
	}
}
