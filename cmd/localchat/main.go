// Command localchat serves a synthetic broadcast event stream for local
// runs and load tests.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pscheid92/crowdpulse/internal/platform/logging"
)

func main() {
	var (
		addr     = flag.String("addr", ":9090", "Listen address")
		users    = flag.Int("users", 500, "Number of synthetic viewers")
		eps      = flag.Float64("rate", 200, "Events per second per connection")
		seed     = flag.Uint64("seed", 42, "Random seed")
		token    = flag.String("token", os.Getenv("ACCESS_TOKEN"), "Required bearer token (empty accepts any)")
		logLevel = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	if *eps <= 0 {
		log.Fatal("--rate must be positive")
	}

	logging.InitLogger(*logLevel, "text")

	srv := newChatServer(serverConfig{Users: *users, EventsPerS: *eps, Seed: *seed, AccessToken: *token})
	mux := http.NewServeMux()
	mux.Handle("/stream", srv)

	httpSrv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("Local chat listening", "addr", *addr, "path", "/stream", "users", *users, "rate", *eps)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
	slog.Info("Local chat stopped", "frames_sent", srv.sent.Load(), "frames_received", srv.received.Load())
}
