package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// NewCheckOrigin returns a CheckOrigin function for the observer websocket
// handler. Empty origins (non-browser clients), obs:// origins (OBS browser
// sources) and the listed origins are allowed. In development, localhost
// origins are allowed as well.
func NewCheckOrigin(allowed []string, isDevelopment bool) func(r *http.Request) bool {
	origins := make(map[string]struct{}, len(allowed))
	for _, raw := range allowed {
		if o := extractOrigin(strings.TrimSpace(raw)); o != "" {
			origins[o] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		switch {
		case origin == "":
			return true
		case strings.HasPrefix(origin, "obs://"):
			return true
		case isDevelopment && isLocalhostOrigin(origin):
			return true
		}
		if _, ok := origins[origin]; ok {
			return true
		}

		slog.Warn("Observer origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}
