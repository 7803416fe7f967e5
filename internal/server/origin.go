package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// NewCheckOrigin returns a CheckOrigin function for the socket upgrader.
// Requests without an Origin header (non-browser clients) are allowed, as is
// every origin when allowed contains "*". Otherwise the request origin must
// equal one of the configured origins after normalisation.
func NewCheckOrigin(allowed []string) func(r *http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}

	origins := make(map[string]struct{}, len(allowed))
	for _, raw := range allowed {
		if origin := extractOrigin(raw); origin != "" {
			origins[origin] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		if _, ok := origins[extractOrigin(origin)]; ok {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
