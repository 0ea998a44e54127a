package main

import (
	"context"
	"net/http"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltpark/realtime/internal/hub"
	"github.com/voltpark/realtime/internal/relay"
	"github.com/voltpark/realtime/internal/version"
)

// newMux serves the websocket endpoint plus health and stats. pool and rl
// are nil when the relay is disabled.
func newMux(h *hub.Hub, pool *pgxpool.Pool, rl *relay.Relay) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/ws", h)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string         `json:"status"`
			Version    version.Info   `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]any),
		}

		stats := h.Stats()
		health.Components["hub"] = map[string]any{
			"connections": stats.TotalConnections,
			"rooms":       stats.ActiveRooms,
		}

		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		out := map[string]any{"hub": h.Stats()}
		if rl != nil {
			out["relay"] = rl.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	return mux
}

// originChecker allows requests whose Origin is listed, plus requests with
// no Origin header. An empty list allows every origin.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	origins := mapset.NewSet(allowed...)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origins.Contains(origin)
	}
}
