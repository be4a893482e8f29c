// ABOUTME: HTTP routes for health checks and realtime transcription token minting
// ABOUTME: Mounts the websocket endpoint and the tool bridge on one chi router

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// routes builds the gateway router.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)
	r.Get("/ws", g.handleWebSocket)

	// the subrouter's middleware runs before method matching, so preflight
	// requests are answered by the cors handler
	r.Route("/api", func(r chi.Router) {
		r.Use(corsHandler(g.config.Server.AllowedOrigins))
		r.Post("/realtime-session", g.handleRealtimeSession)
	})

	g.bridge.Routes(r)
	return r
}

// handleHealth reports that the process is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyResponse is the body of GET /health/ready.
type readyResponse struct {
	Status         string   `json:"status"`
	ActiveChannels int      `json:"active_channels"`
	Channels       []string `json:"channels"`
	BoundToolsets  int      `json:"bound_toolsets"`
}

// handleReady reports the live channels.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	channels := g.registry.Active()
	writeJSON(w, http.StatusOK, readyResponse{
		Status:         "ready",
		ActiveChannels: len(channels),
		Channels:       channels,
		BoundToolsets:  g.bridge.Bound(),
	})
}

// realtimeSessionResponse is the body of POST /api/realtime-session.
type realtimeSessionResponse struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// handleRealtimeSession mints an ephemeral transcription secret for the browser.
func (g *Gateway) handleRealtimeSession(w http.ResponseWriter, r *http.Request) {
	if g.minter == nil {
		sendJSONError(w, http.StatusServiceUnavailable, "realtime transcription is not configured")
		return
	}

	res := g.mintLimiter.Reserve()
	if !res.OK() {
		sendJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
		sendJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	token, err := g.minter.Mint(r.Context())
	if err != nil {
		g.logger.Error("minting realtime session failed", "error", err)
		sendJSONError(w, http.StatusBadGateway, "failed to create realtime session")
		return
	}

	resp := realtimeSessionResponse{Token: token.Value}
	if !token.ExpiresAt.IsZero() {
		resp.ExpiresAt = &token.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// corsHandler allows cross-origin browser calls from the allowed origins.
func corsHandler(allowed []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes {"error": msg} with the given status.
func sendJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
