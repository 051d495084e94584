package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// SessionCounter reports open conversations.
type SessionCounter interface {
	ActiveSessions(ctx context.Context) int
}

// AssetCounter reports users holding temporary files.
type AssetCounter interface {
	Active() int
}

// Handlers contains the HTTP handlers.
type Handlers struct {
	sessions SessionCounter
	assets   AssetCounter
	started  time.Time
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions SessionCounter, assets AssetCounter, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		sessions: sessions,
		assets:   assets,
		started:  time.Now(),
		logger:   logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	}
	if h.sessions != nil {
		resp.ActiveSessions = h.sessions.ActiveSessions(r.Context())
	}
	if h.assets != nil {
		resp.ActiveAssets = h.assets.Active()
	}
	writeJSON(h.logger, w, http.StatusOK, resp)
}

// NotFound handles requests to unknown paths.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(h.logger, w, http.StatusNotFound, "not found", "NOT_FOUND")
}

// writeJSON writes a JSON response.
func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(logger *slog.Logger, w http.ResponseWriter, status int, message, code string) {
	writeJSON(logger, w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
