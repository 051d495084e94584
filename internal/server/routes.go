package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(h *Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("/", h.NotFound)

	if logger == nil {
		logger = slog.Default()
	}
	return Observe(logger)(mux)
}

// New returns an http.Server serving the router on port.
func New(port int, h *Handlers, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(h, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
