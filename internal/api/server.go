// Package api is the ambient observability surface every service in this
// family carries: a liveness probe, a Prometheus metrics endpoint, and a
// read-only JSON status snapshot. A full web dashboard (login, templates,
// WebSocket push) is out of scope and is not reproduced here.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nifty-options-trader/internal/config"
)

// Server runs the minimal HTTP status surface.
type Server struct {
	cfg      config.DashboardConfig
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer builds the status server. Routes: /healthz (liveness),
// /metrics (Prometheus), /api/snapshot (read-only JSON status).
func NewServer(cfg config.DashboardConfig, provider Provider, logger *slog.Logger) *Server {
	handlers := NewHandlers(provider, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{cfg: cfg, handlers: handlers, server: server, logger: logger.With("component", "api-server")}
}

// Start blocks serving HTTP until Stop shuts the listener down.
func (s *Server) Start() error {
	s.logger.Info("status server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down within a 10-second deadline.
func (s *Server) Stop() error {
	s.logger.Info("stopping status server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
