package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handlers holds the HTTP handler dependencies for the status surface.
type Handlers struct {
	provider Provider
	logger   *slog.Logger
}

// NewHandlers builds the status-surface handlers.
func NewHandlers(provider Provider, logger *slog.Logger) *Handlers {
	return &Handlers{provider: provider, logger: logger.With("component", "api-handlers")}
}

// HandleHealth is a liveness probe: 200 means the process is up, nothing
// more; the Provider is not consulted.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleSnapshot returns the current read-only trading snapshot.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot := BuildSnapshot(h.provider)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		h.logger.Error("failed to encode snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
}
