package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/itchan-dev/itforum/shared/config"
	"github.com/itchan-dev/itforum/shared/logger"
)

// HealthChecker is satisfied by every store backend.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	health HealthChecker
	cfg    *config.Config
}

func New(health HealthChecker, cfg *config.Config) *Handler {
	return &Handler{health: health, cfg: cfg}
}

// Config exposes the loaded configuration to the router.
func (h *Handler) Config() *config.Config {
	return h.cfg
}

// writeJSON encodes v before touching the response so an encoding failure
// can still be reported as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Log.Error("failed to encode response", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		logger.Log.Debug("failed to write response", "error", err)
	}
}
