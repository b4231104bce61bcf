package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/itchan-dev/itforum/shared/logger"
)

type readiness struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Error   string `json:"error,omitempty"`
}

// Health is a liveness probe endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Ready reports whether the configured store answers a ping.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	backend := ""
	if h.cfg != nil {
		backend = h.cfg.Public.Store.Backend
	}
	if err := h.health.Ping(ctx); err != nil {
		logger.Log.Warn("readiness check failed", "backend", backend, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, readiness{Status: "unavailable", Backend: backend, Error: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, readiness{Status: "ok", Backend: backend})
}
