package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itchan-dev/itforum/backend/internal/handler"
	"github.com/itchan-dev/itforum/shared/middleware/headers"
	"github.com/itchan-dev/itforum/shared/middleware/metrics"
)

// New builds the ops router: probes and the Prometheus scrape endpoint.
func New(h *handler.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(headers.Secure(h.Config().Public.HSTS))
	r.Use(metrics.Middleware)

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
