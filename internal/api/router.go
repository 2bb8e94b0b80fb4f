package api

import (
	"log/slog"
	"net/http"

	"github.com/everkeep/email-retry-system/internal/engine"
	"github.com/everkeep/email-retry-system/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(pgStore *store.PostgresStore, e *engine.Engine, c *engine.Coordinator, lock *engine.RunLock, factory engine.SendFactory, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// Handlers
	failureHandler := NewFailureHandler(pgStore)
	retryHandler := NewRetryHandler(e, c, lock, factory, pgStore, logger)
	metricsHandler := NewMetricsHandler(pgStore, e.PolicyTable())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/failures", func(r chi.Router) {
			r.Get("/", failureHandler.List)
			r.Get("/{id}", failureHandler.Get)
			r.Post("/{id}/retry", retryHandler.RetryOne)
		})

		r.Post("/retry-runs", retryHandler.RunBatch)

		r.Get("/metrics", metricsHandler.Metrics)
	})

	return r
}
