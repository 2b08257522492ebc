package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/relay-api/internal/api"
	apiMiddleware "github.com/phrazzld/relay-api/internal/api/middleware"
)

// requestTimeout bounds a single HTTP request. Task processing is not
// covered; submissions return before the provider is called.
const requestTimeout = 30 * time.Second

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.Trace(app.logger))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	taskHandler := api.NewTaskHandler(app.tasks)
	statusHandler := api.NewStatusHandler(app.tasks)
	adminHandler := api.NewAdminHandler(app.config)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.authenticator)

	r.Post("/tasks", taskHandler.Submit)
	r.Get("/tasks/{id}", taskHandler.Get)

	r.Get("/health", statusHandler.Health)
	r.Get("/queue/status", statusHandler.QueueStatus)
	r.Get("/status/rate_limits", statusHandler.RateLimits)
	r.Get("/status/metrics", statusHandler.Metrics)

	r.Route("/admin", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.Get("/config", adminHandler.Config)
	})

	return r
}
