package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/longevity/longevity-backend/app"
	"github.com/longevity/longevity-backend/handlers"
	"github.com/longevity/longevity-backend/middleware"
	"github.com/longevity/longevity-backend/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
		r.Use(chimw.Timeout(timeout))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: deps.Config.CORS.AllowCredentials,
		MaxAge:           300,
	}))

	// A nil *postgres.DB must not become a non-nil interface
	var db handlers.HealthChecker
	if deps.DB != nil {
		db = deps.DB
	}
	health := handlers.NewHealthHandler(db, deps.VectorStore, deps.Logger)
	if deps.QueryLogs != nil {
		health.WithQueryLog(deps.QueryLogs)
	}
	ask := handlers.NewAskHandler(deps.Query, deps.Logger)

	// Health check endpoints
	r.Get("/", health.HandleRoot)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// Question answering
	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(middleware.RateLimit(deps.RateLimit, deps.Logger))
		}
		r.Post("/ask", ask.HandleAsk)
		r.Post("/api/v1/ask", ask.HandleAsk)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
