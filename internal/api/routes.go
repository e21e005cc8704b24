package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// CORS for the mobile and web clients
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://app.heyway.com", "http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		// Contact import
		r.Route("/import", func(r chi.Router) {
			r.Post("/validate", h.ValidateImport)
			r.Post("/", h.RunImport)
			r.Post("/file", h.RunFileImport)
			r.Get("/{jobID}/progress", h.GetImportProgress)
		})

		// Automations
		r.Route("/automations", func(r chi.Router) {
			r.Get("/", h.ListAutomations)
			r.Post("/refresh", h.RefreshAutomations)
		})

		// Dialing queue
		r.Get("/queue/estimate", h.GetQueueEstimate)

		// DNC
		r.Get("/dnc/stats", h.GetDNCStats)
	})

	return r
}
