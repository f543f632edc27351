package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/gateway"
)

// SetupRoutes configures middleware and all routes. ws may be nil in the
// worker binary, which serves only health.
func SetupRoutes(h *Handlers, ws *gateway.Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/events", h.IngestEvent)
		r.Get("/notification-preferences", h.GetPreferences)
		r.Put("/notification-preferences", h.UpdatePreferences)
		r.Get("/delivery-jobs/dead", h.ListDeadJobs)
	})

	if ws != nil {
		r.Handle("/ws", http.Handler(ws))
	}

	return r
}
