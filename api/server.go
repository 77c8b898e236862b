/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack, and route definitions.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/income/*       Income records
  /api/settings/*     Per-admin targets and tier rates
  /api/recaps/*       Monthly recap, retry, mark-paid, export
  /api/calculator     Bonus preview
  /healthz            Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
// An empty allowedOrigins list falls back to the local dev origins.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/income", func(r chi.Router) {
			r.Get("/", h.ListIncome)
			r.Post("/", h.CreateIncome)
			r.Delete("/{id}", h.DeleteIncome)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.ListSettings)
			r.Get("/{code}", h.GetSetting)
			r.Put("/{code}", h.SaveSetting)
			r.Delete("/{code}", h.DeleteSetting)
		})

		r.Route("/recaps/{year}/{month}", func(r chi.Router) {
			r.Get("/", h.GetRecap)
			r.Get("/export.csv", h.ExportRecap)
			r.Post("/retry", h.RetryRecap)
			r.Post("/{code}/pay", h.MarkPaid)
		})

		r.Get("/calculator", h.Calculate)
	})

	return r
}
