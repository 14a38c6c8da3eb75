/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /api/budget-allocation   Snapshot reads and allocation writes
  /api/budget-summary/*    UI summary reads
  /api/budget-history      Audit history queries
  /api/rollups/*           Derived usage figures
  /api/data                Organizational hierarchy
  /api/transactions        Classified transaction set
  /api/seed                Demo dataset loader (dev only)

KEY ENCODING:
  Budget keys contain the pipe separator and must be URL-escaped in
  path segments (%7C). chi decodes them before URLParam.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-Name", "X-User-Id", "X-Change-Reason"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/budget-allocation", func(r chi.Router) {
			r.Get("/", h.GetBudgetAllocation)
			r.Post("/", h.PostBudgetAllocation)
		})

		r.Get("/budget-summary/{key}", h.GetBudgetSummary)
		r.Get("/budget-history", h.GetBudgetHistory)

		r.Get("/rollups/{department}", h.GetDepartmentRollup)

		r.Get("/data", h.GetData)
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.GetTransactions)
			r.Post("/", h.PostTransactions)
		})

		r.Post("/seed", h.LoadSeed)
	})

	return r
}
