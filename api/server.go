/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/entities/*     Issuing-entity import
  /api/partners/*     Partner import
  /api/contracts/*    Contract import and direct billing
  /api/schedules/*    Recurring schedule lifecycle
  /api/invoices/*     Invoice lifecycle and follow-ups
  /api/jobs/*         Sweep runs and manual trigger
  /healthz            Liveness probe

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Party import routes
		r.Post("/entities", h.UpsertEntity)
		r.Post("/partners", h.UpsertPartner)

		r.Route("/contracts", func(r chi.Router) {
			r.Post("/", h.UpsertContract)
			r.Get("/{id}", h.GetContract)
			r.Post("/{id}/bill", h.BillContract)
		})

		// Schedule routes
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.ListSchedules)
			r.Post("/", h.CreateSchedule)
			r.Get("/{id}", h.GetSchedule)
			r.Post("/{id}/approve", h.ApproveSchedule)
			r.Post("/{id}/reject", h.RejectSchedule)
			r.Post("/{id}/pause", h.PauseSchedule)
			r.Post("/{id}/resume", h.ResumeSchedule)
			r.Post("/{id}/end", h.EndSchedule)
		})

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/generate", h.GenerateInvoice)
			r.Get("/{id}", h.GetInvoice)
			r.Get("/{id}/followups", h.ListFollowUps)
			r.Post("/{id}/approve", h.ApproveInvoice)
			r.Post("/{id}/reject", h.RejectInvoice)
			r.Post("/{id}/send", h.SendInvoice)
			r.Post("/{id}/pay", h.PayInvoice)
			r.Post("/{id}/void", h.VoidInvoice)
			r.Post("/{id}/cancel", h.CancelInvoice)
			r.Post("/{id}/followup", h.SendFollowUp)
		})

		// Job routes
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/runs", h.ListJobRuns)
			r.Post("/sweep", h.TriggerSweep)
		})
	})

	return r
}
