/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, logged with each line
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Tracing:    One OpenTelemetry server span per request
  5. CORS:       Cross-origin requests for the admin and payee frontends

ROUTE GROUPS:
  /api/cases/*            Case lifecycle and oversight
  /api/rewards            Reward recording
  /api/payees/*           Payee summary, bank details, payout requests
  /api/payout-requests/*  Admin settlement
  /api/settings/*         Minimum payout threshold
  /api/admin/*            Reconciliation
  /api/audit              Audit trail
  /api/events             Server-sent change stream
  /healthz                Liveness and dependency pings

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

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
	"github.com/warp/commission-engine/tracing"
)

// ServiceName is the tracing service name of the HTTP server.
const ServiceName = "commission-engine"

// NewRouter creates a new router with all routes configured.
// An empty origins list allows any origin.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	r := chi.NewRouter()

	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware(ServiceName))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Case routes
		r.Route("/cases", func(r chi.Router) {
			r.Post("/", h.OpenCase)
			r.Get("/oversight", h.CaseOversight)
			r.Get("/{id}", h.GetCase)
			r.Post("/{id}/transitions", h.TransitionCase)
			r.Put("/{id}/financials", h.UpdateFinancials)
			r.Post("/{id}/lock-window", h.RearmLockWindow)
		})

		r.Post("/rewards", h.RecordReward)

		// Payee routes
		r.Route("/payees/{id}", func(r chi.Router) {
			r.Get("/summary", h.PayeeSummary)
			r.Get("/bank-details", h.GetBankDetails)
			r.Put("/bank-details", h.SaveBankDetails)
			r.Post("/payout-requests", h.RequestPayout)
		})

		// Payout request routes
		r.Route("/payout-requests", func(r chi.Router) {
			r.Get("/", h.ListPayoutRequests)
			r.Get("/{id}", h.GetPayoutRequest)
			r.Post("/{id}/cancel", h.CancelPayoutRequest)
			r.Post("/{id}/paid", h.MarkPayoutPaid)
		})

		// Settings routes
		r.Route("/settings", func(r chi.Router) {
			r.Get("/min-payout-threshold", h.GetThreshold)
			r.Put("/min-payout-threshold", h.SetThreshold)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/reconcile", h.Reconcile)
			r.Get("/scheduler", h.SchedulerStatus)
		})

		r.Get("/audit", h.AuditTrail)
		r.Get("/events", h.StreamEvents)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found", nil)
	})

	return r
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
