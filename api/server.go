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
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/devices/*      Device catalog and administrative transitions
  /api/pools/*        License pool catalog and seat growth
  /api/assignments/*  Direct assign/return/revoke (admin)
  /api/requests/*     Employee request gate
  /api/alerts         Expiry alerts
  /api/admin/*        Manual expiry sweep

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Device catalog
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", h.ListDevices)
			r.Post("/", h.RegisterDevice)
			r.Get("/{id}", h.GetDevice)
			r.Post("/{id}/status", h.SetDeviceStatus)
		})

		// License pool catalog
		r.Route("/pools", func(r chi.Router) {
			r.Get("/", h.ListPools)
			r.Post("/", h.RegisterPool)
			r.Get("/{id}", h.GetPool)
			r.Post("/{id}/seats", h.AddSeats)
		})

		// Direct assignment operations (admin)
		r.Route("/assignments", func(r chi.Router) {
			r.Post("/devices", h.AssignDevice)
			r.Post("/devices/{id}/return", h.ReturnDevice)
			r.Post("/licenses", h.AssignLicense)
			r.Post("/licenses/{id}/return", h.ReturnLicense)
			r.Post("/licenses/{id}/revoke", h.RevokeLicense)
			r.Get("/holders/{id}", h.GetHolderAssignments)
		})

		// Employee request gate
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.SubmitRequest)
			r.Get("/pending", h.ListPendingRequests)

			r.Route("/returns", func(r chi.Router) {
				r.Post("/", h.SubmitReturn)
				r.Get("/pending", h.ListPendingReturns)
				r.Post("/{id}/approve", h.ApproveReturn)
				r.Post("/{id}/reject", h.RejectReturn)
			})

			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		// Expiry monitoring
		r.Get("/alerts", h.ListAlerts)

		// Admin operations
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
		})
	})

	return r
}
