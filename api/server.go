/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontends

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
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:8081"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", h.ListBatches)
			r.Post("/", h.CreateBatch)
			r.Get("/{batchId}", h.GetBatch)
			r.Get("/{batchId}/anomaly", h.GetBatchAnomaly)
		})

		// Trace routes
		r.Route("/trace", func(r chi.Router) {
			r.Post("/", h.AppendTrace)
			r.Get("/batch/{batchId}", h.GetTraceForBatch)
		})

		// Consumer marketplace
		r.Get("/marketplace", h.ListMarketplace)

		// Order routes
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.PlaceOrder)
			r.Post("/checkout", h.Checkout)
			r.Get("/consumer/{consumerId}", h.ListOrdersByConsumer)
			r.Get("/distributor/{distributorId}", h.ListOrdersByDistributor)
			r.Put("/{orderId}/status", h.UpdateOrderStatus)
			r.Post("/{orderId}/cancel", h.CancelOrder)
		})

		// Distributor dashboard
		r.Get("/distributors/{distributorId}/stats", h.GetDistributorStats)
	})

	return r
}
