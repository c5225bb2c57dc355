/**
 * @description
 * This file sets up the HTTP router for the marketplace service. It defines the
 * API endpoints, associates them with their corresponding handlers, and applies
 * any necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// MarketplaceRoutes creates and returns a new router for the marketplace service.
func MarketplaceRoutes(h *Handlers, jwksURL, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(jwksURL))

		// Maintenance tracking
		r.Get("/templates", h.ListTaskTemplatesHandler)
		r.Post("/tasks", h.CreateTaskHandler)
		r.Put("/tasks/{task_id}", h.UpdateTaskHandler)
		r.Delete("/tasks/{task_id}", h.ArchiveTaskHandler)
		r.Post("/tasks/{task_id}/complete", h.CompleteTaskHandler)
		r.Get("/tasks/{task_id}/history", h.TaskHistoryHandler)
		r.Get("/properties/{property_id}/tasks", h.ListTasksHandler)
		r.Get("/properties/{property_id}/calendar", h.CalendarHandler)

		// Payment lifecycle
		r.Post("/service-requests/{request_id}/diagnostic-fee", h.ChargeDiagnosticFeeHandler)
		r.Post("/estimates", h.SendEstimateHandler)
		r.Post("/estimates/{estimate_id}/view", h.ViewEstimateHandler)
		r.Post("/estimates/{estimate_id}/approve", h.ApproveEstimateHandler)
		r.Post("/estimates/{estimate_id}/reject", h.RejectEstimateHandler)
		r.Post("/estimates/{estimate_id}/change-orders", h.CreateChangeOrderHandler)
		r.Post("/change-orders/{order_id}/accept", h.AcceptChangeOrderHandler)
		r.Post("/change-orders/{order_id}/reject", h.RejectChangeOrderHandler)
		r.Post("/invoices", h.CreateInvoiceHandler)
		r.Post("/invoices/{invoice_id}/capture", h.CaptureInvoiceHandler)
		r.Post("/invoices/{invoice_id}/dispute", h.OpenDisputeHandler)
	})

	// Internal service-to-service endpoints.
	r.Group(func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(internalAPIKey))

		r.Post("/internal/tasks/{task_id}/complete", h.InternalCompleteTaskHandler)
	})

	return r
}
