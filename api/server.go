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
  /api/books/*          Catalog management
  /api/borrowers/*      Borrower directory and per-borrower views
  /api/transactions/*   Issue, return, and fine operations
  /api/fines/*          Fine configuration

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
		// Catalog routes
		r.Route("/books", func(r chi.Router) {
			r.Get("/", h.ListBooks)
			r.Post("/", h.CreateBook)
			r.Get("/{id}", h.GetBook)
			r.Put("/{id}", h.UpdateBook)
			r.Delete("/{id}", h.DeleteBook)
		})

		// Borrower routes
		r.Route("/borrowers", func(r chi.Router) {
			r.Get("/", h.ListBorrowers)
			r.Post("/", h.CreateBorrower)
			r.Get("/{id}", h.GetBorrower)
			r.Get("/{id}/transactions", h.GetBorrowerTransactions)
			r.Get("/{id}/fines", h.GetBorrowerFines)
		})

		// Lending workflow routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/issue", h.IssueBook)
			r.Get("/status", h.GetBookStatus)
			r.Get("/{id}", h.GetTransaction)
			r.Post("/{id}/return", h.ReturnBook)
			r.Get("/{id}/fine", h.CalculateFine)
			r.Post("/{id}/fine/pay", h.PayFine)
		})

		// Fine configuration routes
		r.Route("/fines", func(r chi.Router) {
			r.Get("/config", h.GetFineConfig)
			r.Put("/config", h.UpdateFineConfig)
		})
	})

	return r
}
