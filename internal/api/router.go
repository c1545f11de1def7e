// Package api exposes the blob service over HTTP.
package api

import (
	"net/http"

	"github.com/JuribaDev/juriba-storage/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the HTTP handler. Blob reads and writes require a
// bearer token accepted by authenticator.
func NewRouter(h *Handler, authenticator auth.AuthEngine) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LogRequest)
	r.Use(Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", IdempotencyKeyHeader},
		MaxAge:         300,
	}))

	r.Get("/api/up", Up)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", h.Login)

		r.Route("/blobs", func(r chi.Router) {
			r.Get("/generate_uuid", h.GenerateUUID)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth(authenticator))
				r.Post("/", h.CreateBlob)
				r.Get("/{id}", h.GetBlob)
			})
		})
	})

	return r
}
