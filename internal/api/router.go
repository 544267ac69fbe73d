/**
 * @description
 * This file sets up the HTTP router for the treasury-service using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, authentication and rate limiting, and maps the routes
 * to their handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appmw "github.com/subguard/treasury-service/pkg/middleware"
)

// NewRouter creates a new Chi router and registers the treasury-service
// routes. The rate limiter gates the onboarding and payment-bearing
// endpoints, keyed by authenticated user id with a client IP fallback.
func NewRouter(h *Handler, verifier TokenVerifier, limiter appmw.Limiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Treasury service is healthy"))
	})

	rateLimit := appmw.RateLimit(limiter, identifyCaller)

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(verifier))

		r.Get("/wallet", h.handleGetWallet)
		r.Get("/wallet/balance", h.handleGetBalance)
		r.Get("/tier", h.handleGetTier)

		// Mutating endpoints sit behind the rate limiter.
		r.Group(func(r chi.Router) {
			r.Use(rateLimit)

			r.Post("/onboard", h.handleOnboard)
			r.Post("/wallet/send", h.handleSend)
			r.Post("/tier/upgrade", h.handleTierUpgrade)
		})
	})

	return r
}

func identifyCaller(r *http.Request) string {
	if userID, ok := UserFromContext(r.Context()); ok {
		return userID
	}
	return appmw.ClientIP(r)
}
