package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/hanswolff/clubportal/internal/handlers"
	"github.com/hanswolff/clubportal/internal/middleware"
)

// RegisterRoutes registers all application routes. Everything here is
// public; the fine-grained limiter profiles live inside the services, the
// httprate middleware just caps raw request volume per IP.
func RegisterRoutes(
	router chi.Router,
	rsvpHandler *handlers.RSVPHandler,
	authHandler *handlers.AuthHandler,
	resetHandler *handlers.PasswordResetHandler,
	contactHandler *handlers.ContactHandler,
	healthHandler *handlers.HealthHandler,
	publicPerMinute int,
) {
	public := middleware.RateLimitByIP(publicPerMinute)

	router.Group(func(r chi.Router) {
		r.Use(public)

		// Reminder link redemption
		r.Get("/rsvp", rsvpHandler.Lookup)
		r.Post("/rsvp", rsvpHandler.Redeem)
		r.Get("/unsubscribe", rsvpHandler.Unsubscribe)
		r.Post("/unsubscribe", rsvpHandler.Unsubscribe)

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/forgot-password", resetHandler.Forgot)
		r.Post("/auth/reset-password", resetHandler.Reset)

		r.Post("/contact", contactHandler.Submit)
	})

	router.Get("/health", healthHandler.Health)
}
