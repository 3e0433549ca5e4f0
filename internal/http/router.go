package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tessera-live/tessera/internal/observability"
	"github.com/tessera-live/tessera/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware)
		r.Use(RateLimitMiddleware(rl))

		r.Post("/v1/events", h.CreateEvent)
		r.Get("/v1/events/{id}", h.GetEvent)

		r.With(RequireIdempotencyKey).Post("/v1/reservations", h.CreateReservation)
		r.Post("/v1/reservations/{id}/confirm", h.ConfirmReservation)
		r.Get("/v1/reservations/{id}", h.GetReservation)

		r.Get("/v1/tickets", h.ListMyTickets)
		r.Post("/v1/tickets/{id}/transfer", h.InitiateTransfer)
		r.Post("/v1/transfers/claim", h.ClaimTransfer)

		r.With(RequireRole(RoleStaff)).Post("/v1/checkin", h.Checkin)
	})

	return r
}
