package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/salon-reservations/internal/idempotency"
	"github.com/robertarktes/salon-reservations/internal/observability"
	"github.com/robertarktes/salon-reservations/internal/rateLimit"
	"github.com/ulule/limiter/v3"
)

type Limits struct {
	IP               *limiter.Limiter
	Booking          *rateLimit.RateLimiter
	BookingPerMinute int
}

func SetupRouter(h *Handlers, logger observability.Logger, auth *Authenticator, limits Limits, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	// The gateway posts from a few addresses and never retries a rejected
	// callback, so it stays outside the per-IP limit.
	r.Post("/v1/payments/callback", h.PaymentCallback)

	r.Group(func(r chi.Router) {
		if limits.IP != nil {
			r.Use(IPRateLimit(limits.IP))
		}
		r.Get("/v1/salons/{salonId}/slots", h.ListSlots)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Group(func(r chi.Router) {
				r.Use(BookingAttemptLimit(limits.Booking, limits.BookingPerMinute))
				r.Use(IdempotencyMiddleware(idemp))
				r.Post("/v1/bookings", h.CreateBooking)
				r.Post("/v1/payments/initiate", h.InitiatePayment)
			})

			r.Get("/v1/bookings/{id}", h.GetBooking)
			r.Patch("/v1/bookings/{id}/cancel", h.CancelBooking)
			r.Patch("/v1/bookings/{id}/reschedule", h.RescheduleBooking)
			r.Get("/v1/payments/status/{bookingId}", h.PaymentStatus)
			r.Post("/v1/salons/{salonId}/slots", h.GenerateSlots)
			r.Get("/v1/owners/me/bookings", h.OwnerBookings)
			r.Get("/v1/owners/me/summary", h.OwnerSummary)
		})
	})

	return r
}
