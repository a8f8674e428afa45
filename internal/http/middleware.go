package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/salon-reservations/internal/idempotency"
	"github.com/robertarktes/salon-reservations/internal/observability"
	"github.com/robertarktes/salon-reservations/internal/rateLimit"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

type loggerKey struct{}

func withLogger(ctx context.Context, l observability.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

var fallbackLogger = observability.NewLoggerWithOutput(io.Discard)

func loggerFrom(r *http.Request) observability.Logger {
	if l, ok := r.Context().Value(loggerKey{}).(observability.Logger); ok {
		return l
	}
	return fallbackLogger
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			next.ServeHTTP(w, r.WithContext(withLogger(r.Context(), entry)))
		})
	}
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := otel.Tracer("http").Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MetricsMiddleware counts requests by route pattern, so path ids do not
// blow up label cardinality.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
	})
}

// IPRateLimit throttles callers by client address.
func IPRateLimit(lim *limiter.Limiter) func(next http.Handler) http.Handler {
	mw := stdlib.NewMiddleware(lim,
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			observability.RateLimitExceeded.WithLabelValues("ip").Inc()
			writeJSON(w, http.StatusTooManyRequests, envelope{Code: "RATE_LIMITED", Message: "too many requests"})
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			loggerFrom(r).WithError(err).Warn("ip rate limiter unavailable")
			writeError(w, r, err)
		}),
	)
	return mw.Handler
}

func NewIPLimiter(store limiter.Store, formatted string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	return limiter.New(store, rate), nil
}

// BookingAttemptLimit caps how often one actor may try to book per minute.
// The limiter failing open keeps bookings available when redis is down.
func BookingAttemptLimit(rl *rateLimit.RateLimiter, perMinute int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok || rl == nil || perMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			allowed, err := rl.Allow(r.Context(), "booking:"+actor.ID.String(), perMinute, time.Minute)
			if err != nil {
				loggerFrom(r).WithError(err).Warn("booking rate limiter unavailable")
				allowed = true
			}
			if !allowed {
				observability.RateLimitExceeded.WithLabelValues("booking").Inc()
				writeJSON(w, http.StatusTooManyRequests, envelope{Code: "RATE_LIMITED", Message: "too many booking attempts"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the first response for a repeated
// Idempotency-Key. Requests without the header pass through unchanged.
func IdempotencyMiddleware(idemp *idempotency.Idempotency) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || key == "" || idemp == nil {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) < 16 || len(key) > 128 {
				writeValidation(w, map[string]string{"Idempotency-Key": "must be 16 to 128 characters"})
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
			if err != nil {
				writeValidation(w, map[string]string{"body": "unreadable request body"})
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			owner := ""
			if actor, ok := ActorFrom(r.Context()); ok {
				owner = actor.ID.String()
			}
			scoped := owner + ":" + key
			fingerprint := idempotency.Fingerprint([]byte(r.Method), []byte(r.URL.Path), body)

			stored, err := idemp.Begin(r.Context(), scoped, fingerprint)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if stored != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Result)
				return
			}

			rec := &recordingWriter{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			ctx := context.WithoutCancel(r.Context())
			if rec.status >= http.StatusInternalServerError || rec.status == 0 {
				if err := idemp.Abort(ctx, scoped); err != nil {
					loggerFrom(r).WithError(err).Warn("release idempotency key")
				}
				return
			}
			resp := idempotency.Response{Status: rec.status, Fingerprint: fingerprint, Result: rec.body.Bytes()}
			if err := idemp.Complete(ctx, scoped, resp); err != nil {
				loggerFrom(r).WithError(err).Warn("store idempotent response")
			}
		})
	}
}
