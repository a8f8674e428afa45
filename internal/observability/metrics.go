package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "salon_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "salon_outbox_lag_seconds",
			Help: "Age of the oldest outbox record published in the last batch",
		},
	)

	OutboxPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "salon_outbox_publish_failures_total",
			Help: "Total outbox records that failed to publish",
		},
	)

	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
		[]string{"limiter"},
	)

	BookingsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_bookings_created_total",
			Help: "Bookings created by payment method",
		},
		[]string{"method"},
	)

	SlotClaimConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "salon_slot_claim_conflicts_total",
			Help: "Slot claims that lost a race or hit a serialization failure",
		},
	)

	BookingsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_bookings_cancelled_total",
			Help: "Cancelled bookings by reason",
		},
		[]string{"reason"},
	)

	PaymentCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salon_payment_callbacks_total",
			Help: "Gateway callbacks by reconciliation outcome",
		},
		[]string{"outcome"},
	)

	GatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salon_gateway_request_seconds",
			Help:    "Duration of push-payment gateway calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)
)
