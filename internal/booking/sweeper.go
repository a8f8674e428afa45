package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/salon-reservations/internal/observability"
)

// Locker guards a booking against concurrent sweeps from several workers.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// TimeoutSweeper cancels push-payment bookings whose payment never arrived.
type TimeoutSweeper struct {
	store      BookingStore
	service    *Service
	locker     Locker
	timeout    time.Duration
	batchSize  int
	maxRetries int
	backoff    time.Duration
	lockTTL    time.Duration
	logger     observability.Logger
}

func NewTimeoutSweeper(store BookingStore, service *Service, locker Locker, logger observability.Logger) *TimeoutSweeper {
	return &TimeoutSweeper{
		store:      store,
		service:    service,
		locker:     locker,
		timeout:    service.settings.PaymentTimeout,
		batchSize:  100,
		maxRetries: 3,
		backoff:    time.Second,
		lockTTL:    30 * time.Second,
		logger:     logger,
	}
}

func (w *TimeoutSweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := w.Sweep(ctx, now); err != nil {
				w.logger.WithError(err).Error("payment timeout sweep failed")
			}
		}
	}
}

// Sweep expires every booking that has been waiting for payment since before
// now minus the payment timeout. It returns how many were cancelled.
func (w *TimeoutSweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	ids, err := w.store.ListExpiredPendingBookings(ctx, now.Add(-w.timeout), w.batchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		ok, err := w.expireWithRetry(ctx, id)
		if err != nil {
			w.logger.WithField("booking_id", id).WithError(err).Error("failed to expire booking after retries")
			continue
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		w.logger.WithField("expired", expired).Info("unpaid bookings cancelled")
	}
	return expired, ctx.Err()
}

func (w *TimeoutSweeper) expireWithRetry(ctx context.Context, id uuid.UUID) (bool, error) {
	key := "sweep:booking:" + id.String()
	token, locked, err := w.locker.TryLock(ctx, key, w.lockTTL)
	if err != nil {
		return false, err
	}
	if !locked {
		return false, nil
	}
	defer func() {
		if err := w.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			w.logger.WithField("booking_id", id).WithError(err).Warn("release sweep lock")
		}
	}()

	var lastErr error
	for i := 0; i < w.maxRetries; i++ {
		expired, err := w.service.ExpireUnpaid(ctx, id)
		if err == nil {
			return expired, nil
		}
		lastErr = err
		backoff := time.Duration(1<<i) * w.backoff
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return false, errors.Wrapf(lastErr, "failed after %d retries", w.maxRetries)
}
