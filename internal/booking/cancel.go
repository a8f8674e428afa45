package booking

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/observability"
)

const (
	ReasonPaymentTimeout = "payment timeout"
	ReasonPaymentFailed  = "payment failed"
)

// canceller is the only code path that cancels a booking. Explicit
// cancellation, the payment timeout sweep and payment failures all go through it.
type canceller struct {
	store    Store
	catalog  Catalog
	notifier Notifier
	alloc    *Allocator
	now      func() time.Time
	logger   observability.Logger
}

// cancelInTx cancels b, which must have been read with GetBookingForUpdate in tx.
// It reports false when b was already cancelled.
func (c *canceller) cancelInTx(ctx context.Context, tx pgx.Tx, b *domain.Booking, ownerID uuid.UUID, reason string) (bool, error) {
	if b.Status == domain.BookingCancelled {
		return false, nil
	}
	if !b.Modifiable(c.now()) {
		return false, errors.Wrapf(domain.ErrInvalidTransition, "booking %s is %s", b.ID, b.EffectiveStatus(c.now()))
	}

	if err := c.store.UpdateBookingStatus(ctx, tx, b.ID, domain.BookingCancelled); err != nil {
		return false, err
	}
	if err := c.store.UpdateAppointmentStatus(ctx, tx, b.AppointmentID, domain.AppointmentCancelled); err != nil {
		return false, err
	}
	if err := c.alloc.Release(ctx, tx, b.ClaimedSlotIDs); err != nil {
		return false, err
	}

	p, err := c.store.GetPaymentByBookingForUpdate(ctx, tx, b.ID)
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
	case err != nil:
		return false, err
	case p.Status == domain.PaymentPending:
		if err := c.store.FailPayment(ctx, tx, p.ID, reason); err != nil {
			return false, err
		}
	}

	b.Status = domain.BookingCancelled
	ev := domain.NewBookingEvent(domain.EventBookingCancelled, b, ownerID, c.now())
	ev.Reason = reason
	if err := c.notifier.Notify(ctx, tx, ev); err != nil {
		return false, err
	}
	return true, nil
}

func newCanceller(store Store, catalog Catalog, notifier Notifier, settings Settings, logger observability.Logger) *canceller {
	return &canceller{
		store:    store,
		catalog:  catalog,
		notifier: notifier,
		alloc:    NewAllocator(store, catalog, settings.SlotWidth),
		now:      settings.Clock,
		logger:   logger,
	}
}

// authorize returns the salon owner when actor may act on b.
func (c *canceller) authorize(ctx context.Context, b *domain.Booking, actor domain.Actor) (uuid.UUID, error) {
	salon, err := c.catalog.GetSalon(ctx, b.SalonID)
	if err != nil {
		return uuid.Nil, err
	}
	if !b.AllowedFor(actor, salon.OwnerID) {
		return uuid.Nil, domain.ErrForbidden
	}
	return salon.OwnerID, nil
}

// ownerOf looks up the salon owner for notifications. A catalog failure only
// narrows the recipients to the client.
func (c *canceller) ownerOf(ctx context.Context, salonID uuid.UUID) uuid.UUID {
	salon, err := c.catalog.GetSalon(ctx, salonID)
	if err != nil {
		c.logger.WithField("salon_id", salonID).WithError(err).Warn("salon owner lookup failed")
		return uuid.Nil
	}
	return salon.OwnerID
}

func metricReason(reason string) string {
	switch {
	case reason == ReasonPaymentTimeout:
		return "timeout"
	case strings.HasPrefix(reason, ReasonPaymentFailed), strings.HasPrefix(reason, "payment initiation"):
		return "payment"
	}
	return "actor"
}
