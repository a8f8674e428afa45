package booking

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/observability"
)

type CallbackOutcome string

const (
	CallbackUnknown   CallbackOutcome = "unknown"
	CallbackDuplicate CallbackOutcome = "duplicate"
	CallbackConfirmed CallbackOutcome = "confirmed"
	CallbackFailed    CallbackOutcome = "failed"
)

// HandleCallback reconciles a gateway verdict with the booking it refers to.
// Redelivered callbacks are reported as duplicates and change nothing.
func (o *Orchestrator) HandleCallback(ctx context.Context, res domain.CallbackResult) (CallbackOutcome, error) {
	log := o.logger.WithField("checkout_ref", res.CheckoutRef).WithField("result_code", res.ResultCode)

	outcome, err := o.reconcile(ctx, res)
	if err != nil {
		log.WithError(err).Error("callback reconciliation failed")
		return outcome, err
	}
	observability.PaymentCallbacks.WithLabelValues(string(outcome)).Inc()
	log.WithField("outcome", outcome).Info("callback reconciled")
	return outcome, nil
}

func (o *Orchestrator) reconcile(ctx context.Context, res domain.CallbackResult) (CallbackOutcome, error) {
	p, err := o.store.GetPaymentByCheckoutRef(ctx, res.CheckoutRef)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return CallbackUnknown, nil
	}
	if err != nil {
		return "", err
	}
	if p.Status.Terminal() {
		return CallbackDuplicate, nil
	}

	b, err := o.store.GetBooking(ctx, p.BookingID)
	if err != nil {
		return "", err
	}
	owner := o.cancels.ownerOf(ctx, b.SalonID)

	reason := ReasonPaymentFailed
	if res.ResultDesc != "" {
		reason += ": " + res.ResultDesc
	}

	var outcome CallbackOutcome
	err = runTx(ctx, o.store, o.settings, func(tx pgx.Tx) error {
		locked, err := o.store.GetBookingForUpdate(ctx, tx, p.BookingID)
		if err != nil {
			return err
		}
		payment, err := o.store.GetPaymentByBookingForUpdate(ctx, tx, p.BookingID)
		if err != nil {
			return err
		}
		if payment.Status.Terminal() {
			outcome = CallbackDuplicate
			return nil
		}

		if !res.Succeeded() {
			outcome = CallbackFailed
			_, err := o.cancels.cancelInTx(ctx, tx, locked, owner, reason)
			return err
		}

		now := o.settings.Clock()
		if err := o.store.CompletePayment(ctx, tx, payment.ID, res.Receipt(), res.TransactionTime(now)); err != nil {
			return err
		}
		outcome = CallbackConfirmed
		if locked.Status != domain.BookingPendingPayment {
			return nil
		}
		if err := o.store.UpdateBookingStatus(ctx, tx, locked.ID, domain.BookingConfirmed); err != nil {
			return err
		}
		locked.Status = domain.BookingConfirmed
		return o.cancels.notifier.Notify(ctx, tx, domain.NewBookingEvent(domain.EventBookingConfirmed, locked, owner, now))
	})
	if err != nil {
		return "", err
	}
	if outcome == CallbackFailed {
		observability.BookingsCancelled.WithLabelValues(metricReason(reason)).Inc()
	}
	return outcome, nil
}
