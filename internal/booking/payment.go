package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Orchestrator settles bookings. Cash bookings settle at the salon; push
// payments go through the gateway and are reconciled by HandleCallback.
type Orchestrator struct {
	store    Store
	gateway  Gateway
	cancels  *canceller
	settings Settings
	logger   observability.Logger
}

func NewOrchestrator(store Store, catalog Catalog, gateway Gateway, notifier Notifier, settings Settings, logger observability.Logger) *Orchestrator {
	settings = settings.withDefaults()
	return &Orchestrator{
		store:    store,
		gateway:  gateway,
		cancels:  newCanceller(store, catalog, notifier, settings, logger),
		settings: settings,
		logger:   logger,
	}
}

// Settlement is what the caller learns right after initiation.
type Settlement struct {
	PaymentID       uuid.UUID
	Status          domain.PaymentStatus
	CheckoutRef     string
	MerchantRef     string
	CustomerMessage string
}

// Record creates the pending payment for b as part of the reservation tx.
func (o *Orchestrator) Record(ctx context.Context, tx pgx.Tx, b *domain.Booking, phone string) (*domain.Payment, error) {
	p := domain.Payment{
		ID:          uuid.New(),
		BookingID:   b.ID,
		Amount:      b.TotalAmount,
		Method:      b.PaymentMethod,
		Status:      domain.PaymentPending,
		PhoneNumber: phone,
		CreatedAt:   o.settings.Clock(),
	}
	if err := o.store.InsertPayment(ctx, tx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Initiate starts settlement of a committed booking. A push request that the
// gateway rejects cancels the booking and returns domain.ErrPaymentInitiationFailed.
func (o *Orchestrator) Initiate(ctx context.Context, b *domain.Booking, p *domain.Payment) (*Settlement, error) {
	if p.Method == domain.PaymentCash {
		return &Settlement{PaymentID: p.ID, Status: p.Status}, nil
	}

	ctx, span := otel.Tracer("booking").Start(ctx, "payment.initiate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", b.ID.String()),
		attribute.String("booking.number", b.BookingNumber),
		attribute.Int64("payment.amount", p.Amount),
	)

	log := o.logger.WithField("booking_id", b.ID).WithField("payment_id", p.ID)

	start := time.Now()
	receipt, err := o.gateway.InitiatePush(ctx, domain.PushRequest{
		PhoneNumber:      p.PhoneNumber,
		Amount:           p.Amount,
		AccountReference: b.BookingNumber,
		Description:      fmt.Sprintf("Booking %s", b.BookingNumber),
	})
	observability.GatewayDuration.WithLabelValues("push", gatewayResult(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "push rejected")
		log.WithError(err).Warn("push initiation failed")

		reason := "payment initiation failed: " + errors.UnwrapAll(err).Error()
		if cerr := o.compensate(ctx, b, reason); cerr != nil {
			log.WithError(cerr).Error("compensation after failed push did not complete")
			err = errors.CombineErrors(err, cerr)
		}
		return nil, errors.Mark(errors.Wrap(err, "initiate push"), domain.ErrPaymentInitiationFailed)
	}

	err = runTx(ctx, o.store, o.settings, func(tx pgx.Tx) error {
		return o.store.SetPaymentCheckoutRefs(ctx, tx, p.ID, receipt.CheckoutRef, receipt.MerchantRef)
	})
	if errors.Is(err, domain.ErrConflict) {
		// The payment left PENDING while the push was in flight, so the
		// booking was already cancelled through the cancel path.
		span.RecordError(err)
		log.WithError(err).WithField("checkout_ref", receipt.CheckoutRef).Warn("booking settled during push initiation")
		return nil, errors.Mark(errors.Wrap(err, "store checkout reference"), domain.ErrPaymentInitiationFailed)
	}
	if err != nil {
		span.RecordError(err)
		log.WithError(err).WithField("checkout_ref", receipt.CheckoutRef).Error("store checkout reference")
		return nil, err
	}
	log.WithField("checkout_ref", receipt.CheckoutRef).Info("push initiated")

	return &Settlement{
		PaymentID:       p.ID,
		Status:          domain.PaymentPending,
		CheckoutRef:     receipt.CheckoutRef,
		MerchantRef:     receipt.MerchantRef,
		CustomerMessage: receipt.CustomerMessage,
	}, nil
}

// compensateTimeout bounds the rollback after a failed push. It runs detached
// from the caller so a dropped request still releases the slots.
const compensateTimeout = 10 * time.Second

func (o *Orchestrator) compensate(ctx context.Context, b *domain.Booking, reason string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	owner := o.cancels.ownerOf(ctx, b.SalonID)
	var cancelled bool
	err := runTx(ctx, o.store, o.settings, func(tx pgx.Tx) error {
		locked, err := o.store.GetBookingForUpdate(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		cancelled, err = o.cancels.cancelInTx(ctx, tx, locked, owner, reason)
		return err
	})
	if err == nil && cancelled {
		observability.BookingsCancelled.WithLabelValues(metricReason(reason)).Inc()
		b.Status = domain.BookingCancelled
	}
	return err
}

func gatewayResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

type StatusView struct {
	BookingID     uuid.UUID
	BookingNumber string
	PaymentStatus domain.PaymentStatus
	BookingStatus domain.BookingStatus
	Amount        int64
	Fee           int64
	CheckoutRef   string
}

// GetStatus reads the payment and booking state without side effects.
func (o *Orchestrator) GetStatus(ctx context.Context, bookingID uuid.UUID, actor domain.Actor) (*StatusView, error) {
	b, err := o.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if _, err := o.cancels.authorize(ctx, b, actor); err != nil {
		return nil, err
	}
	p, err := o.store.GetPaymentByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		PaymentStatus: p.Status,
		BookingStatus: b.EffectiveStatus(o.settings.Clock()),
		Amount:        p.Amount,
		Fee:           b.TransactionFee,
		CheckoutRef:   p.ExternalCheckoutRef,
	}, nil
}

// AwaitStatus polls GetStatus until the payment is terminal. After
// PollAttempts reads it returns the last view with domain.ErrPaymentStatusTimeout.
func (o *Orchestrator) AwaitStatus(ctx context.Context, bookingID uuid.UUID, actor domain.Actor) (*StatusView, error) {
	var view *StatusView
	for attempt := 0; attempt < o.settings.PollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return view, ctx.Err()
			case <-time.After(o.settings.PollInterval):
			}
		}
		var err error
		view, err = o.GetStatus(ctx, bookingID, actor)
		if err != nil {
			return nil, err
		}
		if view.PaymentStatus.Terminal() {
			return view, nil
		}
	}
	return view, errors.Wrapf(domain.ErrPaymentStatusTimeout, "payment for booking %s still %s", bookingID, view.PaymentStatus)
}
