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

// Service manages the booking lifecycle: creation, cancellation, rescheduling
// and the lazily derived COMPLETED state.
type Service struct {
	store    Store
	catalog  Catalog
	alloc    *Allocator
	payments *Orchestrator
	cancels  *canceller
	notifier Notifier
	audit    AuditLog
	settings Settings
	logger   observability.Logger
}

func NewService(store Store, catalog Catalog, payments *Orchestrator, notifier Notifier, audit AuditLog, settings Settings, logger observability.Logger) *Service {
	settings = settings.withDefaults()
	cancels := newCanceller(store, catalog, notifier, settings, logger)
	return &Service{
		store:    store,
		catalog:  catalog,
		alloc:    cancels.alloc,
		payments: payments,
		cancels:  cancels,
		notifier: notifier,
		audit:    audit,
		settings: settings,
		logger:   logger,
	}
}

type CreateRequest struct {
	ClientID          uuid.UUID
	SalonID           uuid.UUID
	ServiceOfferingID uuid.UUID
	DesiredStart      time.Time
	PaymentMethod     domain.PaymentMethod
	PhoneNumber       string
}

// Reservation is the outcome of a successful CreateBooking.
type Reservation struct {
	Booking     *domain.Booking
	Appointment domain.Appointment
	Payment     *domain.Payment
	Settlement  *Settlement
}

func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (*Reservation, error) {
	if req.ClientID == uuid.Nil {
		return nil, errors.Wrap(domain.ErrInvalidInput, "client id is required")
	}
	if req.PaymentMethod != domain.PaymentPush && req.PaymentMethod != domain.PaymentCash {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "unknown payment method %q", req.PaymentMethod)
	}
	if req.DesiredStart.Before(s.settings.Clock()) {
		return nil, errors.Wrap(domain.ErrInvalidInput, "desired start is in the past")
	}

	var phone string
	if req.PaymentMethod == domain.PaymentPush {
		var err error
		if phone, err = domain.NormalizePhone(req.PhoneNumber); err != nil {
			return nil, err
		}
	}

	salon, err := s.catalog.GetSalon(ctx, req.SalonID)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithField("salon_id", req.SalonID).WithField("client_id", req.ClientID)

	var res *Reservation
	err = runTx(ctx, s.store, s.settings, func(tx pgx.Tx) error {
		alloc, err := s.alloc.Allocate(ctx, tx, req.SalonID, req.ServiceOfferingID, req.DesiredStart)
		if err != nil {
			return err
		}

		now := s.settings.Clock()
		charge := domain.NewCharge(alloc.Offering.Price, s.settings.FeeRate)
		status := domain.BookingPendingPayment
		if req.PaymentMethod == domain.PaymentCash {
			status = domain.BookingConfirmed
		}
		b := &domain.Booking{
			ID:                uuid.New(),
			BookingNumber:     domain.NewBookingNumber(now),
			ClientID:          req.ClientID,
			SalonID:           req.SalonID,
			ServiceOfferingID: alloc.Offering.ID,
			AppointmentID:     alloc.Appointment.ID,
			SlotID:            alloc.Appointment.RepresentativeSlotID,
			PaymentMethod:     req.PaymentMethod,
			TotalAmount:       charge.Total,
			TransactionFee:    charge.TransactionFee,
			Status:            status,
			CreatedAt:         now,
			StartTime:         alloc.Appointment.StartTime,
			EndTime:           alloc.Appointment.EndTime,
			ClaimedSlotIDs:    alloc.SlotIDs(),
		}
		if err := s.store.InsertBooking(ctx, tx, *b); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return errors.Mark(err, errNumberTaken)
			}
			return err
		}

		p, err := s.payments.Record(ctx, tx, b, phone)
		if err != nil {
			return err
		}

		if status == domain.BookingConfirmed {
			ev := domain.NewBookingEvent(domain.EventBookingConfirmed, b, salon.OwnerID, now)
			if err := s.notifier.Notify(ctx, tx, ev); err != nil {
				return err
			}
		}

		res = &Reservation{Booking: b, Appointment: alloc.Appointment, Payment: p}
		return nil
	})
	if errors.Is(err, errClaimLost) {
		err = errors.Mark(errors.Wrap(err, "allocate"), domain.ErrInsufficientSlots)
	}
	if err != nil {
		log.WithError(err).Info("booking not created")
		return nil, err
	}

	observability.BookingsCreated.WithLabelValues(string(req.PaymentMethod)).Inc()
	log = log.WithField("booking_id", res.Booking.ID)
	log.Info("booking created")
	s.auditBooking(ctx, "booking.created", req.ClientID, res.Booking)

	settlement, err := s.payments.Initiate(ctx, res.Booking, res.Payment)
	if err != nil {
		log.WithError(err).Warn("payment initiation failed, booking cancelled")
		return nil, err
	}
	res.Settlement = settlement
	res.Payment.ExternalCheckoutRef = settlement.CheckoutRef
	res.Payment.ExternalMerchantRef = settlement.MerchantRef
	return res, nil
}

// GetBooking returns the booking with its effective status if actor may see it.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.cancels.authorize(ctx, b, actor); err != nil {
		return nil, err
	}
	b.Status = b.EffectiveStatus(s.settings.Clock())
	return b, nil
}

// CancelBooking cancels on behalf of the client, the salon owner or an admin.
// Cancelling an already cancelled booking succeeds without side effects.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, actor domain.Actor) error {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	ownerID, err := s.cancels.authorize(ctx, b, actor)
	if err != nil {
		return err
	}

	reason := "cancelled by " + strings.ToLower(string(actor.Role))
	cancelled, err := s.cancel(ctx, id, ownerID, reason)
	if err != nil {
		return err
	}
	if cancelled {
		s.auditBooking(ctx, "booking.cancelled", actor.ID, b)
	}
	return nil
}

// ExpireUnpaid cancels a booking still waiting for payment. A booking that
// has moved on in the meantime is left alone.
func (s *Service) ExpireUnpaid(ctx context.Context, id uuid.UUID) (bool, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return false, err
	}
	if b.Status != domain.BookingPendingPayment {
		return false, nil
	}
	owner := s.cancels.ownerOf(ctx, b.SalonID)

	var cancelled bool
	err = runTx(ctx, s.store, s.settings, func(tx pgx.Tx) error {
		locked, err := s.store.GetBookingForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if locked.Status != domain.BookingPendingPayment {
			cancelled = false
			return nil
		}
		cancelled, err = s.cancels.cancelInTx(ctx, tx, locked, owner, ReasonPaymentTimeout)
		return err
	})
	if err != nil {
		return false, err
	}
	if cancelled {
		observability.BookingsCancelled.WithLabelValues(metricReason(ReasonPaymentTimeout)).Inc()
		s.auditBooking(ctx, "booking.expired", uuid.Nil, b)
	}
	return cancelled, nil
}

func (s *Service) cancel(ctx context.Context, id, ownerID uuid.UUID, reason string) (bool, error) {
	var cancelled bool
	err := runTx(ctx, s.store, s.settings, func(tx pgx.Tx) error {
		locked, err := s.store.GetBookingForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		cancelled, err = s.cancels.cancelInTx(ctx, tx, locked, ownerID, reason)
		return err
	})
	if err == nil && cancelled {
		observability.BookingsCancelled.WithLabelValues(metricReason(reason)).Inc()
	}
	return cancelled, err
}

func (s *Service) auditBooking(ctx context.Context, action string, actorID uuid.UUID, b *domain.Booking) {
	err := s.audit.LogEvent(ctx, action, actorID, map[string]interface{}{
		"booking_id":     b.ID.String(),
		"booking_number": b.BookingNumber,
		"salon_id":       b.SalonID.String(),
		"status":         string(b.Status),
		"start_time":     b.StartTime,
		"slots":          len(b.ClaimedSlotIDs),
	})
	if err != nil {
		s.logger.WithField("booking_id", b.ID).WithError(err).Warn("audit log failed")
	}
}
