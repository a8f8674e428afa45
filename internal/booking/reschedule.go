package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
)

type Rescheduled struct {
	Booking       *domain.Booking
	OriginalStart time.Time
	NewStart      time.Time
}

// RescheduleBooking moves the booking to the run of slots starting exactly at
// newStart. The booking keeps its slot count. When no such run is free the
// booking is left untouched and domain.ErrNoSlotAtTime is returned.
func (s *Service) RescheduleBooking(ctx context.Context, id uuid.UUID, newStart time.Time, actor domain.Actor) (*Rescheduled, error) {
	if newStart.Before(s.settings.Clock()) {
		return nil, errors.Wrap(domain.ErrInvalidInput, "new start is in the past")
	}
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	ownerID, err := s.cancels.authorize(ctx, b, actor)
	if err != nil {
		return nil, err
	}
	offering, err := s.catalog.GetServiceOffering(ctx, b.ServiceOfferingID)
	if err != nil {
		return nil, err
	}

	var out *Rescheduled
	err = runTx(ctx, s.store, s.settings, func(tx pgx.Tx) error {
		locked, err := s.store.GetBookingForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.settings.Clock()
		if !locked.Modifiable(now) {
			return errors.Wrapf(domain.ErrInvalidTransition, "booking %s is %s", id, locked.EffectiveStatus(now))
		}

		required := len(locked.ClaimedSlotIDs)
		if required == 0 {
			required = domain.RequiredSlots(offering.DurationMinutes, s.settings.SlotWidth)
		}

		if err := s.alloc.Release(ctx, tx, locked.ClaimedSlotIDs); err != nil {
			return err
		}
		run, err := s.alloc.ClaimAt(ctx, tx, locked.SalonID, newStart, required)
		if err != nil {
			return err
		}
		if err := s.store.MoveAppointment(ctx, tx, locked.AppointmentID, run); err != nil {
			return err
		}
		if err := s.store.UpdateBookingSlot(ctx, tx, id, run[0].ID); err != nil {
			return err
		}

		original := locked.StartTime
		locked.SlotID = run[0].ID
		locked.StartTime = run[0].StartTime
		locked.EndTime = run[len(run)-1].EndTime
		locked.ClaimedSlotIDs = domain.SlotIDs(run)

		ev := domain.NewBookingEvent(domain.EventBookingRescheduled, locked, ownerID, now)
		ev.PreviousStartTime = &original
		if err := s.notifier.Notify(ctx, tx, ev); err != nil {
			return err
		}
		out = &Rescheduled{Booking: locked, OriginalStart: original, NewStart: locked.StartTime}
		return nil
	})
	if errors.Is(err, errClaimLost) {
		err = errors.Mark(errors.Wrap(err, "reschedule"), domain.ErrNoSlotAtTime)
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithField("booking_id", id).WithField("start_time", out.NewStart).Info("booking rescheduled")
	s.auditBooking(ctx, "booking.rescheduled", actor.ID, out.Booking)
	return out, nil
}
