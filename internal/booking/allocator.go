package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
)

// Allocation is a claimed contiguous slot run and the appointment covering it.
type Allocation struct {
	Offering    *domain.ServiceOffering
	Appointment domain.Appointment
	Slots       []domain.Slot
}

func (a *Allocation) SlotIDs() []uuid.UUID {
	return domain.SlotIDs(a.Slots)
}

type Allocator struct {
	store     Store
	catalog   Catalog
	slotWidth time.Duration
}

func NewAllocator(store Store, catalog Catalog, slotWidth time.Duration) *Allocator {
	return &Allocator{store: store, catalog: catalog, slotWidth: slotWidth}
}

// Allocate claims the next run of available slots at or after desiredStart
// that covers the offering's duration. It fails with
// domain.ErrInsufficientSlots without claiming anything when the run is short
// or has a gap. errClaimLost means a concurrent claim won and tx must be retried.
func (a *Allocator) Allocate(ctx context.Context, tx pgx.Tx, salonID, offeringID uuid.UUID, desiredStart time.Time) (*Allocation, error) {
	offering, err := a.catalog.GetServiceOffering(ctx, offeringID)
	if err != nil {
		return nil, err
	}
	if offering.SalonID != salonID {
		return nil, errors.Wrapf(domain.ErrServiceNotFound, "offering %s is not offered by salon %s", offeringID, salonID)
	}

	required := domain.RequiredSlots(offering.DurationMinutes, a.slotWidth)
	if required == 0 {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "offering %s has no duration", offeringID)
	}

	run, err := a.store.NextAvailableSlots(ctx, tx, salonID, desiredStart, required)
	if err != nil {
		return nil, err
	}
	if len(run) < required || !domain.Contiguous(run) {
		return nil, domain.ErrInsufficientSlots
	}

	if err := a.claim(ctx, tx, run); err != nil {
		return nil, err
	}

	first, last := run[0], run[len(run)-1]
	appt := domain.Appointment{
		ID:                   uuid.New(),
		SalonID:              salonID,
		ServiceOfferingID:    offering.ID,
		Date:                 first.Date,
		StartTime:            first.StartTime,
		EndTime:              last.EndTime,
		RepresentativeSlotID: first.ID,
		Status:               domain.AppointmentScheduled,
	}
	if err := a.store.InsertAppointment(ctx, tx, appt, domain.SlotIDs(run)); err != nil {
		return nil, err
	}

	return &Allocation{Offering: offering, Appointment: appt, Slots: run}, nil
}

// ClaimAt claims n contiguous available slots whose first slot starts exactly
// at start, or fails with domain.ErrNoSlotAtTime.
func (a *Allocator) ClaimAt(ctx context.Context, tx pgx.Tx, salonID uuid.UUID, start time.Time, n int) ([]domain.Slot, error) {
	run, err := a.store.NextAvailableSlots(ctx, tx, salonID, start, n)
	if err != nil {
		return nil, err
	}
	if len(run) < n || !run[0].StartTime.Equal(start) || !domain.Contiguous(run) {
		return nil, errors.Wrapf(domain.ErrNoSlotAtTime, "no %d slot run at %s", n, start.Format(time.RFC3339))
	}
	if err := a.claim(ctx, tx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (a *Allocator) claim(ctx context.Context, tx pgx.Tx, run []domain.Slot) error {
	claimed, err := a.store.ClaimSlots(ctx, tx, domain.SlotIDs(run))
	if err != nil {
		return err
	}
	if claimed < int64(len(run)) {
		return errClaimLost
	}
	return nil
}

// Release makes the given slots bookable again. Releasing a free slot is a no-op.
func (a *Allocator) Release(ctx context.Context, tx pgx.Tx, slotIDs []uuid.UUID) error {
	return a.store.ReleaseSlots(ctx, tx, slotIDs)
}
