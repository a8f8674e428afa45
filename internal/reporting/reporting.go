// Package reporting answers read-only questions about bookings and slots.
// It never writes and never takes a transaction.
package reporting

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"golang.org/x/sync/errgroup"
)

type BookingReader interface {
	ListBookingsForSalons(ctx context.Context, salonIDs []uuid.UUID, from, to time.Time) ([]domain.Booking, error)
}

type SlotReader interface {
	ListAvailableSlots(ctx context.Context, salonID uuid.UUID, from, to time.Time) ([]domain.Slot, error)
}

type SalonReader interface {
	SalonsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Salon, error)
}

type Reports struct {
	bookings BookingReader
	slots    SlotReader
	salons   SalonReader
	now      func() time.Time
}

func New(bookings BookingReader, slots SlotReader, salons SalonReader) *Reports {
	return &Reports{bookings: bookings, slots: slots, salons: salons, now: time.Now}
}

func checkRange(from, to time.Time) error {
	if !to.After(from) {
		return errors.Wrap(domain.ErrInvalidInput, "empty time range")
	}
	return nil
}

// ListBookingsForOwner returns bookings across all salons of ownerID whose
// appointment starts in [from, to), with their effective status.
func (r *Reports) ListBookingsForOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]domain.Booking, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	salons, err := r.salons.SalonsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(salons) == 0 {
		return []domain.Booking{}, nil
	}
	ids := make([]uuid.UUID, len(salons))
	for i, s := range salons {
		ids[i] = s.ID
	}
	bookings, err := r.bookings.ListBookingsForSalons(ctx, ids, from, to)
	if err != nil {
		return nil, err
	}
	now := r.now()
	for i := range bookings {
		bookings[i].Status = bookings[i].EffectiveStatus(now)
	}
	return bookings, nil
}

func (r *Reports) ListAvailableSlots(ctx context.Context, salonID uuid.UUID, from, to time.Time) ([]domain.Slot, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return r.slots.ListAvailableSlots(ctx, salonID, from, to)
}

type SalonSummary struct {
	SalonID   uuid.UUID
	SalonName string
	ByStatus  map[domain.BookingStatus]int
	// Revenue sums service prices of confirmed and completed bookings, fees excluded.
	Revenue   int64
	OpenSlots int
}

type OwnerSummary struct {
	OwnerID uuid.UUID
	From    time.Time
	To      time.Time
	Salons  []SalonSummary
	Total   SalonSummary
}

// OwnerSummary aggregates every salon of ownerID concurrently.
func (r *Reports) OwnerSummary(ctx context.Context, ownerID uuid.UUID, from, to time.Time) (*OwnerSummary, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	salons, err := r.salons.SalonsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	summaries := make([]SalonSummary, len(salons))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, salon := range salons {
		i, salon := i, salon
		g.Go(func() error {
			s, err := r.summarize(gctx, salon, from, to, now)
			if err != nil {
				return errors.Wrapf(err, "summarize salon %s", salon.ID)
			}
			summaries[i] = *s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].SalonName < summaries[j].SalonName })
	out := &OwnerSummary{
		OwnerID: ownerID,
		From:    from,
		To:      to,
		Salons:  summaries,
		Total:   SalonSummary{ByStatus: map[domain.BookingStatus]int{}},
	}
	for _, s := range summaries {
		for status, n := range s.ByStatus {
			out.Total.ByStatus[status] += n
		}
		out.Total.Revenue += s.Revenue
		out.Total.OpenSlots += s.OpenSlots
	}
	return out, nil
}

func (r *Reports) summarize(ctx context.Context, salon domain.Salon, from, to, now time.Time) (*SalonSummary, error) {
	bookings, err := r.bookings.ListBookingsForSalons(ctx, []uuid.UUID{salon.ID}, from, to)
	if err != nil {
		return nil, err
	}
	slots, err := r.slots.ListAvailableSlots(ctx, salon.ID, from, to)
	if err != nil {
		return nil, err
	}

	s := &SalonSummary{
		SalonID:   salon.ID,
		SalonName: salon.Name,
		ByStatus:  map[domain.BookingStatus]int{},
		OpenSlots: len(slots),
	}
	for _, b := range bookings {
		status := b.EffectiveStatus(now)
		s.ByStatus[status]++
		if status == domain.BookingConfirmed || status == domain.BookingCompleted || status == domain.BookingReviewed {
			s.Revenue += b.TotalAmount - b.TransactionFee
		}
	}
	return s, nil
}
