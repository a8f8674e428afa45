// Package memory holds in-process adapters used by the service and handler
// tests. Transactions are serialized and rolled back by restoring a snapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
)

type state struct {
	slots        map[uuid.UUID]domain.Slot
	appointments map[uuid.UUID]domain.Appointment
	apptSlots    map[uuid.UUID][]uuid.UUID
	bookings     map[uuid.UUID]domain.Booking
	payments     map[uuid.UUID]domain.Payment
	outbox       []domain.OutboxRecord
}

func (s *state) clone() *state {
	c := &state{
		slots:        make(map[uuid.UUID]domain.Slot, len(s.slots)),
		appointments: make(map[uuid.UUID]domain.Appointment, len(s.appointments)),
		apptSlots:    make(map[uuid.UUID][]uuid.UUID, len(s.apptSlots)),
		bookings:     make(map[uuid.UUID]domain.Booking, len(s.bookings)),
		payments:     make(map[uuid.UUID]domain.Payment, len(s.payments)),
		outbox:       append([]domain.OutboxRecord(nil), s.outbox...),
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.apptSlots {
		c.apptSlots[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

// Store implements the booking store and the outbox store. Methods that take
// a tx must only be called inside WithTx; the others take the lock themselves.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time

	// FailNextTx makes the next WithTx call fail with this error before fn runs.
	FailNextTx error
}

func NewStore() *Store {
	return &Store{
		st: &state{
			slots:        map[uuid.UUID]domain.Slot{},
			appointments: map[uuid.UUID]domain.Appointment{},
			apptSlots:    map[uuid.UUID][]uuid.UUID{},
			bookings:     map[uuid.UUID]domain.Booking{},
			payments:     map[uuid.UUID]domain.Payment{},
		},
		now: time.Now,
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.FailNextTx; err != nil {
		s.FailNextTx = nil
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.st.clone()
	if err := fn(nil); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) InsertSlots(_ context.Context, _ pgx.Tx, slots []domain.Slot) (int, error) {
	created := 0
	for _, sl := range slots {
		if s.slotAt(sl.SalonID, sl.StartTime) {
			continue
		}
		s.st.slots[sl.ID] = sl
		created++
	}
	return created, nil
}

func (s *Store) slotAt(salonID uuid.UUID, start time.Time) bool {
	for _, sl := range s.st.slots {
		if sl.SalonID == salonID && sl.StartTime.Equal(start) {
			return true
		}
	}
	return false
}

func (s *Store) NextAvailableSlots(_ context.Context, _ pgx.Tx, salonID uuid.UUID, from time.Time, limit int) ([]domain.Slot, error) {
	run := s.filterSlots(func(sl domain.Slot) bool {
		return sl.SalonID == salonID && sl.IsAvailable && !sl.StartTime.Before(from)
	})
	if len(run) > limit {
		run = run[:limit]
	}
	return run, nil
}

func (s *Store) ClaimSlots(_ context.Context, _ pgx.Tx, ids []uuid.UUID) (int64, error) {
	var claimed int64
	for _, id := range ids {
		sl, ok := s.st.slots[id]
		if !ok || !sl.IsAvailable {
			continue
		}
		sl.IsAvailable = false
		s.st.slots[id] = sl
		claimed++
	}
	return claimed, nil
}

func (s *Store) ReleaseSlots(_ context.Context, _ pgx.Tx, ids []uuid.UUID) error {
	for _, id := range ids {
		if sl, ok := s.st.slots[id]; ok {
			sl.IsAvailable = true
			s.st.slots[id] = sl
		}
	}
	return nil
}

func (s *Store) ListAvailableSlots(_ context.Context, salonID uuid.UUID, from, to time.Time) ([]domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterSlots(func(sl domain.Slot) bool {
		return sl.SalonID == salonID && sl.IsAvailable && !sl.StartTime.Before(from) && sl.StartTime.Before(to)
	}), nil
}

func (s *Store) filterSlots(keep func(domain.Slot) bool) []domain.Slot {
	var out []domain.Slot
	for _, sl := range s.st.slots {
		if keep(sl) {
			out = append(out, sl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (s *Store) InsertAppointment(_ context.Context, _ pgx.Tx, appt domain.Appointment, slotIDs []uuid.UUID) error {
	s.st.appointments[appt.ID] = appt
	s.st.apptSlots[appt.ID] = append([]uuid.UUID(nil), slotIDs...)
	return nil
}

func (s *Store) MoveAppointment(_ context.Context, _ pgx.Tx, appointmentID uuid.UUID, run []domain.Slot) error {
	appt, ok := s.st.appointments[appointmentID]
	if !ok {
		return domain.ErrNotFound
	}
	first, last := run[0], run[len(run)-1]
	appt.Date = first.Date
	appt.StartTime = first.StartTime
	appt.EndTime = last.EndTime
	appt.RepresentativeSlotID = first.ID
	s.st.appointments[appointmentID] = appt
	s.st.apptSlots[appointmentID] = domain.SlotIDs(run)
	return nil
}

func (s *Store) UpdateAppointmentStatus(_ context.Context, _ pgx.Tx, appointmentID uuid.UUID, status domain.AppointmentStatus) error {
	appt, ok := s.st.appointments[appointmentID]
	if !ok {
		return domain.ErrNotFound
	}
	appt.Status = status
	s.st.appointments[appointmentID] = appt
	return nil
}

func (s *Store) InsertBooking(_ context.Context, _ pgx.Tx, b domain.Booking) error {
	for _, existing := range s.st.bookings {
		if existing.BookingNumber == b.BookingNumber {
			return domain.ErrConflict
		}
	}
	b.StartTime, b.EndTime, b.ClaimedSlotIDs = time.Time{}, time.Time{}, nil
	s.st.bookings[b.ID] = b
	return nil
}

func (s *Store) GetBooking(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.booking(id)
}

func (s *Store) GetBookingForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Booking, error) {
	return s.booking(id)
}

func (s *Store) booking(id uuid.UUID) (*domain.Booking, error) {
	b, ok := s.st.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	appt := s.st.appointments[b.AppointmentID]
	b.StartTime = appt.StartTime
	b.EndTime = appt.EndTime
	b.ClaimedSlotIDs = append([]uuid.UUID(nil), s.st.apptSlots[b.AppointmentID]...)
	return &b, nil
}

func (s *Store) UpdateBookingStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status domain.BookingStatus) error {
	b, ok := s.st.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	b.Status = status
	s.st.bookings[id] = b
	return nil
}

func (s *Store) UpdateBookingSlot(_ context.Context, _ pgx.Tx, id, slotID uuid.UUID) error {
	b, ok := s.st.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	b.SlotID = slotID
	s.st.bookings[id] = b
	return nil
}

func (s *Store) ListExpiredPendingBookings(_ context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []domain.Booking
	for _, b := range s.st.bookings {
		if b.Status == domain.BookingPendingPayment && !b.CreatedAt.After(cutoff) {
			pending = append(pending, b)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	var ids []uuid.UUID
	for i := 0; i < len(pending) && i < limit; i++ {
		ids = append(ids, pending[i].ID)
	}
	return ids, nil
}

func (s *Store) ListBookingsForSalons(_ context.Context, salonIDs []uuid.UUID, from, to time.Time) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(salonIDs))
	for _, id := range salonIDs {
		want[id] = true
	}
	var out []domain.Booking
	for id, b := range s.st.bookings {
		if !want[b.SalonID] {
			continue
		}
		full, _ := s.booking(id)
		if full.StartTime.Before(from) || !full.StartTime.Before(to) {
			continue
		}
		out = append(out, *full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// Appointment returns the stored appointment, for assertions.
func (s *Store) Appointment(id uuid.UUID) (domain.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.st.appointments[id]
	return appt, ok
}
