package booking_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/adapters/memory"
	"github.com/robertarktes/salon-reservations/internal/booking"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contendedStore reports one slot short on the next lose claims, as if a
// concurrent transaction took it between the read and the conditional update.
// A negative lose loses every claim.
type contendedStore struct {
	*memory.Store

	mu     sync.Mutex
	lose   int
	claims int
}

func (s *contendedStore) ClaimSlots(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) (int64, error) {
	n, err := s.Store.ClaimSlots(ctx, tx, ids)
	if err != nil {
		return n, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	if s.lose == 0 {
		return n, nil
	}
	if s.lose > 0 {
		s.lose--
	}
	return n - 1, nil
}

func (s *contendedStore) setLose(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lose = n
	s.claims = 0
}

func (s *contendedStore) claimCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims
}

func newContendedHarness(t *testing.T) (*harness, *contendedStore) {
	var cs *contendedStore
	h := newHarnessOn(t, closesAt, func(st *memory.Store) booking.Store {
		cs = &contendedStore{Store: st}
		return cs
	})
	return h, cs
}

func TestCreateBooking_RetriesLostClaim(t *testing.T) {
	h, cs := newContendedHarness(t)
	o := h.offering(800, 120)
	cs.setLose(1)

	res := h.book(o, 9, domain.PaymentCash)

	assert.Equal(t, domain.BookingConfirmed, res.Booking.Status)
	assert.Equal(t, 2, cs.claimCount())
	assert.Equal(t, hoursOf(11, 17), h.freeStarts())
}

func TestCreateBooking_LostClaimExhaustsAttempts(t *testing.T) {
	h, cs := newContendedHarness(t)
	o := h.offering(800, 120)
	cs.setLose(-1)

	_, err := h.service.CreateBooking(context.Background(), h.request(o, 9, domain.PaymentPush))

	requireIs(t, err, domain.ErrInsufficientSlots)
	assert.Equal(t, h.settings.TxAttempts, cs.claimCount())
	assert.Equal(t, hoursOf(9, 17), h.freeStarts())
	assert.Empty(t, h.gateway.Calls())
	bookings, err := h.store.ListBookingsForSalons(context.Background(), []uuid.UUID{h.salon.ID}, h.day, h.at(24))
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestRescheduleBooking_LostClaimKeepsOriginalRun(t *testing.T) {
	h, cs := newContendedHarness(t)
	o := h.offering(800, 120)
	res := h.book(o, 9, domain.PaymentCash)
	cs.setLose(-1)

	_, err := h.service.RescheduleBooking(context.Background(), res.Booking.ID, h.at(13), h.ownerActor())

	requireIs(t, err, domain.ErrNoSlotAtTime)
	assert.Equal(t, h.settings.TxAttempts, cs.claimCount())
	b := h.booking(res.Booking.ID)
	assert.True(t, b.StartTime.Equal(h.at(9)))
	assert.ElementsMatch(t, res.Booking.ClaimedSlotIDs, b.ClaimedSlotIDs)
	assert.Equal(t, hoursOf(11, 17), h.freeStarts())
	assert.Empty(t, h.events(domain.EventBookingRescheduled))
}
