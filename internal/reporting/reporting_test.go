package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/adapters/memory"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	catalog *memory.Catalog
	reports *Reports
	owner   uuid.UUID
	alpha   domain.Salon
	bravo   domain.Salon
	other   domain.Salon
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{store: memory.NewStore(), catalog: memory.NewCatalog(), owner: uuid.New()}
	f.alpha = domain.Salon{ID: uuid.New(), OwnerID: f.owner, Name: "Alpha Braids"}
	f.bravo = domain.Salon{ID: uuid.New(), OwnerID: f.owner, Name: "Bravo Barbers"}
	f.other = domain.Salon{ID: uuid.New(), OwnerID: uuid.New(), Name: "Elsewhere"}
	for _, s := range []domain.Salon{f.bravo, f.alpha, f.other} {
		f.catalog.AddSalon(s)
		slots, err := domain.DaySlots(s.ID, day, 8*time.Hour, 12*time.Hour, time.Hour)
		require.NoError(t, err)
		require.NoError(t, f.store.WithTx(context.Background(), func(tx pgx.Tx) error {
			_, err := f.store.InsertSlots(context.Background(), tx, slots)
			return err
		}))
	}
	f.reports = New(f.store, f.store, f.catalog)
	f.reports.now = func() time.Time { return day.Add(9*time.Hour + 30*time.Minute) }
	return f
}

func (f *fixture) book(t *testing.T, salon domain.Salon, hour int, status domain.BookingStatus, total, fee int64) domain.Booking {
	t.Helper()
	ctx := context.Background()
	start := day.Add(time.Duration(hour) * time.Hour)
	free, err := f.store.ListAvailableSlots(ctx, salon.ID, start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, free, 1)

	appt := domain.Appointment{
		ID:                   uuid.New(),
		SalonID:              salon.ID,
		Date:                 day,
		StartTime:            free[0].StartTime,
		EndTime:              free[0].EndTime,
		RepresentativeSlotID: free[0].ID,
		Status:               domain.AppointmentScheduled,
	}
	b := domain.Booking{
		ID:             uuid.New(),
		BookingNumber:  domain.NewBookingNumber(day),
		ClientID:       uuid.New(),
		SalonID:        salon.ID,
		AppointmentID:  appt.ID,
		SlotID:         free[0].ID,
		PaymentMethod:  domain.PaymentCash,
		TotalAmount:    total,
		TransactionFee: fee,
		Status:         status,
		CreatedAt:      day,
	}
	require.NoError(t, f.store.WithTx(ctx, func(tx pgx.Tx) error {
		if status != domain.BookingCancelled {
			if _, err := f.store.ClaimSlots(ctx, tx, []uuid.UUID{free[0].ID}); err != nil {
				return err
			}
		}
		if err := f.store.InsertAppointment(ctx, tx, appt, []uuid.UUID{free[0].ID}); err != nil {
			return err
		}
		return f.store.InsertBooking(ctx, tx, b)
	}))
	return b
}

func TestListBookingsForOwner(t *testing.T) {
	f := newFixture(t)
	done := f.book(t, f.bravo, 8, domain.BookingConfirmed, 1020, 20)
	upcoming := f.book(t, f.alpha, 10, domain.BookingPendingPayment, 510, 10)
	f.book(t, f.other, 9, domain.BookingConfirmed, 816, 16)

	bookings, err := f.reports.ListBookingsForOwner(context.Background(), f.owner, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, done.ID, bookings[0].ID)
	assert.Equal(t, domain.BookingCompleted, bookings[0].Status)
	assert.Equal(t, upcoming.ID, bookings[1].ID)
	assert.Equal(t, domain.BookingPendingPayment, bookings[1].Status)

	none, err := f.reports.ListBookingsForOwner(context.Background(), uuid.New(), day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = f.reports.ListBookingsForOwner(context.Background(), f.owner, day, day.Add(-time.Hour))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestOwnerSummary(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.bravo, 8, domain.BookingConfirmed, 1020, 20)
	f.book(t, f.alpha, 9, domain.BookingConfirmed, 816, 16)
	f.book(t, f.alpha, 10, domain.BookingPendingPayment, 510, 10)
	f.book(t, f.alpha, 11, domain.BookingCancelled, 306, 6)
	f.book(t, f.other, 9, domain.BookingConfirmed, 816, 16)

	sum, err := f.reports.OwnerSummary(context.Background(), f.owner, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, sum.Salons, 2)

	alpha, bravo := sum.Salons[0], sum.Salons[1]
	assert.Equal(t, "Alpha Braids", alpha.SalonName)
	assert.Equal(t, map[domain.BookingStatus]int{
		domain.BookingConfirmed:      1,
		domain.BookingPendingPayment: 1,
		domain.BookingCancelled:      1,
	}, alpha.ByStatus)
	assert.EqualValues(t, 800, alpha.Revenue)
	assert.Equal(t, 2, alpha.OpenSlots)

	assert.Equal(t, "Bravo Barbers", bravo.SalonName)
	assert.Equal(t, 1, bravo.ByStatus[domain.BookingCompleted])
	assert.EqualValues(t, 1000, bravo.Revenue)
	assert.Equal(t, 3, bravo.OpenSlots)

	assert.EqualValues(t, 1800, sum.Total.Revenue)
	assert.Equal(t, 5, sum.Total.OpenSlots)
	assert.Equal(t, 1, sum.Total.ByStatus[domain.BookingCompleted])
	assert.Equal(t, 1, sum.Total.ByStatus[domain.BookingConfirmed])
}

type failingSlots struct{}

func (failingSlots) ListAvailableSlots(context.Context, uuid.UUID, time.Time, time.Time) ([]domain.Slot, error) {
	return nil, errors.New("slot store unavailable")
}

func TestOwnerSummary_PropagatesFailure(t *testing.T) {
	f := newFixture(t)
	r := New(f.store, failingSlots{}, f.catalog)

	_, err := r.OwnerSummary(context.Background(), f.owner, day, day.Add(24*time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slot store unavailable")
}
