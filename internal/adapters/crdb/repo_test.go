package crdb_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/salon-reservations/internal/adapters/crdb"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() || os.Getenv("SKIP_CONTAINER_TESTS") != "" {
		os.Exit(m.Run())
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "cockroach container unavailable, repository tests skipped: %v\n", err)
		os.Exit(m.Run())
	}

	code := func() int {
		defer container.Terminate(ctx)

		host, err := container.Host(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		port, err := container.MappedPort(ctx, "26257/tcp")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		pool, err := pgxpool.New(ctx, fmt.Sprintf("postgresql://root@%s:%s/defaultdb?sslmode=disable", host, port.Port()))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer pool.Close()

		if err := crdb.NewRepository(pool).Migrate(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		testPool = pool
		return m.Run()
	}()
	os.Exit(code)
}

func newRepo(t *testing.T) *crdb.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("repository tests need a database container")
	}
	if testPool == nil {
		t.Skip("cockroach container not available")
	}
	return crdb.NewRepository(testPool)
}

func daySlots(t *testing.T, salonID uuid.UUID) []domain.Slot {
	t.Helper()
	day := time.Now().UTC().AddDate(0, 0, 7)
	slots, err := domain.DaySlots(salonID, day, 9*time.Hour, 13*time.Hour, time.Hour)
	require.NoError(t, err)
	require.Len(t, slots, 4)
	return slots
}

func insertSlots(t *testing.T, repo *crdb.Repository, slots []domain.Slot) {
	t.Helper()
	err := repo.WithTx(context.Background(), func(tx pgx.Tx) error {
		n, err := repo.InsertSlots(context.Background(), tx, slots)
		if err != nil {
			return err
		}
		if n != len(slots) {
			return errors.Newf("inserted %d of %d slots", n, len(slots))
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRepository_InsertSlotsSkipsExisting(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	salonID := uuid.New()
	slots := daySlots(t, salonID)
	insertSlots(t, repo, slots)

	again, err := domain.DaySlots(salonID, slots[0].Date, 9*time.Hour, 14*time.Hour, time.Hour)
	require.NoError(t, err)

	var created int
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		created, err = repo.InsertSlots(ctx, tx, again)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestRepository_ClaimSlotsIsConditional(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	slots := daySlots(t, uuid.New())
	insertSlots(t, repo, slots)

	var first, second int64
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		first, err = repo.ClaimSlots(ctx, tx, domain.SlotIDs(slots[:2]))
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, first)

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		second, err = repo.ClaimSlots(ctx, tx, domain.SlotIDs(slots[1:3]))
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, second)

	free, err := repo.ListAvailableSlots(ctx, slots[0].SalonID, slots[0].StartTime, slots[3].EndTime)
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.Equal(t, slots[3].ID, free[0].ID)

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.ReleaseSlots(ctx, tx, domain.SlotIDs(slots))
	})
	require.NoError(t, err)
	free, err = repo.ListAvailableSlots(ctx, slots[0].SalonID, slots[0].StartTime, slots[3].EndTime)
	require.NoError(t, err)
	assert.Len(t, free, 4)
}

func TestRepository_ConcurrentClaimOneWinner(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	slots := daySlots(t, uuid.New())
	insertSlots(t, repo, slots)
	target := []uuid.UUID{slots[0].ID}

	var wg sync.WaitGroup
	results := make([]int64, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.WithTx(ctx, func(tx pgx.Tx) error {
				n, err := repo.ClaimSlots(ctx, tx, target)
				results[i] = n
				return err
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range results {
		if errs[i] == nil && results[i] == 1 {
			winners++
		} else if errs[i] != nil {
			assert.True(t, errors.Is(errs[i], domain.ErrSerializationFailure), "%v", errs[i])
		}
	}
	assert.Equal(t, 1, winners)
}

type fixture struct {
	slots   []domain.Slot
	appt    domain.Appointment
	booking domain.Booking
	payment domain.Payment
}

func seedBooking(t *testing.T, repo *crdb.Repository, createdAt time.Time) fixture {
	t.Helper()
	ctx := context.Background()
	salonID := uuid.New()
	slots := daySlots(t, salonID)
	insertSlots(t, repo, slots)
	run := slots[1:3]

	f := fixture{slots: slots}
	f.appt = domain.Appointment{
		ID:                   uuid.New(),
		SalonID:              salonID,
		ServiceOfferingID:    uuid.New(),
		Date:                 run[0].Date,
		StartTime:            run[0].StartTime,
		EndTime:              run[1].EndTime,
		RepresentativeSlotID: run[0].ID,
		Status:               domain.AppointmentScheduled,
	}
	f.booking = domain.Booking{
		ID:                uuid.New(),
		BookingNumber:     domain.NewBookingNumber(createdAt),
		ClientID:          uuid.New(),
		SalonID:           salonID,
		ServiceOfferingID: f.appt.ServiceOfferingID,
		AppointmentID:     f.appt.ID,
		SlotID:            run[0].ID,
		PaymentMethod:     domain.PaymentPush,
		TotalAmount:       2550,
		TransactionFee:    50,
		Status:            domain.BookingPendingPayment,
		CreatedAt:         createdAt,
	}
	f.payment = domain.Payment{
		ID:          uuid.New(),
		BookingID:   f.booking.ID,
		Amount:      2550,
		Method:      domain.PaymentPush,
		Status:      domain.PaymentPending,
		PhoneNumber: "254712345678",
		CreatedAt:   createdAt,
	}

	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := repo.ClaimSlots(ctx, tx, domain.SlotIDs(run)); err != nil {
			return err
		}
		if err := repo.InsertAppointment(ctx, tx, f.appt, domain.SlotIDs(run)); err != nil {
			return err
		}
		if err := repo.InsertBooking(ctx, tx, f.booking); err != nil {
			return err
		}
		return repo.InsertPayment(ctx, tx, f.payment)
	})
	require.NoError(t, err)
	return f
}

func TestRepository_BookingCarriesClaimedRun(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	f := seedBooking(t, repo, time.Now().UTC())

	got, err := repo.GetBooking(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.slots[1].ID, f.slots[2].ID}, got.ClaimedSlotIDs)
	assert.True(t, got.StartTime.Equal(f.slots[1].StartTime))
	assert.True(t, got.EndTime.Equal(f.slots[2].EndTime))
	assert.Equal(t, domain.BookingPendingPayment, got.Status)

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		locked, err := repo.GetBookingForUpdate(ctx, tx, f.booking.ID)
		if err != nil {
			return err
		}
		if err := repo.ReleaseSlots(ctx, tx, locked.ClaimedSlotIDs); err != nil {
			return err
		}
		if _, err := repo.ClaimSlots(ctx, tx, []uuid.UUID{f.slots[3].ID}); err != nil {
			return err
		}
		if err := repo.MoveAppointment(ctx, tx, f.appt.ID, f.slots[3:4]); err != nil {
			return err
		}
		return repo.UpdateBookingSlot(ctx, tx, f.booking.ID, f.slots[3].ID)
	})
	require.NoError(t, err)

	moved, err := repo.GetBooking(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.slots[3].ID}, moved.ClaimedSlotIDs)
	assert.Equal(t, f.slots[3].ID, moved.SlotID)
	assert.True(t, moved.StartTime.Equal(f.slots[3].StartTime))

	_, err = repo.GetBooking(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestRepository_PaymentTransitionsOnlyFromPending(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	f := seedBooking(t, repo, time.Now().UTC())
	checkout := "ws_CO_" + uuid.NewString()

	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.SetPaymentCheckoutRefs(ctx, tx, f.payment.ID, checkout, "29115-34620561-1")
	})
	require.NoError(t, err)

	byRef, err := repo.GetPaymentByCheckoutRef(ctx, checkout)
	require.NoError(t, err)
	assert.Equal(t, f.payment.ID, byRef.ID)
	assert.Equal(t, "29115-34620561-1", byRef.ExternalMerchantRef)

	completedAt := time.Date(2026, 10, 16, 10, 21, 15, 0, time.UTC)
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.CompletePayment(ctx, tx, f.payment.ID, "NLJ7RT61SV", completedAt)
	})
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.FailPayment(ctx, tx, f.payment.ID, "late failure")
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	p, err := repo.GetPaymentByBooking(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, p.Status)
	assert.Equal(t, "NLJ7RT61SV", p.ExternalReceiptRef)
	require.NotNil(t, p.CompletedAt)
	assert.True(t, p.CompletedAt.Equal(completedAt))

	_, err = repo.GetPaymentByCheckoutRef(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestRepository_ListExpiredPendingBookings(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	old := seedBooking(t, repo, time.Now().UTC().Add(-time.Hour))
	fresh := seedBooking(t, repo, time.Now().UTC())

	ids, err := repo.ListExpiredPendingBookings(ctx, time.Now().UTC().Add(-15*time.Minute), 1000)
	require.NoError(t, err)
	assert.Contains(t, ids, old.booking.ID)
	assert.NotContains(t, ids, fresh.booking.ID)
}

func TestRepository_OutboxDedupeAndPublish(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	key := uuid.NewString()
	rec := domain.OutboxRecord{
		AggregateType: "booking",
		AggregateID:   uuid.New(),
		EventType:     string(domain.EventBookingConfirmed),
		Payload:       []byte(`{"id":"` + key + `"}`),
		DedupeKey:     key,
	}

	for i := 0; i < 2; i++ {
		rec.ID = uuid.New()
		err := repo.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.InsertOutbox(ctx, tx, rec)
		})
		require.NoError(t, err)
	}

	var pending []domain.OutboxRecord
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		pending, err = repo.FetchUnpublished(ctx, tx, 1000)
		if err != nil {
			return err
		}
		for _, p := range pending {
			if p.DedupeKey == key {
				if err := repo.MarkPublished(ctx, tx, p.ID, time.Now()); err != nil {
					return err
				}
			}
		}
		return nil
	})
	require.NoError(t, err)

	matches := 0
	for _, p := range pending {
		if p.DedupeKey == key {
			matches++
		}
	}
	assert.Equal(t, 1, matches)

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		pending, err = repo.FetchUnpublished(ctx, tx, 1000)
		return err
	})
	require.NoError(t, err)
	for _, p := range pending {
		assert.NotEqual(t, key, p.DedupeKey)
	}
}
