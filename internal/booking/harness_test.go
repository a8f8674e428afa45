package booking_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/salon-reservations/internal/adapters/memory"
	"github.com/robertarktes/salon-reservations/internal/booking"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/notify"
	"github.com/robertarktes/salon-reservations/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []domain.PushRequest
	err   error
	// onPush runs before the push is answered and may fail it.
	onPush func(ctx context.Context, req domain.PushRequest) error
}

func (g *fakeGateway) InitiatePush(ctx context.Context, req domain.PushRequest) (*domain.PushReceipt, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	n, err, onPush := len(g.calls), g.err, g.onPush
	g.mu.Unlock()

	if onPush != nil {
		if err := onPush(ctx, req); err != nil {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}
	return &domain.PushReceipt{
		CheckoutRef:     fmt.Sprintf("ws_CO_%03d", n),
		MerchantRef:     fmt.Sprintf("29115-%03d", n),
		CustomerMessage: "Success. Request accepted for processing",
	}, nil
}

func (g *fakeGateway) Calls() []domain.PushRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.PushRequest(nil), g.calls...)
}

type fakeAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *fakeAudit) LogEvent(_ context.Context, action string, _ uuid.UUID, _ map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return nil
}

var (
	opensAt  = 9 * time.Hour
	closesAt = 17 * time.Hour
)

type harness struct {
	t         *testing.T
	clock     *clock
	store     *memory.Store
	catalog   *memory.Catalog
	gateway   *fakeGateway
	audit     *fakeAudit
	service   *booking.Service
	payments  *booking.Orchestrator
	directory *booking.Directory
	settings  booking.Settings
	logger    observability.Logger

	owner  uuid.UUID
	client uuid.UUID
	salon  domain.Salon
	day    time.Time
}

// newHarness opens a salon with one-hour slots from 09:00 until closes on the
// day after the clock's current date.
func newHarness(t *testing.T, closes time.Duration) *harness {
	t.Helper()
	return newHarnessOn(t, closes, nil)
}

// newHarnessOn is newHarness with the services running on wrap(store).
func newHarnessOn(t *testing.T, closes time.Duration, wrap func(*memory.Store) booking.Store) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		clock:   &clock{now: time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)},
		store:   memory.NewStore(),
		catalog: memory.NewCatalog(),
		gateway: &fakeGateway{},
		audit:   &fakeAudit{},
		logger:  observability.NewLoggerWithOutput(io.Discard),
		owner:   uuid.New(),
		client:  uuid.New(),
	}
	h.settings = booking.Settings{
		SlotWidth:      time.Hour,
		FeeRate:        decimal.RequireFromString("0.02"),
		PaymentTimeout: 15 * time.Minute,
		PollAttempts:   3,
		PollInterval:   time.Millisecond,
		TxAttempts:     3,
		TxBackoff:      time.Millisecond,
		Location:       time.UTC,
		Clock:          h.clock.Now,
	}
	var store booking.Store = h.store
	if wrap != nil {
		store = wrap(h.store)
	}
	emitter := notify.NewOutboxEmitter(h.store)
	h.payments = booking.NewOrchestrator(store, h.catalog, h.gateway, emitter, h.settings, h.logger)
	h.service = booking.NewService(store, h.catalog, h.payments, emitter, h.audit, h.settings, h.logger)
	h.directory = booking.NewDirectory(store, h.catalog, h.audit, h.settings, h.logger)

	h.salon = domain.Salon{ID: uuid.New(), OwnerID: h.owner, Name: "Kilimani Cuts"}
	h.catalog.AddSalon(h.salon)
	h.day = time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	created, err := h.directory.GenerateDay(context.Background(), h.ownerActor(), h.salon.ID, h.day, opensAt, closes)
	require.NoError(t, err)
	require.Equal(t, int((closes-opensAt)/time.Hour), created)
	return h
}

func (h *harness) offering(price int64, minutes int) domain.ServiceOffering {
	o := domain.ServiceOffering{
		ID:              uuid.New(),
		SalonID:         h.salon.ID,
		BaseServiceID:   uuid.New(),
		Name:            fmt.Sprintf("service %d min", minutes),
		Price:           price,
		DurationMinutes: minutes,
	}
	h.catalog.AddOffering(o)
	return o
}

func (h *harness) at(hour int) time.Time {
	return h.day.Add(time.Duration(hour) * time.Hour)
}

func (h *harness) clientActor() domain.Actor {
	return domain.Actor{ID: h.client, Role: domain.RoleClient}
}

func (h *harness) ownerActor() domain.Actor {
	return domain.Actor{ID: h.owner, Role: domain.RoleOwner}
}

func (h *harness) request(o domain.ServiceOffering, hour int, method domain.PaymentMethod) booking.CreateRequest {
	return booking.CreateRequest{
		ClientID:          h.client,
		SalonID:           h.salon.ID,
		ServiceOfferingID: o.ID,
		DesiredStart:      h.at(hour),
		PaymentMethod:     method,
		PhoneNumber:       "0712345678",
	}
}

func (h *harness) book(o domain.ServiceOffering, hour int, method domain.PaymentMethod) *booking.Reservation {
	h.t.Helper()
	res, err := h.service.CreateBooking(context.Background(), h.request(o, hour, method))
	require.NoError(h.t, err)
	return res
}

func (h *harness) freeSlots() []domain.Slot {
	h.t.Helper()
	slots, err := h.directory.ListAvailable(context.Background(), h.salon.ID, h.day, h.day.Add(24*time.Hour))
	require.NoError(h.t, err)
	return slots
}

func (h *harness) freeStarts() []int {
	var hours []int
	for _, s := range h.freeSlots() {
		hours = append(hours, s.StartTime.Hour())
	}
	return hours
}

func (h *harness) booking(id uuid.UUID) *domain.Booking {
	h.t.Helper()
	b, err := h.store.GetBooking(context.Background(), id)
	require.NoError(h.t, err)
	return b
}

func (h *harness) payment(bookingID uuid.UUID) *domain.Payment {
	h.t.Helper()
	p, err := h.store.GetPaymentByBooking(context.Background(), bookingID)
	require.NoError(h.t, err)
	return p
}

func (h *harness) events(t domain.EventType) []domain.Event {
	h.t.Helper()
	var out []domain.Event
	for _, rec := range h.store.Outbox() {
		if rec.EventType != string(t) {
			continue
		}
		var ev domain.Event
		require.NoError(h.t, json.Unmarshal(rec.Payload, &ev))
		out = append(out, ev)
	}
	return out
}

func hoursOf(from, to int) []int {
	var out []int
	for h := from; h < to; h++ {
		out = append(out, h)
	}
	return out
}

// assertIs matches marked errors as well as wrapped ones.
func assertIs(t *testing.T, err, target error, msgAndArgs ...interface{}) bool {
	t.Helper()
	if errors.Is(err, target) {
		return true
	}
	return assert.Fail(t, fmt.Sprintf("want %v, got %v", target, err), msgAndArgs...)
}

func requireIs(t *testing.T, err, target error) {
	t.Helper()
	if !assertIs(t, err, target) {
		t.FailNow()
	}
}
