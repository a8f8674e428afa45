package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/adapters/memory"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/notify"
	"github.com/robertarktes/salon-reservations/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDeliverer struct {
	mu   sync.Mutex
	msgs []notify.Message
	fail error
}

func (d *recordingDeliverer) Deliver(_ context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.msgs = append(d.msgs, msg)
	return nil
}

var nairobi = time.FixedZone("EAT", 3*60*60)

func sampleEvent(t domain.EventType) domain.Event {
	b := &domain.Booking{
		ID:            uuid.New(),
		BookingNumber: "BK261016Q7ZK",
		ClientID:      uuid.New(),
		SalonID:       uuid.New(),
		StartTime:     time.Date(2026, 10, 17, 7, 0, 0, 0, time.UTC),
	}
	return domain.NewBookingEvent(t, b, uuid.New(), time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC))
}

func newDispatcher(d notify.Deliverer, dedupe notify.Deduper) *notify.Dispatcher {
	return notify.NewDispatcher(d, dedupe, nairobi, observability.NewLoggerWithOutput(io.Discard))
}

func TestOutboxEmitter_WritesEventOnce(t *testing.T) {
	store := memory.NewStore()
	emitter := notify.NewOutboxEmitter(store)
	ev := sampleEvent(domain.EventBookingConfirmed)

	for i := 0; i < 2; i++ {
		err := store.WithTx(context.Background(), func(tx pgx.Tx) error {
			return emitter.Notify(context.Background(), tx, ev)
		})
		require.NoError(t, err)
	}

	records := store.Outbox()
	require.Len(t, records, 1)
	assert.Equal(t, notify.AggregateBooking, records[0].AggregateType)
	assert.Equal(t, ev.BookingID, records[0].AggregateID)
	assert.Equal(t, "booking.confirmed", records[0].EventType)
	assert.Equal(t, ev.ID.String(), records[0].DedupeKey)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(records[0].Payload, &decoded))
	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, ev.Recipients, decoded.Recipients)
}

func TestOutboxEmitter_RolledBackWithTx(t *testing.T) {
	store := memory.NewStore()
	emitter := notify.NewOutboxEmitter(store)

	err := store.WithTx(context.Background(), func(tx pgx.Tx) error {
		if err := emitter.Notify(context.Background(), tx, sampleEvent(domain.EventBookingCancelled)); err != nil {
			return err
		}
		return errors.New("booking update failed")
	})
	require.Error(t, err)
	assert.Empty(t, store.Outbox())
}

func TestDispatcher_RendersPerRecipient(t *testing.T) {
	tests := []struct {
		name    string
		event   func() domain.Event
		subject string
		body    string
	}{
		{
			name:    "confirmed",
			event:   func() domain.Event { return sampleEvent(domain.EventBookingConfirmed) },
			subject: "Booking confirmed",
			body:    "Booking BK261016Q7ZK is confirmed for Sat 17 Oct 2026 10:00.",
		},
		{
			name: "cancelled with reason",
			event: func() domain.Event {
				ev := sampleEvent(domain.EventBookingCancelled)
				ev.Reason = "payment timeout"
				return ev
			},
			subject: "Booking cancelled",
			body:    "Booking BK261016Q7ZK for Sat 17 Oct 2026 10:00 has been cancelled. Reason: payment timeout.",
		},
		{
			name: "rescheduled",
			event: func() domain.Event {
				ev := sampleEvent(domain.EventBookingRescheduled)
				prev := time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)
				ev.PreviousStartTime = &prev
				return ev
			},
			subject: "Booking rescheduled",
			body:    "Booking BK261016Q7ZK has moved from Sat 17 Oct 2026 09:00 to Sat 17 Oct 2026 10:00.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDeliverer{}
			ev := tt.event()
			body, err := json.Marshal(ev)
			require.NoError(t, err)

			require.NoError(t, newDispatcher(d, nil).Handle(context.Background(), body))

			require.Len(t, d.msgs, 2)
			for i, msg := range d.msgs {
				assert.Equal(t, ev.Recipients[i], msg.Recipient)
				assert.Equal(t, tt.subject, msg.Subject)
				assert.Equal(t, tt.body, msg.Body)
				assert.Equal(t, ev.ID, msg.EventID)
			}
		})
	}
}

func TestDispatcher_SkipsRedelivery(t *testing.T) {
	d := &recordingDeliverer{}
	dispatcher := newDispatcher(d, memory.NewCache())
	body, err := json.Marshal(sampleEvent(domain.EventBookingConfirmed))
	require.NoError(t, err)

	require.NoError(t, dispatcher.Handle(context.Background(), body))
	require.NoError(t, dispatcher.Handle(context.Background(), body))

	assert.Len(t, d.msgs, 2)
}

func TestDispatcher_FailedDeliveryCanBeRetried(t *testing.T) {
	d := &recordingDeliverer{fail: errors.New("smtp down")}
	dispatcher := newDispatcher(d, memory.NewCache())
	body, err := json.Marshal(sampleEvent(domain.EventBookingCancelled))
	require.NoError(t, err)

	require.Error(t, dispatcher.Handle(context.Background(), body))

	d.fail = nil
	require.NoError(t, dispatcher.Handle(context.Background(), body))
	assert.Len(t, d.msgs, 2)
}

func TestDispatcher_RejectsMalformedEvents(t *testing.T) {
	dispatcher := newDispatcher(&recordingDeliverer{}, nil)

	err := dispatcher.Handle(context.Background(), []byte("{not json"))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	ev := sampleEvent("booking.reviewed")
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	err = dispatcher.Handle(context.Background(), body)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
