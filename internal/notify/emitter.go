package notify

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
)

const AggregateBooking = "booking"

type OutboxWriter interface {
	InsertOutbox(ctx context.Context, tx pgx.Tx, rec domain.OutboxRecord) error
}

// OutboxEmitter writes events to the outbox inside the caller's transaction.
// The event id is the dedupe key, so writing the same event twice is a no-op.
type OutboxEmitter struct {
	outbox OutboxWriter
}

func NewOutboxEmitter(outbox OutboxWriter) *OutboxEmitter {
	return &OutboxEmitter{outbox: outbox}
}

func (e *OutboxEmitter) Notify(ctx context.Context, tx pgx.Tx, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	return e.outbox.InsertOutbox(ctx, tx, domain.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: AggregateBooking,
		AggregateID:   ev.BookingID,
		EventType:     string(ev.Type),
		Payload:       payload,
		CreatedAt:     ev.OccurredAt,
		Status:        "NEW",
		DedupeKey:     ev.ID.String(),
	})
}
