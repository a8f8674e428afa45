package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/observability"
)

type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]domain.OutboxRecord, error)
	MarkPublished(ctx context.Context, tx pgx.Tx, id uuid.UUID, publishedAt time.Time) error
}

type Publisher interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// Relay moves committed outbox records to the message broker. Delivery is at
// least once; consumers dedupe on the message id.
type Relay struct {
	store     Store
	publisher Publisher
	batchSize int
	logger    observability.Logger
	now       func() time.Time
}

func NewRelay(store Store, publisher Publisher, logger observability.Logger) *Relay {
	return &Relay{store: store, publisher: publisher, batchSize: 50, logger: logger, now: time.Now}
}

func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	r.logger.Info("Outbox relay started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil {
				r.logger.WithError(err).Error("outbox relay failed")
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many records were published.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.store.WithTx(ctx, func(tx pgx.Tx) error {
		published = 0
		records, err := r.store.FetchUnpublished(ctx, tx, r.batchSize)
		if err != nil {
			return err
		}
		for _, rec := range records {
			msg := amqp.Publishing{
				MessageId:    rec.DedupeKey,
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    rec.CreatedAt,
				Type:         rec.EventType,
				Body:         rec.Payload,
			}
			if err := r.publisher.Publish(ctx, rec.EventType, msg); err != nil {
				observability.OutboxPublishFailures.Inc()
				r.logger.WithField("outbox_id", rec.ID).WithError(err).Warn("publish outbox record")
				continue
			}
			now := r.now()
			if err := r.store.MarkPublished(ctx, tx, rec.ID, now); err != nil {
				return err
			}
			observability.OutboxLag.Set(now.Sub(rec.CreatedAt).Seconds())
			published++
		}
		return nil
	})
	return published, err
}
