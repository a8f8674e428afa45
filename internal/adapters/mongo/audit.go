package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/salon-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
	now    func() time.Time
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
		now:    time.Now,
	}
}

type AuditEntry struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	ActorID   string    `bson:"actor_id,omitempty"`
	BookingID string    `bson:"booking_id,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

// LogEvent appends an entry to the audit trail. A nil actor means the system
// acted on its own, e.g. the payment timeout sweep.
func (a *AuditLogger) LogEvent(ctx context.Context, action string, actorID uuid.UUID, data map[string]interface{}) error {
	entry := AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Timestamp: a.now().UTC(),
		Data:      bson.M(data),
	}
	if actorID != uuid.Nil {
		entry.ActorID = actorID.String()
	}
	if id, ok := data["booking_id"].(string); ok {
		entry.BookingID = id
	}
	if _, err := a.coll.InsertOne(ctx, entry); err != nil {
		a.logger.WithField("action", action).WithError(err).Error("failed to insert audit log")
		return errors.Wrap(err, "insert audit log")
	}
	return nil
}

// BookingTrail returns the audit entries recorded for one booking, oldest first.
func (a *AuditLogger) BookingTrail(ctx context.Context, bookingID uuid.UUID) ([]AuditEntry, error) {
	cur, err := a.coll.Find(ctx, bson.M{"booking_id": bookingID.String()},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "find audit trail")
	}
	var entries []AuditEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, errors.Wrap(err, "decode audit trail")
	}
	return entries, nil
}

func (a *AuditLogger) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	return errors.Wrap(err, "create audit index")
}
