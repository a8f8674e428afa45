package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository is the read side of salon and service management. Each
// salon document embeds the services it offers.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("salons"),
		logger: logger,
	}
}

type SalonDoc struct {
	ID        string       `bson:"_id"`
	OwnerID   string       `bson:"owner_id"`
	Name      string       `bson:"name"`
	Services  []ServiceDoc `bson:"services"`
	CreatedAt time.Time    `bson:"created_at"`
	UpdatedAt time.Time    `bson:"updated_at"`
}

type ServiceDoc struct {
	ID              string `bson:"id"`
	BaseServiceID   string `bson:"base_service_id"`
	Name            string `bson:"name"`
	Price           int64  `bson:"price"`
	DurationMinutes int    `bson:"duration_minutes"`
}

func (d SalonDoc) toDomain() (*domain.Salon, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "salon id %q", d.ID)
	}
	owner, err := uuid.Parse(d.OwnerID)
	if err != nil {
		return nil, errors.Wrapf(err, "owner id %q", d.OwnerID)
	}
	return &domain.Salon{ID: id, OwnerID: owner, Name: d.Name}, nil
}

func (d ServiceDoc) toDomain(salonID uuid.UUID) (*domain.ServiceOffering, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "service id %q", d.ID)
	}
	base, _ := uuid.Parse(d.BaseServiceID)
	return &domain.ServiceOffering{
		ID:              id,
		SalonID:         salonID,
		BaseServiceID:   base,
		Name:            d.Name,
		Price:           d.Price,
		DurationMinutes: d.DurationMinutes,
	}, nil
}

func (c *CatalogRepository) GetSalon(ctx context.Context, id uuid.UUID) (*domain.Salon, error) {
	var doc SalonDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id.String()},
		options.FindOne().SetProjection(bson.M{"services": 0})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrSalonNotFound
	}
	if err != nil {
		c.logger.WithField("salon_id", id).WithError(err).Error("failed to get salon")
		return nil, errors.Wrap(err, "get salon")
	}
	return doc.toDomain()
}

func (c *CatalogRepository) GetServiceOffering(ctx context.Context, id uuid.UUID) (*domain.ServiceOffering, error) {
	var doc SalonDoc
	err := c.coll.FindOne(ctx, bson.M{"services.id": id.String()},
		options.FindOne().SetProjection(bson.M{"owner_id": 1, "services.$": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) || (err == nil && len(doc.Services) == 0) {
		return nil, domain.ErrServiceNotFound
	}
	if err != nil {
		c.logger.WithField("service_id", id).WithError(err).Error("failed to get service offering")
		return nil, errors.Wrap(err, "get service offering")
	}
	salonID, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "salon id %q", doc.ID)
	}
	return doc.Services[0].toDomain(salonID)
}

func (c *CatalogRepository) SalonsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Salon, error) {
	cur, err := c.coll.Find(ctx, bson.M{"owner_id": ownerID.String()},
		options.Find().SetProjection(bson.M{"services": 0}).SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "find salons")
	}
	var docs []SalonDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode salons")
	}
	salons := make([]domain.Salon, 0, len(docs))
	for _, d := range docs {
		s, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		salons = append(salons, *s)
	}
	return salons, nil
}

// UpsertSalon writes the salon and its services, replacing any previous version.
func (c *CatalogRepository) UpsertSalon(ctx context.Context, doc SalonDoc) error {
	now := time.Now().UTC()
	doc.UpdatedAt = now
	_, err := c.coll.UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{
			"$set": bson.M{
				"owner_id":   doc.OwnerID,
				"name":       doc.Name,
				"services":   doc.Services,
				"updated_at": doc.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		c.logger.WithField("salon_id", doc.ID).WithError(err).Error("failed to upsert salon")
		return errors.Wrap(err, "upsert salon")
	}
	return nil
}

func (c *CatalogRepository) EnsureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		{Keys: bson.D{{Key: "services.id", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	})
	return errors.Wrap(err, "create catalog indexes")
}
