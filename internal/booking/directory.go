package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/observability"
)

// Directory maintains the bookable slot inventory of salons.
type Directory struct {
	store    Store
	catalog  Catalog
	audit    AuditLog
	settings Settings
	logger   observability.Logger
}

func NewDirectory(store Store, catalog Catalog, audit AuditLog, settings Settings, logger observability.Logger) *Directory {
	return &Directory{store: store, catalog: catalog, audit: audit, settings: settings.withDefaults(), logger: logger}
}

// GenerateDay creates the fixed-width slots of one opening day. Slots that
// already exist are kept, so calling it twice is harmless. It returns the
// number of slots created.
func (d *Directory) GenerateDay(ctx context.Context, actor domain.Actor, salonID uuid.UUID, day time.Time, opensAt, closesAt time.Duration) (int, error) {
	salon, err := d.catalog.GetSalon(ctx, salonID)
	if err != nil {
		return 0, err
	}
	if actor.Role != domain.RoleAdmin && (actor.ID == uuid.Nil || actor.ID != salon.OwnerID) {
		return 0, domain.ErrForbidden
	}

	local := day.In(d.settings.Location)
	slots, err := domain.DaySlots(salonID, time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, d.settings.Location), opensAt, closesAt, d.settings.SlotWidth)
	if err != nil {
		return 0, err
	}
	if len(slots) == 0 {
		return 0, errors.Wrap(domain.ErrInvalidInput, "opening hours shorter than one slot")
	}

	var created int
	err = runTx(ctx, d.store, d.settings, func(tx pgx.Tx) error {
		created, err = d.store.InsertSlots(ctx, tx, slots)
		return err
	})
	if err != nil {
		return 0, err
	}

	d.logger.WithField("salon_id", salonID).WithField("created", created).Info("slots generated")
	if err := d.audit.LogEvent(ctx, "slots.generated", actor.ID, map[string]interface{}{
		"salon_id": salonID.String(),
		"date":     slots[0].Date,
		"created":  created,
	}); err != nil {
		d.logger.WithError(err).Warn("audit log failed")
	}
	return created, nil
}

// ListAvailable returns the free slots of a salon starting in [from, to).
func (d *Directory) ListAvailable(ctx context.Context, salonID uuid.UUID, from, to time.Time) ([]domain.Slot, error) {
	if !to.After(from) {
		return nil, errors.Wrap(domain.ErrInvalidInput, "empty time range")
	}
	return d.store.ListAvailableSlots(ctx, salonID, from, to)
}
