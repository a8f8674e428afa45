package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
)

const slotColumns = `id, salon_id, slot_date, start_time, end_time, is_available`

// InsertSlots adds slots that do not exist yet and returns how many were new.
func (r *Repository) InsertSlots(ctx context.Context, tx pgx.Tx, slots []domain.Slot) (int, error) {
	created := 0
	for _, s := range slots {
		result, err := tx.Exec(ctx, `
			INSERT INTO slots (id, salon_id, slot_date, start_time, end_time, is_available)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (salon_id, start_time) DO NOTHING
		`, s.ID, s.SalonID, s.Date, s.StartTime, s.EndTime, s.IsAvailable)
		if err != nil {
			return created, errors.Wrap(err, "insert slot")
		}
		created += int(result.RowsAffected())
	}
	return created, nil
}

// NextAvailableSlots returns up to limit available slots starting at or after from.
func (r *Repository) NextAvailableSlots(ctx context.Context, tx pgx.Tx, salonID uuid.UUID, from time.Time, limit int) ([]domain.Slot, error) {
	return querySlots(ctx, tx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE salon_id = $1 AND start_time >= $2 AND is_available = true
		ORDER BY start_time ASC
		LIMIT $3
	`, salonID, from, limit)
}

// ClaimSlots flips available slots to unavailable and returns how many it
// actually took. A short count means another transaction got there first.
func (r *Repository) ClaimSlots(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) (int64, error) {
	result, err := tx.Exec(ctx, `
		UPDATE slots SET is_available = false
		WHERE id = ANY($1::UUID[]) AND is_available = true
	`, uuidStrings(ids))
	if err != nil {
		return 0, errors.Wrap(err, "claim slots")
	}
	return result.RowsAffected(), nil
}

func (r *Repository) ReleaseSlots(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE slots SET is_available = true WHERE id = ANY($1::UUID[])
	`, uuidStrings(ids))
	return errors.Wrap(err, "release slots")
}

func (r *Repository) ListAvailableSlots(ctx context.Context, salonID uuid.UUID, from, to time.Time) ([]domain.Slot, error) {
	return querySlots(ctx, r.pool, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE salon_id = $1 AND start_time >= $2 AND start_time < $3 AND is_available = true
		ORDER BY start_time ASC
	`, salonID, from, to)
}

func querySlots(ctx context.Context, q querier, sql string, args ...any) ([]domain.Slot, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query slots")
	}
	defer rows.Close()

	var slots []domain.Slot
	for rows.Next() {
		var s domain.Slot
		if err := rows.Scan(&s.ID, &s.SalonID, &s.Date, &s.StartTime, &s.EndTime, &s.IsAvailable); err != nil {
			return nil, errors.Wrap(err, "scan slot")
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}
