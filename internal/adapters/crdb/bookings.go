package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
)

const bookingSelect = `
	SELECT b.id, b.booking_number, b.client_id, b.salon_id, b.service_offering_id,
		b.appointment_id, b.slot_id, b.payment_method, b.total_amount, b.transaction_fee,
		b.status, b.created_at, a.start_time, a.end_time
	FROM bookings b
	JOIN appointments a ON a.id = b.appointment_id
`

func (r *Repository) InsertAppointment(ctx context.Context, tx pgx.Tx, appt domain.Appointment, slotIDs []uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments (id, salon_id, service_offering_id, appointment_date, start_time, end_time, representative_slot_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, appt.ID, appt.SalonID, appt.ServiceOfferingID, appt.Date, appt.StartTime, appt.EndTime, appt.RepresentativeSlotID, string(appt.Status))
	if err != nil {
		return errors.Wrap(err, "insert appointment")
	}
	return insertAppointmentSlots(ctx, tx, appt.ID, slotIDs)
}

func insertAppointmentSlots(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID, slotIDs []uuid.UUID) error {
	for i, slotID := range slotIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_slots (appointment_id, slot_id, position)
			VALUES ($1, $2, $3)
		`, appointmentID, slotID, i)
		if err != nil {
			return errors.Wrap(err, "insert appointment slot")
		}
	}
	return nil
}

// MoveAppointment re-spans an appointment over run and replaces its recorded slots.
func (r *Repository) MoveAppointment(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID, run []domain.Slot) error {
	if len(run) == 0 {
		return errors.Wrap(domain.ErrInvalidInput, "empty slot run")
	}
	first, last := run[0], run[len(run)-1]
	result, err := tx.Exec(ctx, `
		UPDATE appointments
		SET appointment_date = $2, start_time = $3, end_time = $4, representative_slot_id = $5
		WHERE id = $1
	`, appointmentID, first.Date, first.StartTime, last.EndTime, first.ID)
	if err != nil {
		return errors.Wrap(err, "move appointment")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM appointment_slots WHERE appointment_id = $1`, appointmentID); err != nil {
		return errors.Wrap(err, "clear appointment slots")
	}
	return insertAppointmentSlots(ctx, tx, appointmentID, domain.SlotIDs(run))
}

func (r *Repository) UpdateAppointmentStatus(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID, status domain.AppointmentStatus) error {
	result, err := tx.Exec(ctx, `
		UPDATE appointments SET status = $2 WHERE id = $1
	`, appointmentID, string(status))
	if err != nil {
		return errors.Wrap(err, "update appointment status")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) InsertBooking(ctx context.Context, tx pgx.Tx, b domain.Booking) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bookings (id, booking_number, client_id, salon_id, service_offering_id, appointment_id, slot_id,
			payment_method, total_amount, transaction_fee, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, b.ID, b.BookingNumber, b.ClientID, b.SalonID, b.ServiceOfferingID, b.AppointmentID, b.SlotID,
		string(b.PaymentMethod), b.TotalAmount, b.TransactionFee, string(b.Status), b.CreatedAt)
	if isUniqueViolation(err) {
		return errors.Mark(errors.Wrap(err, "insert booking"), domain.ErrConflict)
	}
	return errors.Wrap(err, "insert booking")
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return getBooking(ctx, r.pool, bookingSelect+`WHERE b.id = $1`, id)
}

// GetBookingForUpdate locks the booking row until tx ends.
func (r *Repository) GetBookingForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Booking, error) {
	return getBooking(ctx, tx, bookingSelect+`WHERE b.id = $1 FOR UPDATE`, id)
}

func getBooking(ctx context.Context, q querier, sql string, id uuid.UUID) (*domain.Booking, error) {
	b, err := scanBooking(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get booking")
	}

	rows, err := q.Query(ctx, `
		SELECT slot_id FROM appointment_slots WHERE appointment_id = $1 ORDER BY position ASC
	`, b.AppointmentID)
	if err != nil {
		return nil, errors.Wrap(err, "get claimed slots")
	}
	defer rows.Close()
	for rows.Next() {
		var slotID uuid.UUID
		if err := rows.Scan(&slotID); err != nil {
			return nil, errors.Wrap(err, "scan claimed slot")
		}
		b.ClaimedSlotIDs = append(b.ClaimedSlotIDs, slotID)
	}
	return b, rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var method, status string
	err := row.Scan(&b.ID, &b.BookingNumber, &b.ClientID, &b.SalonID, &b.ServiceOfferingID,
		&b.AppointmentID, &b.SlotID, &method, &b.TotalAmount, &b.TransactionFee,
		&status, &b.CreatedAt, &b.StartTime, &b.EndTime)
	if err != nil {
		return nil, err
	}
	b.PaymentMethod = domain.PaymentMethod(method)
	b.Status = domain.BookingStatus(status)
	return &b, nil
}

func (r *Repository) UpdateBookingStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.BookingStatus) error {
	result, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $2 WHERE id = $1
	`, id, string(status))
	if err != nil {
		return errors.Wrap(err, "update booking status")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

func (r *Repository) UpdateBookingSlot(ctx context.Context, tx pgx.Tx, id, slotID uuid.UUID) error {
	result, err := tx.Exec(ctx, `
		UPDATE bookings SET slot_id = $2 WHERE id = $1
	`, id, slotID)
	if err != nil {
		return errors.Wrap(err, "update booking slot")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

// ListExpiredPendingBookings returns bookings still awaiting payment that were
// created before cutoff, oldest first.
func (r *Repository) ListExpiredPendingBookings(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM bookings
		WHERE status = 'PENDING_PAYMENT' AND created_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list expired bookings")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan booking id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListBookingsForSalons returns bookings whose appointment starts in [from, to).
func (r *Repository) ListBookingsForSalons(ctx context.Context, salonIDs []uuid.UUID, from, to time.Time) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, bookingSelect+`
		WHERE b.salon_id = ANY($1::UUID[]) AND a.start_time >= $2 AND a.start_time < $3
		ORDER BY a.start_time ASC
	`, uuidStrings(salonIDs), from, to)
	if err != nil {
		return nil, errors.Wrap(err, "list bookings")
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan booking")
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}
