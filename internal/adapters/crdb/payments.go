package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
)

const paymentSelect = `
	SELECT id, booking_id, amount, method, status, phone_number,
		COALESCE(external_checkout_ref, ''), COALESCE(external_merchant_ref, ''),
		COALESCE(external_receipt_ref, ''), failure_reason, completed_at, created_at
	FROM payments
`

func (r *Repository) InsertPayment(ctx context.Context, tx pgx.Tx, p domain.Payment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payments (id, booking_id, amount, method, status, phone_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.BookingID, p.Amount, string(p.Method), string(p.Status), p.PhoneNumber, p.CreatedAt)
	return errors.Wrap(err, "insert payment")
}

func (r *Repository) GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Payment, error) {
	return getPayment(ctx, r.pool, paymentSelect+`WHERE booking_id = $1`, bookingID)
}

func (r *Repository) GetPaymentByBookingForUpdate(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (*domain.Payment, error) {
	return getPayment(ctx, tx, paymentSelect+`WHERE booking_id = $1 FOR UPDATE`, bookingID)
}

func (r *Repository) GetPaymentByCheckoutRef(ctx context.Context, checkoutRef string) (*domain.Payment, error) {
	return getPayment(ctx, r.pool, paymentSelect+`WHERE external_checkout_ref = $1`, checkoutRef)
}

func getPayment(ctx context.Context, q querier, sql string, arg any) (*domain.Payment, error) {
	var p domain.Payment
	var method, status string
	err := q.QueryRow(ctx, sql, arg).Scan(&p.ID, &p.BookingID, &p.Amount, &method, &status, &p.PhoneNumber,
		&p.ExternalCheckoutRef, &p.ExternalMerchantRef, &p.ExternalReceiptRef, &p.FailureReason,
		&p.CompletedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}

func (r *Repository) SetPaymentCheckoutRefs(ctx context.Context, tx pgx.Tx, id uuid.UUID, checkoutRef, merchantRef string) error {
	result, err := tx.Exec(ctx, `
		UPDATE payments SET external_checkout_ref = $2, external_merchant_ref = $3
		WHERE id = $1 AND status = 'PENDING'
	`, id, nullIfEmpty(checkoutRef), nullIfEmpty(merchantRef))
	if err != nil {
		return errors.Wrap(err, "set checkout refs")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

// CompletePayment moves a PENDING payment to COMPLETED. A payment that is
// already terminal yields domain.ErrConflict.
func (r *Repository) CompletePayment(ctx context.Context, tx pgx.Tx, id uuid.UUID, receiptRef string, completedAt time.Time) error {
	result, err := tx.Exec(ctx, `
		UPDATE payments SET status = 'COMPLETED', external_receipt_ref = $2, completed_at = $3
		WHERE id = $1 AND status = 'PENDING'
	`, id, nullIfEmpty(receiptRef), completedAt)
	if err != nil {
		return errors.Wrap(err, "complete payment")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *Repository) FailPayment(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error {
	result, err := tx.Exec(ctx, `
		UPDATE payments SET status = 'FAILED', failure_reason = $2
		WHERE id = $1 AND status = 'PENDING'
	`, id, reason)
	if err != nil {
		return errors.Wrap(err, "fail payment")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}
