package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
)

func (s *Store) InsertPayment(_ context.Context, _ pgx.Tx, p domain.Payment) error {
	for _, existing := range s.st.payments {
		if existing.BookingID == p.BookingID {
			return domain.ErrConflict
		}
	}
	s.st.payments[p.ID] = p
	return nil
}

func (s *Store) GetPaymentByBooking(_ context.Context, bookingID uuid.UUID) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paymentWhere(func(p domain.Payment) bool { return p.BookingID == bookingID })
}

func (s *Store) GetPaymentByBookingForUpdate(_ context.Context, _ pgx.Tx, bookingID uuid.UUID) (*domain.Payment, error) {
	return s.paymentWhere(func(p domain.Payment) bool { return p.BookingID == bookingID })
}

func (s *Store) GetPaymentByCheckoutRef(_ context.Context, checkoutRef string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if checkoutRef == "" {
		return nil, domain.ErrPaymentNotFound
	}
	return s.paymentWhere(func(p domain.Payment) bool { return p.ExternalCheckoutRef == checkoutRef })
}

func (s *Store) paymentWhere(match func(domain.Payment) bool) (*domain.Payment, error) {
	for _, p := range s.st.payments {
		if match(p) {
			return &p, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (s *Store) SetPaymentCheckoutRefs(_ context.Context, _ pgx.Tx, id uuid.UUID, checkoutRef, merchantRef string) error {
	return s.updatePending(id, func(p *domain.Payment) {
		p.ExternalCheckoutRef = checkoutRef
		p.ExternalMerchantRef = merchantRef
	})
}

func (s *Store) CompletePayment(_ context.Context, _ pgx.Tx, id uuid.UUID, receiptRef string, completedAt time.Time) error {
	return s.updatePending(id, func(p *domain.Payment) {
		p.Status = domain.PaymentCompleted
		p.ExternalReceiptRef = receiptRef
		p.CompletedAt = &completedAt
	})
}

func (s *Store) FailPayment(_ context.Context, _ pgx.Tx, id uuid.UUID, reason string) error {
	return s.updatePending(id, func(p *domain.Payment) {
		p.Status = domain.PaymentFailed
		p.FailureReason = reason
	})
}

func (s *Store) updatePending(id uuid.UUID, apply func(*domain.Payment)) error {
	p, ok := s.st.payments[id]
	if !ok || p.Status != domain.PaymentPending {
		return domain.ErrConflict
	}
	apply(&p)
	s.st.payments[id] = p
	return nil
}
