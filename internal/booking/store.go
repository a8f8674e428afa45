package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
)

// Every mutating method takes the caller's transaction explicitly.
// Methods without a tx argument are plain reads.

type SlotStore interface {
	InsertSlots(ctx context.Context, tx pgx.Tx, slots []domain.Slot) (int, error)
	NextAvailableSlots(ctx context.Context, tx pgx.Tx, salonID uuid.UUID, from time.Time, limit int) ([]domain.Slot, error)
	ClaimSlots(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) (int64, error)
	ReleaseSlots(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error
	ListAvailableSlots(ctx context.Context, salonID uuid.UUID, from, to time.Time) ([]domain.Slot, error)
}

type BookingStore interface {
	InsertAppointment(ctx context.Context, tx pgx.Tx, appt domain.Appointment, slotIDs []uuid.UUID) error
	MoveAppointment(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID, run []domain.Slot) error
	UpdateAppointmentStatus(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID, status domain.AppointmentStatus) error
	InsertBooking(ctx context.Context, tx pgx.Tx, b domain.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetBookingForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Booking, error)
	UpdateBookingStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.BookingStatus) error
	UpdateBookingSlot(ctx context.Context, tx pgx.Tx, id, slotID uuid.UUID) error
	ListExpiredPendingBookings(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type PaymentStore interface {
	InsertPayment(ctx context.Context, tx pgx.Tx, p domain.Payment) error
	GetPaymentByBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Payment, error)
	GetPaymentByCheckoutRef(ctx context.Context, checkoutRef string) (*domain.Payment, error)
	GetPaymentByBookingForUpdate(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (*domain.Payment, error)
	SetPaymentCheckoutRefs(ctx context.Context, tx pgx.Tx, id uuid.UUID, checkoutRef, merchantRef string) error
	CompletePayment(ctx context.Context, tx pgx.Tx, id uuid.UUID, receiptRef string, completedAt time.Time) error
	FailPayment(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error
}

type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	SlotStore
	BookingStore
	PaymentStore
}

// Catalog is the read side of salon and service management.
type Catalog interface {
	GetSalon(ctx context.Context, id uuid.UUID) (*domain.Salon, error)
	GetServiceOffering(ctx context.Context, id uuid.UUID) (*domain.ServiceOffering, error)
}

type Gateway interface {
	InitiatePush(ctx context.Context, req domain.PushRequest) (*domain.PushReceipt, error)
}

// Notifier records ev as part of tx so it is only emitted if tx commits.
type Notifier interface {
	Notify(ctx context.Context, tx pgx.Tx, ev domain.Event) error
}

type AuditLog interface {
	LogEvent(ctx context.Context, action string, actorID uuid.UUID, data map[string]interface{}) error
}
