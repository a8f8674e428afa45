package domain

import (
	"strings"

	"github.com/cockroachdb/errors"
)

type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingConfirmed      BookingStatus = "CONFIRMED"
	BookingCancelled      BookingStatus = "CANCELLED"
	BookingCompleted      BookingStatus = "COMPLETED"
	BookingReviewed       BookingStatus = "REVIEWED"
)

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
)

type PaymentMethod string

const (
	PaymentPush PaymentMethod = "PUSH_PAYMENT"
	PaymentCash PaymentMethod = "CASH"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case PaymentPush, PaymentCash:
		return m, nil
	}
	return "", errors.Wrapf(ErrInvalidInput, "unknown payment method %q", s)
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Terminal reports whether the payment can no longer change state.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

type Role string

const (
	RoleClient Role = "CLIENT"
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
)
