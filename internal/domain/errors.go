package domain

import "github.com/cockroachdb/errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	ErrInsufficientSlots       = errors.New("not enough consecutive slots available")
	ErrNoSlotAtTime            = errors.New("no available slot at the requested time")
	ErrServiceNotFound         = errors.New("service offering not found")
	ErrSalonNotFound           = errors.New("salon not found")
	ErrBookingNotFound         = errors.New("booking not found")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrForbidden               = errors.New("actor is not allowed to modify this booking")
	ErrInvalidTransition       = errors.New("booking status does not allow this operation")
	ErrPhoneRequired           = errors.New("phone number is required for push payment")
	ErrPaymentInitiationFailed = errors.New("payment initiation failed")
	ErrPaymentStatusTimeout    = errors.New("payment status polling timed out")
)
