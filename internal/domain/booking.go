package domain

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

const bookingNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewBookingNumber returns a 12 character reference such as BK261016Q7ZK.
// It fits the account reference limit of the push-payment gateway.
func NewBookingNumber(now time.Time) string {
	var sb strings.Builder
	sb.WriteString("BK")
	sb.WriteString(now.Format("060102"))
	for i := 0; i < 4; i++ {
		sb.WriteByte(bookingNumberAlphabet[rand.Intn(len(bookingNumberAlphabet))])
	}
	return sb.String()
}

// RequiredSlots is the number of fixed-width slots that cover durationMinutes.
func RequiredSlots(durationMinutes int, slotWidth time.Duration) int {
	if durationMinutes <= 0 || slotWidth <= 0 {
		return 0
	}
	return int(math.Ceil(float64(time.Duration(durationMinutes)*time.Minute) / float64(slotWidth)))
}

// EffectiveStatus derives COMPLETED for confirmed bookings whose appointment
// has already ended. The stored status is never advanced to COMPLETED.
func (b *Booking) EffectiveStatus(now time.Time) BookingStatus {
	if b.Status == BookingConfirmed && !b.EndTime.IsZero() && !now.Before(b.EndTime) {
		return BookingCompleted
	}
	return b.Status
}

// AllowedFor reports whether actor may cancel, reschedule or read the booking.
func (b *Booking) AllowedFor(actor Actor, salonOwnerID uuid.UUID) bool {
	switch {
	case actor.Role == RoleAdmin:
		return true
	case actor.ID == uuid.Nil:
		return false
	case actor.ID == b.ClientID:
		return true
	case actor.ID == salonOwnerID:
		return true
	}
	return false
}

// Modifiable reports whether the booking can still be cancelled or moved.
func (b *Booking) Modifiable(now time.Time) bool {
	switch b.EffectiveStatus(now) {
	case BookingPendingPayment, BookingConfirmed:
		return true
	}
	return false
}
