package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBookingConfirmed   EventType = "booking.confirmed"
	EventBookingCancelled   EventType = "booking.cancelled"
	EventBookingRescheduled EventType = "booking.rescheduled"
)

// Event is a lifecycle notification. It is serialized into the outbox and
// published with Type as the routing key.
type Event struct {
	ID                uuid.UUID   `json:"id"`
	Type              EventType   `json:"type"`
	BookingID         uuid.UUID   `json:"booking_id"`
	BookingNumber     string      `json:"booking_number"`
	SalonID           uuid.UUID   `json:"salon_id"`
	ClientID          uuid.UUID   `json:"client_id"`
	OwnerID           uuid.UUID   `json:"owner_id"`
	Recipients        []uuid.UUID `json:"recipients"`
	StartTime         time.Time   `json:"start_time"`
	PreviousStartTime *time.Time  `json:"previous_start_time,omitempty"`
	Reason            string      `json:"reason,omitempty"`
	OccurredAt        time.Time   `json:"occurred_at"`
}

// NewBookingEvent addresses an event to both the client and the salon owner.
func NewBookingEvent(t EventType, b *Booking, ownerID uuid.UUID, now time.Time) Event {
	recipients := []uuid.UUID{b.ClientID}
	if ownerID != uuid.Nil && ownerID != b.ClientID {
		recipients = append(recipients, ownerID)
	}
	return Event{
		ID:            uuid.New(),
		Type:          t,
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		SalonID:       b.SalonID,
		ClientID:      b.ClientID,
		OwnerID:       ownerID,
		Recipients:    recipients,
		StartTime:     b.StartTime,
		OccurredAt:    now,
	}
}
