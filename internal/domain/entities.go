package domain

import (
	"time"

	"github.com/google/uuid"
)

type Slot struct {
	ID          uuid.UUID
	SalonID     uuid.UUID
	Date        time.Time
	StartTime   time.Time
	EndTime     time.Time
	IsAvailable bool
}

type Salon struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Name    string
}

type ServiceOffering struct {
	ID              uuid.UUID
	SalonID         uuid.UUID
	BaseServiceID   uuid.UUID
	Name            string
	Price           int64
	DurationMinutes int
}

type Appointment struct {
	ID                   uuid.UUID
	SalonID              uuid.UUID
	ServiceOfferingID    uuid.UUID
	Date                 time.Time
	StartTime            time.Time
	EndTime              time.Time
	RepresentativeSlotID uuid.UUID
	Status               AppointmentStatus
}

// Booking is the client-facing reservation. StartTime, EndTime and
// ClaimedSlotIDs are read from the appointment it references.
type Booking struct {
	ID                uuid.UUID
	BookingNumber     string
	ClientID          uuid.UUID
	SalonID           uuid.UUID
	ServiceOfferingID uuid.UUID
	AppointmentID     uuid.UUID
	SlotID            uuid.UUID
	PaymentMethod     PaymentMethod
	TotalAmount       int64
	TransactionFee    int64
	Status            BookingStatus
	CreatedAt         time.Time

	StartTime      time.Time
	EndTime        time.Time
	ClaimedSlotIDs []uuid.UUID
}

type Payment struct {
	ID                  uuid.UUID
	BookingID           uuid.UUID
	Amount              int64
	Method              PaymentMethod
	Status              PaymentStatus
	PhoneNumber         string
	ExternalCheckoutRef string
	ExternalMerchantRef string
	ExternalReceiptRef  string
	FailureReason       string
	CompletedAt         *time.Time
	CreatedAt           time.Time
}

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}
