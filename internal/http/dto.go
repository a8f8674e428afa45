package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robertarktes/salon-reservations/internal/booking"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/reporting"
)

var validate = validator.New()

type createBookingRequest struct {
	SalonID           string    `json:"salonId" validate:"required,uuid"`
	ServiceOfferingID string    `json:"serviceOfferingId" validate:"required,uuid"`
	DesiredStart      time.Time `json:"desiredStart" validate:"required"`
	PaymentMethod     string    `json:"paymentMethod" validate:"required"`
	PhoneNumber       string    `json:"phoneNumber" validate:"omitempty,max=20"`
}

type rescheduleRequest struct {
	NewDateTime time.Time `json:"newDateTime" validate:"required"`
}

type generateSlotsRequest struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	OpensAt  string `json:"opensAt" validate:"required,datetime=15:04"`
	ClosesAt string `json:"closesAt" validate:"required,datetime=15:04"`
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports false when the request must not proceed.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeValidation(w, map[string]string{"body": "malformed JSON: " + err.Error()})
		return false
	}
	if fields := validateStruct(dst); fields != nil {
		writeValidation(w, fields)
		return false
	}
	return true
}

func validateStruct(data interface{}) map[string]string {
	err := validate.Struct(data)
	if err == nil {
		return nil
	}
	fields := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "uuid":
		return "Must be a valid UUID"
	case "max":
		return fmt.Sprintf("Maximum length is %s", fe.Param())
	case "datetime":
		return fmt.Sprintf("Must match %s", fe.Param())
	default:
		return fmt.Sprintf("Invalid %s field", fe.Field())
	}
}

func (req createBookingRequest) toDomain(clientID uuid.UUID) (booking.CreateRequest, map[string]string) {
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return booking.CreateRequest{}, map[string]string{"PaymentMethod": "Must be one of: PUSH_PAYMENT, CASH"}
	}
	return booking.CreateRequest{
		ClientID:          clientID,
		SalonID:           uuid.MustParse(req.SalonID),
		ServiceOfferingID: uuid.MustParse(req.ServiceOfferingID),
		DesiredStart:      req.DesiredStart,
		PaymentMethod:     method,
		PhoneNumber:       strings.TrimSpace(req.PhoneNumber),
	}, nil
}

// parseClock turns "09:30" into an offset from midnight.
// parseClock turns an HH:MM wall-clock time into an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse clock %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

type appointmentView struct {
	ID        uuid.UUID `json:"id"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

type paymentView struct {
	ID              uuid.UUID `json:"id"`
	Method          string    `json:"method"`
	Status          string    `json:"status"`
	Amount          int64     `json:"amount"`
	Fee             int64     `json:"fee"`
	CheckoutRef     string    `json:"checkoutRef,omitempty"`
	CustomerMessage string    `json:"customerMessage,omitempty"`
}

type createdBookingView struct {
	BookingID      uuid.UUID       `json:"bookingId"`
	BookingNumber  string          `json:"bookingNumber"`
	Status         string          `json:"status"`
	Appointment    appointmentView `json:"appointment"`
	ClaimedSlotIDs []uuid.UUID     `json:"claimedSlotIds"`
	Payment        paymentView     `json:"payment"`
}

func newCreatedBookingView(res *booking.Reservation) createdBookingView {
	v := createdBookingView{
		BookingID:     res.Booking.ID,
		BookingNumber: res.Booking.BookingNumber,
		Status:        string(res.Booking.Status),
		Appointment: appointmentView{
			ID:        res.Appointment.ID,
			StartTime: res.Appointment.StartTime,
			EndTime:   res.Appointment.EndTime,
		},
		ClaimedSlotIDs: res.Booking.ClaimedSlotIDs,
		Payment: paymentView{
			ID:     res.Payment.ID,
			Method: string(res.Payment.Method),
			Status: string(res.Payment.Status),
			Amount: res.Payment.Amount,
			Fee:    res.Booking.TransactionFee,
		},
	}
	if s := res.Settlement; s != nil {
		v.Payment.Status = string(s.Status)
		v.Payment.CheckoutRef = s.CheckoutRef
		v.Payment.CustomerMessage = s.CustomerMessage
	}
	return v
}

type initiatedPaymentView struct {
	Success       bool      `json:"success"`
	BookingID     uuid.UUID `json:"bookingId"`
	BookingNumber string    `json:"bookingNumber"`
	PaymentID     uuid.UUID `json:"paymentId"`
	CheckoutRef   string    `json:"checkoutRef,omitempty"`
	Amount        int64     `json:"amount"`
	Fee           int64     `json:"fee"`
}

type bookingView struct {
	ID                uuid.UUID `json:"id"`
	BookingNumber     string    `json:"bookingNumber"`
	ClientID          uuid.UUID `json:"clientId"`
	SalonID           uuid.UUID `json:"salonId"`
	ServiceOfferingID uuid.UUID `json:"serviceOfferingId"`
	Status            string    `json:"status"`
	PaymentMethod     string    `json:"paymentMethod"`
	TotalAmount       int64     `json:"totalAmount"`
	TransactionFee    int64     `json:"transactionFee"`
	StartTime         time.Time `json:"startTime"`
	EndTime           time.Time `json:"endTime"`
	CreatedAt         time.Time `json:"createdAt"`
}

func newBookingView(b domain.Booking) bookingView {
	return bookingView{
		ID:                b.ID,
		BookingNumber:     b.BookingNumber,
		ClientID:          b.ClientID,
		SalonID:           b.SalonID,
		ServiceOfferingID: b.ServiceOfferingID,
		Status:            string(b.Status),
		PaymentMethod:     string(b.PaymentMethod),
		TotalAmount:       b.TotalAmount,
		TransactionFee:    b.TransactionFee,
		StartTime:         b.StartTime,
		EndTime:           b.EndTime,
		CreatedAt:         b.CreatedAt,
	}
}

type statusView struct {
	BookingID     uuid.UUID `json:"bookingId"`
	BookingNumber string    `json:"bookingNumber"`
	Status        string    `json:"status"`
	BookingStatus string    `json:"bookingStatus"`
	Amount        int64     `json:"amount"`
	Fee           int64     `json:"fee"`
}

func newStatusView(s *booking.StatusView) statusView {
	return statusView{
		BookingID:     s.BookingID,
		BookingNumber: s.BookingNumber,
		Status:        string(s.PaymentStatus),
		BookingStatus: string(s.BookingStatus),
		Amount:        s.Amount,
		Fee:           s.Fee,
	}
}

type slotView struct {
	ID        uuid.UUID `json:"id"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

func newSlotViews(slots []domain.Slot) []slotView {
	out := make([]slotView, len(slots))
	for i, s := range slots {
		out[i] = slotView{ID: s.ID, StartTime: s.StartTime, EndTime: s.EndTime}
	}
	return out
}

type salonSummaryView struct {
	SalonID   uuid.UUID      `json:"salonId,omitempty"`
	SalonName string         `json:"salonName,omitempty"`
	ByStatus  map[string]int `json:"byStatus"`
	Revenue   int64          `json:"revenue"`
	OpenSlots int            `json:"openSlots"`
}

type ownerSummaryView struct {
	From   time.Time          `json:"from"`
	To     time.Time          `json:"to"`
	Salons []salonSummaryView `json:"salons"`
	Total  salonSummaryView   `json:"total"`
}

func newSalonSummaryView(s reporting.SalonSummary) salonSummaryView {
	v := salonSummaryView{
		SalonID:   s.SalonID,
		SalonName: s.SalonName,
		ByStatus:  make(map[string]int, len(s.ByStatus)),
		Revenue:   s.Revenue,
		OpenSlots: s.OpenSlots,
	}
	for status, n := range s.ByStatus {
		v.ByStatus[string(status)] = n
	}
	return v
}

func newOwnerSummaryView(s *reporting.OwnerSummary) ownerSummaryView {
	v := ownerSummaryView{From: s.From, To: s.To, Total: newSalonSummaryView(s.Total)}
	v.Salons = make([]salonSummaryView, len(s.Salons))
	for i, salon := range s.Salons {
		v.Salons[i] = newSalonSummaryView(salon)
	}
	return v
}
