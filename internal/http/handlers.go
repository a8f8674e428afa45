package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/razorpay/razorpay-go/utils"
	"github.com/robertarktes/salon-reservations/internal/adapters/mobilemoney"
	"github.com/robertarktes/salon-reservations/internal/booking"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/reporting"
)

type Bookings interface {
	CreateBooking(ctx context.Context, req booking.CreateRequest) (*booking.Reservation, error)
	GetBooking(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Booking, error)
	CancelBooking(ctx context.Context, id uuid.UUID, actor domain.Actor) error
	RescheduleBooking(ctx context.Context, id uuid.UUID, newStart time.Time, actor domain.Actor) (*booking.Rescheduled, error)
}

type Payments interface {
	GetStatus(ctx context.Context, bookingID uuid.UUID, actor domain.Actor) (*booking.StatusView, error)
	AwaitStatus(ctx context.Context, bookingID uuid.UUID, actor domain.Actor) (*booking.StatusView, error)
	HandleCallback(ctx context.Context, res domain.CallbackResult) (booking.CallbackOutcome, error)
}

type Slots interface {
	GenerateDay(ctx context.Context, actor domain.Actor, salonID uuid.UUID, day time.Time, opensAt, closesAt time.Duration) (int, error)
	ListAvailable(ctx context.Context, salonID uuid.UUID, from, to time.Time) ([]domain.Slot, error)
}

type Reports interface {
	ListBookingsForOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]domain.Booking, error)
	OwnerSummary(ctx context.Context, ownerID uuid.UUID, from, to time.Time) (*reporting.OwnerSummary, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

const CallbackSignatureHeader = "X-Callback-Signature"

type Handlers struct {
	bookings       Bookings
	payments       Payments
	slots          Slots
	reports        Reports
	checks         map[string]Pinger
	callbackSecret string
	location       *time.Location
	now            func() time.Time
}

func NewHandlers(bookings Bookings, payments Payments, slots Slots, reports Reports, checks map[string]Pinger, callbackSecret string, location *time.Location) *Handlers {
	if location == nil {
		location = time.UTC
	}
	return &Handlers{
		bookings:       bookings,
		payments:       payments,
		slots:          slots,
		reports:        reports,
		checks:         checks,
		callbackSecret: callbackSecret,
		location:       location,
		now:            time.Now,
	}
}

func actorOf(r *http.Request) domain.Actor {
	actor, _ := ActorFrom(r.Context())
	return actor
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeValidation(w, map[string]string{name: "Must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) reserve(w http.ResponseWriter, r *http.Request) (*booking.Reservation, bool) {
	var req createBookingRequest
	if !decode(w, r, &req) {
		return nil, false
	}
	create, fields := req.toDomain(actorOf(r).ID)
	if fields != nil {
		writeValidation(w, fields)
		return nil, false
	}
	res, err := h.bookings.CreateBooking(r.Context(), create)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return res, true
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	res, ok := h.reserve(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusCreated, "Booking created successfully", newCreatedBookingView(res))
}

// InitiatePayment is the payment-first entry point: it reserves exactly like
// CreateBooking and answers with the settlement details.
func (h *Handlers) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	res, ok := h.reserve(w, r)
	if !ok {
		return
	}
	v := initiatedPaymentView{
		Success:       true,
		BookingID:     res.Booking.ID,
		BookingNumber: res.Booking.BookingNumber,
		PaymentID:     res.Payment.ID,
		Amount:        res.Booking.TotalAmount,
		Fee:           res.Booking.TransactionFee,
	}
	message := "Payment recorded, settle at the salon"
	if res.Settlement != nil && res.Settlement.CheckoutRef != "" {
		v.CheckoutRef = res.Settlement.CheckoutRef
		message = "Payment request sent to phone"
	}
	writeSuccess(w, http.StatusCreated, message, v)
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.bookings.GetBooking(r.Context(), id, actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Booking retrieved", newBookingView(*b))
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.bookings.CancelBooking(r.Context(), id, actorOf(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Booking cancelled successfully", nil)
}

func (h *Handlers) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rescheduleRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.bookings.RescheduleBooking(r.Context(), id, req.NewDateTime, actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Booking rescheduled successfully", map[string]time.Time{
		"originalDateTime": res.OriginalStart,
		"newDateTime":      res.NewStart,
	})
}

func (h *Handlers) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bookingId")
	if !ok {
		return
	}
	lookup := h.payments.GetStatus
	if r.URL.Query().Get("wait") == "true" {
		lookup = h.payments.AwaitStatus
	}
	view, err := lookup(r.Context(), id, actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Payment status retrieved", newStatusView(view))
}

type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// PaymentCallback always acknowledges so the gateway stops redelivering.
// Anything it cannot act on is logged instead.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r)
	defer writeJSON(w, http.StatusOK, callbackAck{ResultCode: 0, ResultDesc: "Accepted"})

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.WithError(err).Warn("unreadable payment callback")
		return
	}
	if h.callbackSecret != "" {
		sig := r.Header.Get(CallbackSignatureHeader)
		if sig == "" || !utils.VerifyWebhookSignature(string(body), sig, h.callbackSecret) {
			log.Warn("payment callback signature mismatch")
			return
		}
	}

	res, err := mobilemoney.ParseCallback(body)
	if err != nil {
		log.WithError(err).Warn("malformed payment callback")
		return
	}
	if _, err := h.payments.HandleCallback(context.WithoutCancel(r.Context()), res); err != nil {
		log.WithField("checkout_ref", res.CheckoutRef).WithError(err).Error("payment callback not reconciled")
	}
}

// timeRange reads from and to as RFC 3339, defaulting to the next span.
func (h *Handlers) timeRange(w http.ResponseWriter, r *http.Request, span time.Duration) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	now := h.now().In(h.location)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.location)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeValidation(w, map[string]string{"from": "Must be an RFC 3339 timestamp"})
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	to := from.Add(span)
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeValidation(w, map[string]string{"to": "Must be an RFC 3339 timestamp"})
			return time.Time{}, time.Time{}, false
		}
		to = t
	}
	return from, to, true
}

func (h *Handlers) ListSlots(w http.ResponseWriter, r *http.Request) {
	salonID, ok := pathID(w, r, "salonId")
	if !ok {
		return
	}
	from, to, ok := h.timeRange(w, r, 7*24*time.Hour)
	if !ok {
		return
	}
	slots, err := h.slots.ListAvailable(r.Context(), salonID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Available slots retrieved", newSlotViews(slots))
}

func (h *Handlers) GenerateSlots(w http.ResponseWriter, r *http.Request) {
	salonID, ok := pathID(w, r, "salonId")
	if !ok {
		return
	}
	var req generateSlotsRequest
	if !decode(w, r, &req) {
		return
	}
	fields := map[string]string{}
	day, err := time.ParseInLocation("2006-01-02", req.Date, h.location)
	if err != nil {
		fields["Date"] = "must be a YYYY-MM-DD date"
	}
	opens, err := parseClock(req.OpensAt)
	if err != nil {
		fields["OpensAt"] = "must be an HH:MM time"
	}
	closes, err := parseClock(req.ClosesAt)
	if err != nil {
		fields["ClosesAt"] = "must be an HH:MM time"
	}
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}
	created, err := h.slots.GenerateDay(r.Context(), actorOf(r), salonID, day, opens, closes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Slots generated", map[string]int{"created": created})
}

func (h *Handlers) OwnerBookings(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.timeRange(w, r, 30*24*time.Hour)
	if !ok {
		return
	}
	bookings, err := h.reports.ListBookingsForOwner(r.Context(), actorOf(r).ID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]bookingView, len(bookings))
	for i, b := range bookings {
		views[i] = newBookingView(b)
	}
	writeSuccess(w, http.StatusOK, "Bookings retrieved", views)
}

func (h *Handlers) OwnerSummary(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.timeRange(w, r, 30*24*time.Hour)
	if !ok {
		return
	}
	summary, err := h.reports.OwnerSummary(r.Context(), actorOf(r).ID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Summary retrieved", newOwnerSummaryView(summary))
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Code: "NOT_READY", Message: "dependencies unavailable", Errors: failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
