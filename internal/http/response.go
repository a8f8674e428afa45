package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/idempotency"
)

type envelope struct {
	Status  bool              `json:"status"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Data    interface{}       `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

var errUnauthorized = errors.New("missing or invalid bearer token")

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, envelope{Status: true, Message: message, Data: data})
}

func writeValidation(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, envelope{
		Code:    "VALIDATION_ERROR",
		Message: "request validation failed",
		Errors:  fields,
	})
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: an error can carry several marks and the first match wins.
var errorMappings = []errorMapping{
	{domain.ErrPaymentInitiationFailed, http.StatusBadGateway, "PAYMENT_INITIATION_FAILED"},
	{domain.ErrPaymentStatusTimeout, http.StatusRequestTimeout, "PAYMENT_STATUS_TIMEOUT"},
	{domain.ErrPhoneRequired, http.StatusBadRequest, "PHONE_REQUIRED"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "VALIDATION_ERROR"},
	{domain.ErrInsufficientSlots, http.StatusConflict, "INSUFFICIENT_SLOTS"},
	{domain.ErrNoSlotAtTime, http.StatusConflict, "NO_SLOT_AT_TIME"},
	{domain.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{domain.ErrServiceNotFound, http.StatusNotFound, "SERVICE_NOT_FOUND"},
	{domain.ErrSalonNotFound, http.StatusNotFound, "SALON_NOT_FOUND"},
	{domain.ErrBookingNotFound, http.StatusNotFound, "BOOKING_NOT_FOUND"},
	{domain.ErrPaymentNotFound, http.StatusNotFound, "PAYMENT_NOT_FOUND"},
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{errUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{idempotency.ErrInFlight, http.StatusConflict, "REQUEST_IN_PROGRESS"},
	{idempotency.ErrMismatch, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED"},
	{domain.ErrSerializationFailure, http.StatusConflict, "CONFLICT"},
	{domain.ErrConflict, http.StatusConflict, "CONFLICT"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		loggerFrom(r).WithError(err).Error("request failed")
		message = "internal server error"
	}
	writeJSON(w, status, envelope{Code: code, Message: message})
}
