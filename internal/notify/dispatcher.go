package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/observability"
)

// Message is one rendered notification for one recipient.
type Message struct {
	EventID   uuid.UUID
	Type      domain.EventType
	Recipient uuid.UUID
	Subject   string
	Body      string
}

type Deliverer interface {
	Deliver(ctx context.Context, msg Message) error
}

// Deduper remembers which events were already delivered. FirstSeen reports
// true only the first time key is offered within ttl.
type Deduper interface {
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Dispatcher turns published lifecycle events into per-recipient messages.
type Dispatcher struct {
	deliverer Deliverer
	dedupe    Deduper
	location  *time.Location
	logger    observability.Logger
}

func NewDispatcher(deliverer Deliverer, dedupe Deduper, location *time.Location, logger observability.Logger) *Dispatcher {
	if location == nil {
		location = time.UTC
	}
	return &Dispatcher{deliverer: deliverer, dedupe: dedupe, location: location, logger: logger}
}

// Handle decodes one event body and delivers it to every recipient. An event
// already handled is skipped.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) error {
	var ev domain.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return errors.Wrap(domain.ErrInvalidInput, err.Error())
	}

	key := "notified:" + ev.ID.String()
	if d.dedupe != nil {
		first, err := d.dedupe.FirstSeen(ctx, key, 24*time.Hour)
		if err != nil {
			return err
		}
		if !first {
			d.logger.WithField("event_id", ev.ID).Debug("duplicate event skipped")
			return nil
		}
	}

	subject, text, err := d.render(ev)
	if err != nil {
		return err
	}
	for _, to := range ev.Recipients {
		msg := Message{EventID: ev.ID, Type: ev.Type, Recipient: to, Subject: subject, Body: text}
		if err := d.deliverer.Deliver(ctx, msg); err != nil {
			if d.dedupe != nil {
				if ferr := d.dedupe.Forget(context.WithoutCancel(ctx), key); ferr != nil {
					d.logger.WithField("event_id", ev.ID).WithError(ferr).Warn("forget delivered event")
				}
			}
			return errors.Wrapf(err, "deliver %s to %s", ev.Type, to)
		}
	}
	return nil
}

func (d *Dispatcher) render(ev domain.Event) (string, string, error) {
	when := ev.StartTime.In(d.location).Format("Mon 2 Jan 2006 15:04")
	switch ev.Type {
	case domain.EventBookingConfirmed:
		return "Booking confirmed",
			fmt.Sprintf("Booking %s is confirmed for %s.", ev.BookingNumber, when), nil
	case domain.EventBookingCancelled:
		text := fmt.Sprintf("Booking %s for %s has been cancelled.", ev.BookingNumber, when)
		if ev.Reason != "" {
			text += " Reason: " + ev.Reason + "."
		}
		return "Booking cancelled", text, nil
	case domain.EventBookingRescheduled:
		text := fmt.Sprintf("Booking %s has moved to %s.", ev.BookingNumber, when)
		if ev.PreviousStartTime != nil {
			text = fmt.Sprintf("Booking %s has moved from %s to %s.", ev.BookingNumber,
				ev.PreviousStartTime.In(d.location).Format("Mon 2 Jan 2006 15:04"), when)
		}
		return "Booking rescheduled", text, nil
	}
	return "", "", errors.Wrapf(domain.ErrInvalidInput, "unknown event type %q", ev.Type)
}

// LogDeliverer writes messages to the log instead of a real channel.
type LogDeliverer struct {
	logger observability.Logger
}

func NewLogDeliverer(logger observability.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (l *LogDeliverer) Deliver(_ context.Context, msg Message) error {
	l.logger.WithField("event_id", msg.EventID).
		WithField("recipient", msg.Recipient).
		WithField("subject", msg.Subject).
		Info(msg.Body)
	return nil
}
