package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
)

const Schema = `
CREATE TABLE IF NOT EXISTS slots (
	id UUID PRIMARY KEY,
	salon_id UUID NOT NULL,
	slot_date DATE NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	is_available BOOL NOT NULL DEFAULT true,
	UNIQUE (salon_id, start_time)
);

CREATE TABLE IF NOT EXISTS appointments (
	id UUID PRIMARY KEY,
	salon_id UUID NOT NULL,
	service_offering_id UUID NOT NULL,
	appointment_date DATE NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	representative_slot_id UUID NOT NULL REFERENCES slots (id),
	status TEXT NOT NULL CHECK (status IN ('SCHEDULED', 'CANCELLED'))
);

CREATE TABLE IF NOT EXISTS appointment_slots (
	appointment_id UUID NOT NULL REFERENCES appointments (id),
	slot_id UUID NOT NULL REFERENCES slots (id),
	position INT NOT NULL,
	PRIMARY KEY (appointment_id, slot_id)
);

CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY,
	booking_number TEXT NOT NULL UNIQUE,
	client_id UUID NOT NULL,
	salon_id UUID NOT NULL,
	service_offering_id UUID NOT NULL,
	appointment_id UUID NOT NULL UNIQUE REFERENCES appointments (id),
	slot_id UUID NOT NULL REFERENCES slots (id),
	payment_method TEXT NOT NULL CHECK (payment_method IN ('PUSH_PAYMENT', 'CASH')),
	total_amount INT8 NOT NULL,
	transaction_fee INT8 NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('PENDING_PAYMENT', 'CONFIRMED', 'CANCELLED', 'COMPLETED', 'REVIEWED')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS bookings_status_created_idx ON bookings (status, created_at);
CREATE INDEX IF NOT EXISTS bookings_salon_idx ON bookings (salon_id);

CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	booking_id UUID NOT NULL UNIQUE REFERENCES bookings (id),
	amount INT8 NOT NULL,
	method TEXT NOT NULL CHECK (method IN ('PUSH_PAYMENT', 'CASH')),
	status TEXT NOT NULL CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED')),
	phone_number TEXT NOT NULL DEFAULT '',
	external_checkout_ref TEXT UNIQUE,
	external_merchant_ref TEXT,
	external_receipt_ref TEXT,
	failure_reason TEXT NOT NULL DEFAULT '',
	completed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS outbox_status_created_idx ON outbox (status, created_at);
`

// Migrate creates the tables if they do not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return errors.Wrap(err, "migrate schema")
}
