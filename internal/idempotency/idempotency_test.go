package idempotency_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/salon-reservations/internal/adapters/memory"
	"github.com/robertarktes/salon-reservations/internal/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	ctx := context.Background()
	idem := idempotency.NewIdempotency(memory.NewIdempotencyStore(), 0)
	fp := idempotency.Fingerprint([]byte("POST"), []byte("/api/v1/bookings"), []byte(`{"salonId":"a"}`))

	resp, err := idem.Begin(ctx, "client-1:key-1", fp)
	require.NoError(t, err)
	assert.Nil(t, resp)

	_, err = idem.Begin(ctx, "client-1:key-1", fp)
	assert.True(t, errors.Is(err, idempotency.ErrInFlight))

	require.NoError(t, idem.Complete(ctx, "client-1:key-1", idempotency.Response{
		Status:      201,
		Fingerprint: fp,
		Result:      []byte(`{"status":"success"}`),
	}))

	resp, err = idem.Begin(ctx, "client-1:key-1", fp)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 201, resp.Status)
	assert.JSONEq(t, `{"status":"success"}`, string(resp.Result))

	other := idempotency.Fingerprint([]byte("POST"), []byte("/api/v1/bookings"), []byte(`{"salonId":"b"}`))
	_, err = idem.Begin(ctx, "client-1:key-1", other)
	assert.True(t, errors.Is(err, idempotency.ErrMismatch))
}

func TestIdempotency_AbortFreesKey(t *testing.T) {
	ctx := context.Background()
	idem := idempotency.NewIdempotency(memory.NewIdempotencyStore(), 0)
	fp := idempotency.Fingerprint([]byte("body"))

	_, err := idem.Begin(ctx, "k", fp)
	require.NoError(t, err)
	require.NoError(t, idem.Abort(ctx, "k"))

	resp, err := idem.Begin(ctx, "k", fp)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestFingerprint_SeparatesParts(t *testing.T) {
	a := idempotency.Fingerprint([]byte("ab"), []byte("c"))
	b := idempotency.Fingerprint([]byte("a"), []byte("bc"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, idempotency.Fingerprint([]byte("ab"), []byte("c")))
	assert.Len(t, a, 64)
}
