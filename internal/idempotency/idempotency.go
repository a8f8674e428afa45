package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrInFlight = errors.New("request with this idempotency key is in progress")
	ErrMismatch = errors.New("idempotency key reused with a different request")
)

type Response struct {
	Status      int
	Fingerprint string
	Result      []byte
}

type Store interface {
	Get(ctx context.Context, key string) (*Response, error)
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	Set(ctx context.Context, key string, resp Response, ttl time.Duration) error
}

// Idempotency replays the stored response of a request that was already
// completed under the same key by the same caller.
type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Idempotency{store: store, ttl: ttl}
}

// Fingerprint identifies the request body a key was first used with.
func Fingerprint(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Begin returns the stored response for key if there is one. Otherwise it
// reserves key and the caller must finish with Complete or Abort.
func (i *Idempotency) Begin(ctx context.Context, key, fingerprint string) (*Response, error) {
	resp, err := i.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if resp != nil {
		if resp.Fingerprint != fingerprint {
			return nil, ErrMismatch
		}
		return resp, nil
	}
	ok, err := i.store.Reserve(ctx, key, time.Minute)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInFlight
	}
	return nil, nil
}

func (i *Idempotency) Complete(ctx context.Context, key string, resp Response) error {
	if err := i.store.Set(ctx, key, resp, i.ttl); err != nil {
		return err
	}
	return i.store.Release(ctx, key)
}

func (i *Idempotency) Abort(ctx context.Context, key string) error {
	return i.store.Release(ctx, key)
}
