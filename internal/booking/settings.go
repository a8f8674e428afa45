package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/config"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/observability"
	"github.com/shopspring/decimal"
)

type Settings struct {
	SlotWidth      time.Duration
	FeeRate        decimal.Decimal
	PaymentTimeout time.Duration
	PollAttempts   int
	PollInterval   time.Duration
	// TxAttempts bounds retries of a transaction that lost a slot race or
	// hit a serialization failure.
	TxAttempts int
	TxBackoff  time.Duration
	Location   *time.Location
	Clock      func() time.Time
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		SlotWidth:      cfg.SlotWidth,
		FeeRate:        cfg.FeeRate,
		PaymentTimeout: cfg.PaymentTimeout,
		PollAttempts:   cfg.PollAttempts,
		PollInterval:   cfg.PollInterval,
		Location:       cfg.SalonTimezone,
	}
}

func (s Settings) withDefaults() Settings {
	if s.SlotWidth <= 0 {
		s.SlotWidth = time.Hour
	}
	if s.PaymentTimeout <= 0 {
		s.PaymentTimeout = 15 * time.Minute
	}
	if s.PollAttempts <= 0 {
		s.PollAttempts = 10
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 3 * time.Second
	}
	if s.TxAttempts <= 0 {
		s.TxAttempts = 3
	}
	if s.TxBackoff <= 0 {
		s.TxBackoff = 25 * time.Millisecond
	}
	if s.Location == nil {
		s.Location = time.UTC
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	return s
}

var (
	// errClaimLost means the conditional claim updated fewer rows than it selected.
	errClaimLost = errors.New("slot claim lost a race")
	// errNumberTaken means a freshly generated booking number collided.
	errNumberTaken = errors.New("booking number already taken")
)

// retryable reports whether a fresh transaction may succeed where err failed.
// Other conflicts, such as a payment that is no longer pending, are final.
func retryable(err error) bool {
	return errors.Is(err, errClaimLost) ||
		errors.Is(err, errNumberTaken) ||
		errors.Is(err, domain.ErrSerializationFailure)
}

// runTx retries fn in a fresh transaction while it fails with a retryable error.
func runTx(ctx context.Context, store Store, s Settings, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt < s.TxAttempts; attempt++ {
		err = store.WithTx(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
		observability.SlotClaimConflicts.Inc()
		backoff := time.Duration(1<<attempt) * s.TxBackoff
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
