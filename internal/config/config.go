package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr     string
	CRDBDSN      string
	AutoMigrate  bool
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	RabbitURL    string
	JWTPublicKey string
	OTLPEndpoint string
	LogFile      string
	LogLevel     string

	SlotWidth      time.Duration
	FeeRate        decimal.Decimal
	SalonTimezone  *time.Location
	PaymentTimeout time.Duration
	SweepInterval  time.Duration
	PollAttempts   int
	PollInterval   time.Duration

	Gateway        GatewayConfig
	CallbackSecret string

	// RateLimit uses the ulule formatted rate, e.g. "120-M".
	RateLimit                string
	BookingAttemptsPerMinute int
	IdempotencyTTL           time.Duration
}

type GatewayConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	feeRate, err := decimal.NewFromString(getEnv("FEE_RATE", "0.02"))
	if err != nil {
		return nil, errors.Wrap(err, "FEE_RATE")
	}
	if feeRate.IsNegative() {
		return nil, errors.Newf("FEE_RATE must not be negative, got %s", feeRate)
	}

	loc, err := time.LoadLocation(getEnv("SALON_TIMEZONE", "Africa/Nairobi"))
	if err != nil {
		return nil, errors.Wrap(err, "SALON_TIMEZONE")
	}

	cfg := &Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		MongoDB:      getEnv("MONGO_DB", "salon"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		JWTPublicKey: os.Getenv("JWT_PUBLIC_KEY"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogFile:      os.Getenv("LOG_FILE"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		FeeRate:       feeRate,
		SalonTimezone: loc,

		Gateway: GatewayConfig{
			BaseURL:        getEnv("GATEWAY_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:    os.Getenv("GATEWAY_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("GATEWAY_CONSUMER_SECRET"),
			Shortcode:      os.Getenv("GATEWAY_SHORTCODE"),
			Passkey:        os.Getenv("GATEWAY_PASSKEY"),
			CallbackURL:    os.Getenv("GATEWAY_CALLBACK_URL"),
		},
		CallbackSecret: os.Getenv("CALLBACK_SECRET"),
		RateLimit:      getEnv("RATE_LIMIT", "120-M"),
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"SLOT_WIDTH", time.Hour, &cfg.SlotWidth},
		{"PAYMENT_TIMEOUT", 15 * time.Minute, &cfg.PaymentTimeout},
		{"SWEEP_INTERVAL", time.Minute, &cfg.SweepInterval},
		{"POLL_INTERVAL", 3 * time.Second, &cfg.PollInterval},
		{"GATEWAY_TIMEOUT", 15 * time.Second, &cfg.Gateway.Timeout},
		{"IDEMPOTENCY_TTL", 24 * time.Hour, &cfg.IdempotencyTTL},
	}
	for _, d := range durations {
		if *d.dest, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.PollAttempts, err = getInt("POLL_ATTEMPTS", 10); err != nil {
		return nil, err
	}
	if cfg.BookingAttemptsPerMinute, err = getInt("BOOKING_ATTEMPTS_PER_MINUTE", 10); err != nil {
		return nil, err
	}
	if cfg.AutoMigrate, err = getBool("AUTO_MIGRATE", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	if d <= 0 {
		return 0, errors.Newf("%s must be positive, got %s", key, v)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "%s", key)
	}
	return b, nil
}
