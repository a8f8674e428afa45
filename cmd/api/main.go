package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/salon-reservations/internal/adapters/crdb"
	"github.com/robertarktes/salon-reservations/internal/adapters/mobilemoney"
	mongoadapter "github.com/robertarktes/salon-reservations/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/salon-reservations/internal/adapters/redis"
	"github.com/robertarktes/salon-reservations/internal/booking"
	"github.com/robertarktes/salon-reservations/internal/config"
	httphandler "github.com/robertarktes/salon-reservations/internal/http"
	"github.com/robertarktes/salon-reservations/internal/idempotency"
	"github.com/robertarktes/salon-reservations/internal/notify"
	"github.com/robertarktes/salon-reservations/internal/observability"
	"github.com/robertarktes/salon-reservations/internal/rateLimit"
	"github.com/robertarktes/salon-reservations/internal/reporting"
	"github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg, "salon-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg)

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	crdbRepo := crdb.NewRepository(pool)
	if cfg.AutoMigrate {
		if err := crdbRepo.Migrate(context.Background()); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
	}

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.MongoDB)
	mongoCatalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	auditLog := mongoadapter.NewAuditLogger(mongoDB, logger)
	if cfg.AutoMigrate {
		if err := mongoCatalog.EnsureIndexes(context.Background()); err != nil {
			log.Fatalf("failed to index catalog: %v", err)
		}
		if err := auditLog.EnsureIndexes(context.Background()); err != nil {
			log.Fatalf("failed to index audit log: %v", err)
		}
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)

	limiterStore, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "salon_rl", MaxRetry: 3})
	if err != nil {
		log.Fatalf("failed to create rate limit store: %v", err)
	}
	ipLimiter, err := httphandler.NewIPLimiter(limiterStore, cfg.RateLimit)
	if err != nil {
		log.Fatalf("invalid RATE_LIMIT: %v", err)
	}

	auth, err := httphandler.NewAuthenticator(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("failed to load jwt key: %v", err)
	}

	settings := booking.SettingsFromConfig(cfg)
	notifier := notify.NewOutboxEmitter(crdbRepo)
	payments := booking.NewOrchestrator(crdbRepo, mongoCatalog, mobilemoney.NewClient(cfg.Gateway), notifier, settings, logger)
	bookings := booking.NewService(crdbRepo, mongoCatalog, payments, notifier, auditLog, settings, logger)
	directory := booking.NewDirectory(crdbRepo, mongoCatalog, auditLog, settings, logger)
	reports := reporting.New(crdbRepo, crdbRepo, mongoCatalog)

	checks := map[string]httphandler.Pinger{
		"crdb":  crdbRepo,
		"redis": redisCache,
		"mongo": mongoPinger{mongoClient},
	}
	handlers := httphandler.NewHandlers(bookings, payments, directory, reports, checks, cfg.CallbackSecret, cfg.SalonTimezone)

	r := httphandler.SetupRouter(handlers, logger, auth, httphandler.Limits{
		IP:               ipLimiter,
		Booking:          rateLimit.NewRateLimiter(redisClient),
		BookingPerMinute: cfg.BookingAttemptsPerMinute,
	}, idemp)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	logger.WithField("addr", cfg.HTTPAddr).Info("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}

type mongoPinger struct {
	client *mongo.Client
}

func (m mongoPinger) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}
