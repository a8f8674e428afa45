package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/salon-reservations/internal/adapters/crdb"
	"github.com/robertarktes/salon-reservations/internal/adapters/mobilemoney"
	mongoadapter "github.com/robertarktes/salon-reservations/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/salon-reservations/internal/adapters/redis"
	"github.com/robertarktes/salon-reservations/internal/booking"
	"github.com/robertarktes/salon-reservations/internal/config"
	"github.com/robertarktes/salon-reservations/internal/notify"
	"github.com/robertarktes/salon-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// expiry-worker cancels push-payment bookings whose payment never arrived.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "salon-expiry-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg)

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.MongoDB)
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	auditLog := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)

	settings := booking.SettingsFromConfig(cfg)
	notifier := notify.NewOutboxEmitter(repo)
	payments := booking.NewOrchestrator(repo, catalog, mobilemoney.NewClient(cfg.Gateway), notifier, settings, logger)
	service := booking.NewService(repo, catalog, payments, notifier, auditLog, settings, logger)
	sweeper := booking.NewTimeoutSweeper(repo, service, redisCache, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Run(ctx, cfg.SweepInterval)
	logger.WithField("interval", cfg.SweepInterval).Info("Expiry worker started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}
