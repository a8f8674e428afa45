package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/salon-reservations/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/salon-reservations/internal/adapters/redis"
	"github.com/robertarktes/salon-reservations/internal/config"
	"github.com/robertarktes/salon-reservations/internal/domain"
	"github.com/robertarktes/salon-reservations/internal/notify"
	"github.com/robertarktes/salon-reservations/internal/observability"
	"golang.org/x/sync/errgroup"
)

const queue = "salon.notifications"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewLogger(cfg)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	keys := []string{
		string(domain.EventBookingConfirmed),
		string(domain.EventBookingCancelled),
		string(domain.EventBookingRescheduled),
	}
	consumer, err := rabbit.NewConsumer(conn, queue, keys, logger)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	dispatcher := notify.NewDispatcher(notify.NewLogDeliverer(logger), redisadapter.NewCache(redisClient), cfg.SalonTimezone, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(gctx, dispatcher.Handle)
	})
	g.Go(func() error {
		closed := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-gctx.Done():
			return nil
		case err := <-closed:
			if err != nil {
				return err
			}
			return nil
		}
	})

	logger.Info("Notification worker started")
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("notification worker stopped")
	}
	logger.Info("Shutdown notification worker")
}
