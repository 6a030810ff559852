package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/ferrybook/config"
	"github.com/Domenick1991/ferrybook/internal/cache"
	"github.com/Domenick1991/ferrybook/internal/email"
	"github.com/Domenick1991/ferrybook/internal/kafka"
	"github.com/Domenick1991/ferrybook/internal/logger"
	"github.com/Domenick1991/ferrybook/internal/repository"
	"github.com/Domenick1991/ferrybook/internal/service/booking"
	"github.com/jackc/pgx/v5/pgxpool"
	kafkaGo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.DeparturesCacheTTL)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	departureRepo := repository.NewDepartureRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)

	bookingService := booking.NewBookingService(
		bookingRepo, departureRepo, paymentRepo, ticketRepo,
		redisCache, producer, zl,
		cfg.Kafka.BookingTopic,
		time.Duration(cfg.Booking.HoldMinutes)*time.Minute,
		time.Duration(cfg.Booking.CancelLeadHours)*time.Hour,
		cfg.Booking.MaxPassengers,
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, zl)
	defer consumer.Close()

	emailSender := email.NewSender(zl)

	go func() {
		if err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
			var event kafka.BookingEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				zl.Warn("decode event failed", zap.Error(err))
				return nil
			}
			return emailSender.Send(ctx, event)
		}); err != nil {
			zl.Info("consumer stopped", zap.Error(err))
		}
	}()

	sweep := time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute
	if sweep <= 0 {
		sweep = time.Minute
	}
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := bookingService.ExpireDue(ctx)
			if err != nil {
				zl.Error("expiry sweep failed", zap.Error(err))
				continue
			}
			if result.Expired > 0 || result.Failed > 0 {
				zl.Info("expiry sweep finished",
					zap.Int("expired", result.Expired),
					zap.Int("skipped", result.Skipped),
					zap.Int("failed", result.Failed))
			}
		case <-ctx.Done():
			zl.Info("shutting down")
			return
		}
	}
}
