package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/ferrybook/api"
	"github.com/Domenick1991/ferrybook/config"
	"github.com/Domenick1991/ferrybook/internal/bootstrap"
	"github.com/Domenick1991/ferrybook/internal/cache"
	"github.com/Domenick1991/ferrybook/internal/gateway"
	"github.com/Domenick1991/ferrybook/internal/kafka"
	"github.com/Domenick1991/ferrybook/internal/logger"
	"github.com/Domenick1991/ferrybook/internal/repository"
	"github.com/Domenick1991/ferrybook/internal/service/booking"
	"github.com/Domenick1991/ferrybook/internal/service/departures"
	"github.com/Domenick1991/ferrybook/internal/service/payment"
	"github.com/Domenick1991/ferrybook/internal/service/ticket"
	"github.com/jackc/pgx/v5/pgxpool"
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
	gwClient := gateway.NewClient(cfg.Gateway)

	departureRepo := repository.NewDepartureRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	webhookRepo := repository.NewWebhookRepository(pool)

	departureService := departures.NewDepartureService(departureRepo, redisCache)
	bookingService := booking.NewBookingService(
		bookingRepo, departureRepo, paymentRepo, ticketRepo,
		redisCache, producer, zl,
		cfg.Kafka.BookingTopic,
		time.Duration(cfg.Booking.HoldMinutes)*time.Minute,
		time.Duration(cfg.Booking.CancelLeadHours)*time.Hour,
		cfg.Booking.MaxPassengers,
	)
	ticketService := ticket.NewTicketService(
		ticketRepo, bookingRepo, departureRepo, producer, zl,
		[]byte(cfg.Ticket.Secret),
		time.Duration(cfg.Ticket.CheckInOpenHours)*time.Hour,
		time.Duration(cfg.Ticket.CheckInCloseHours)*time.Hour,
		cfg.Kafka.BookingTopic,
	)
	intentService := payment.NewIntentService(bookingRepo, paymentRepo, gwClient, zl, cfg.Gateway.OrderPrefix)
	reconciler := payment.NewReconciler(
		paymentRepo, bookingRepo, webhookRepo,
		redisCache, ticketService, gwClient, producer, zl,
		cfg.Gateway.ServerKey, cfg.Kafka.BookingTopic,
	)

	handlers := bootstrap.Handlers{
		Departures: api.NewDepartureHandler(departureService),
		Bookings:   api.NewBookingHandler(bookingService),
		Payments:   api.NewPaymentHandler(intentService, reconciler, zl),
		Tickets:    api.NewTicketHandler(ticketService),
	}

	if err := bootstrap.Run(ctx, cfg, zl, handlers); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
