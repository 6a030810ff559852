package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Domenick1991/ferrybook/api"
	"github.com/Domenick1991/ferrybook/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers collects the API surface wired in main.
type Handlers struct {
	Departures *api.DepartureHandler
	Bookings   *api.BookingHandler
	Payments   *api.PaymentHandler
	Tickets    *api.TicketHandler
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger, h Handlers) error {
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(log))

	v1 := router.Group("/api/v1")
	h.Departures.Register(v1.Group("/departures"))
	h.Bookings.Register(v1.Group("/bookings"))
	h.Tickets.Register(v1.Group("/tickets"))

	admin := v1.Group("/admin")
	admin.Use(api.RequireAdmin())
	h.Payments.Register(v1, admin)

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
