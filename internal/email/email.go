package email

import (
	"context"

	"github.com/Domenick1991/ferrybook/internal/kafka"
	"go.uber.org/zap"
)

// Sender delivers booking notifications. The transport is a stub; real
// delivery is handled by an external mailer behind the same interface.
type Sender struct {
	log *zap.Logger
}

func NewSender(log *zap.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	s.log.Info("notification sent",
		zap.String("type", event.Type),
		zap.String("booking_code", event.BookingCode),
		zap.String("account_id", event.AccountID),
		zap.Int64("departure_id", event.DepartureID))
	return nil
}
