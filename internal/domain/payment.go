package domain

import (
	"fmt"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSuccess   PaymentStatus = "SUCCESS"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusExpired   PaymentStatus = "EXPIRED"
	PaymentStatusChallenge PaymentStatus = "CHALLENGE"
	PaymentStatusDeny      PaymentStatus = "DENY"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {
		PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusExpired,
		PaymentStatusChallenge, PaymentStatusDeny, PaymentStatusCancelled,
	},
	PaymentStatusChallenge: {PaymentStatusSuccess, PaymentStatusDeny, PaymentStatusFailed},
	PaymentStatusSuccess:   {PaymentStatusRefunded},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Final reports whether no further gateway notification may move the payment.
func (s PaymentStatus) Final() bool {
	switch s {
	case PaymentStatusFailed, PaymentStatusExpired, PaymentStatusDeny,
		PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}

type Payment struct {
	ID          int64
	BookingID   int64
	OrderID     string
	AmountCents int64
	Status      PaymentStatus
	Token       string
	RedirectURL string
	RawResponse []byte
	ExpiredAt   time.Time
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GrossAmount renders the amount the way the gateway signs it, e.g. "150000.00".
func GrossAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
