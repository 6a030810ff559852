package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/Domenick1991/ferrybook/internal/gateway"
	"github.com/Domenick1991/ferrybook/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxIntentWindow caps how long a gateway token stays payable. The window is
// additionally clamped to the booking's remaining hold so a token can never
// outlive the seats it pays for.
const maxIntentWindow = 15 * time.Minute

type Gateway interface {
	Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResponse, []byte, error)
	Status(ctx context.Context, orderID string) (*gateway.TransactionStatus, error)
}

type IntentUseCase interface {
	CreateIntent(ctx context.Context, bookingCode string, force bool) (*Intent, error)
}

type Intent struct {
	OrderID     string
	Token       string
	RedirectURL string
	AmountCents int64
	ExpiresAt   time.Time
	Cached      bool
}

type IntentService struct {
	bookings    repository.BookingRepository
	payments    repository.PaymentRepository
	gateway     Gateway
	log         *zap.Logger
	orderPrefix string
}

func NewIntentService(
	bookings repository.BookingRepository,
	payments repository.PaymentRepository,
	gw Gateway,
	log *zap.Logger,
	orderPrefix string,
) *IntentService {
	if orderPrefix == "" {
		orderPrefix = "FB"
	}
	return &IntentService{
		bookings:    bookings,
		payments:    payments,
		gateway:     gw,
		log:         log,
		orderPrefix: orderPrefix,
	}
}

// CreateIntent opens a gateway transaction for the booking amount. While a
// previously issued token is still payable the cached intent is returned
// instead of opening a duplicate, unless force is set.
func (s *IntentService) CreateIntent(ctx context.Context, bookingCode string, force bool) (*Intent, error) {
	booking, err := s.bookings.GetByCode(ctx, bookingCode)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	if booking.Status != domain.BookingStatusPending {
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrIllegalTransition, booking.Status)
	}
	if !booking.ExpiresAt.After(now) {
		return nil, domain.ErrBookingExpired
	}

	prior, err := s.payments.GetByBookingID(ctx, booking.ID)
	if err != nil && !domain.IsNotFound(err) {
		return nil, err
	}
	if prior != nil {
		if prior.Status == domain.PaymentStatusSuccess {
			return nil, domain.ErrAlreadyPaid
		}
		if !force && prior.Status == domain.PaymentStatusPending && prior.Token != "" && prior.ExpiredAt.After(now) {
			return &Intent{
				OrderID:     prior.OrderID,
				Token:       prior.Token,
				RedirectURL: prior.RedirectURL,
				AmountCents: prior.AmountCents,
				ExpiresAt:   prior.ExpiredAt,
				Cached:      true,
			}, nil
		}
	}

	orderID := fmt.Sprintf("%s-%s", s.orderPrefix, booking.Code)
	if prior != nil || force {
		// The gateway treats order ids as globally unique, so a fresh token
		// for the same booking needs a disambiguating suffix.
		orderID = fmt.Sprintf("%s-%s", orderID, uuid.NewString()[:8])
	}

	window := time.Until(booking.ExpiresAt)
	if window > maxIntentWindow {
		window = maxIntentWindow
	}
	expiryMinutes := int(window / time.Minute)
	if expiryMinutes < 1 {
		expiryMinutes = 1
	}

	resp, raw, err := s.gateway.Charge(ctx, gateway.ChargeRequest{
		OrderID:       orderID,
		GrossAmount:   domain.GrossAmount(booking.TotalCents),
		ExpiryMinutes: expiryMinutes,
		Description:   fmt.Sprintf("ferry booking %s", booking.Code),
	})
	if err != nil {
		// Booking and seats are untouched: the caller may retry.
		return nil, err
	}

	payment := &domain.Payment{
		BookingID:   booking.ID,
		OrderID:     orderID,
		AmountCents: booking.TotalCents,
		Status:      domain.PaymentStatusPending,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
		RawResponse: raw,
		ExpiredAt:   now.Add(time.Duration(expiryMinutes) * time.Minute),
	}
	if err := s.payments.Upsert(ctx, payment); err != nil {
		return nil, err
	}

	s.log.Info("payment intent created",
		zap.String("booking_code", booking.Code),
		zap.String("order_id", orderID),
		zap.Int("expiry_minutes", expiryMinutes))

	return &Intent{
		OrderID:     orderID,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
		AmountCents: booking.TotalCents,
		ExpiresAt:   payment.ExpiredAt,
	}, nil
}

var _ IntentUseCase = (*IntentService)(nil)
