package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/Domenick1991/ferrybook/internal/kafka"
	"github.com/Domenick1991/ferrybook/internal/repository"
	"github.com/lithammer/shortuuid/v3"
	"go.uber.org/zap"
)

// maxHold caps the seat hold regardless of configuration.
const maxHold = 15 * time.Minute

type BookingUseCase interface {
	Create(ctx context.Context, input CreateBookingInput) (*BookingDetail, error)
	Get(ctx context.Context, code string) (*BookingDetail, error)
	Cancel(ctx context.Context, code string, actor domain.Actor, reason string) (*domain.Booking, error)
	ExpireDue(ctx context.Context) (*SweepResult, error)
}

type Cache interface {
	InvalidateDepartures(ctx context.Context) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type BookingService struct {
	bookings      repository.BookingRepository
	departures    repository.DepartureRepository
	payments      repository.PaymentRepository
	tickets       repository.TicketRepository
	cache         Cache
	producer      Producer
	log           *zap.Logger
	bookingTopic  string
	holdTTL       time.Duration
	cancelLead    time.Duration
	maxPassengers int
}

type PassengerInput struct {
	FullName   string `json:"full_name"`
	IdentityNo string `json:"identity_no"`
}

type CreateBookingInput struct {
	DepartureID int64            `json:"departure_id"`
	AccountID   string           `json:"account_id"`
	Passengers  []PassengerInput `json:"passengers"`
}

type BookingDetail struct {
	Booking    *domain.Booking
	Passengers []domain.Passenger
	Payment    *domain.Payment
	Tickets    []domain.Ticket
}

type SweepResult struct {
	Expired int
	Skipped int
	Failed  int
}

func NewBookingService(
	bookings repository.BookingRepository,
	departures repository.DepartureRepository,
	payments repository.PaymentRepository,
	tickets repository.TicketRepository,
	cache Cache,
	producer Producer,
	log *zap.Logger,
	bookingTopic string,
	holdTTL, cancelLead time.Duration,
	maxPassengers int,
) *BookingService {
	if holdTTL <= 0 || holdTTL > maxHold {
		holdTTL = maxHold
	}
	return &BookingService{
		bookings:      bookings,
		departures:    departures,
		payments:      payments,
		tickets:       tickets,
		cache:         cache,
		producer:      producer,
		log:           log,
		bookingTopic:  bookingTopic,
		holdTTL:       holdTTL,
		cancelLead:    cancelLead,
		maxPassengers: maxPassengers,
	}
}

func (s *BookingService) Create(ctx context.Context, input CreateBookingInput) (*BookingDetail, error) {
	if len(input.Passengers) == 0 {
		return nil, domain.ErrNoPassengers
	}
	if s.maxPassengers > 0 && len(input.Passengers) > s.maxPassengers {
		return nil, domain.ErrTooManyPassengers
	}
	for _, p := range input.Passengers {
		if p.FullName == "" || p.IdentityNo == "" {
			return nil, domain.ErrInvalidPassenger
		}
	}

	departure, err := s.departures.GetByID(ctx, input.DepartureID)
	if err != nil {
		return nil, err
	}
	if !departure.Bookable(time.Now()) {
		return nil, domain.ErrDepartureNotBookable
	}

	booking := &domain.Booking{
		Code:           shortuuid.New(),
		DepartureID:    input.DepartureID,
		AccountID:      input.AccountID,
		PassengerCount: len(input.Passengers),
		TotalCents:     departure.PriceCents * int64(len(input.Passengers)),
		ExpiresAt:      time.Now().Add(s.holdTTL),
	}

	passengers := make([]domain.Passenger, len(input.Passengers))
	for i, p := range input.Passengers {
		passengers[i] = domain.Passenger{FullName: p.FullName, IdentityNo: p.IdentityNo}
	}

	if err := s.bookings.CreateWithReservation(ctx, booking, passengers); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateDepartures(ctx); err != nil {
			s.log.Warn("failed to invalidate departures cache", zap.Error(err))
		}
	}
	s.publish(ctx, "booking_created", booking)

	return &BookingDetail{Booking: booking, Passengers: passengers}, nil
}

func (s *BookingService) Get(ctx context.Context, code string) (*BookingDetail, error) {
	booking, err := s.bookings.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	passengers, err := s.bookings.ListPassengers(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	detail := &BookingDetail{Booking: booking, Passengers: passengers}

	if payment, err := s.payments.GetByBookingID(ctx, booking.ID); err == nil {
		detail.Payment = payment
	} else if !domain.IsNotFound(err) {
		return nil, err
	}
	tickets, err := s.tickets.ListByBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	detail.Tickets = tickets
	return detail, nil
}

// Cancel releases inventory exactly once: the compare-and-swap on the booking
// status and the seat credit commit in one transaction, so a concurrent
// cancel, expiry sweep or webhook confirmation cannot double-credit seats,
// and a failed credit leaves the booking untouched for a retry.
func (s *BookingService) Cancel(ctx context.Context, code string, actor domain.Actor, reason string) (*domain.Booking, error) {
	booking, err := s.bookings.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	departure, err := s.departures.GetByID(ctx, booking.DepartureID)
	if err != nil {
		return nil, err
	}

	if booking.Status != domain.BookingStatusPending && booking.Status != domain.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: cannot cancel %s booking", domain.ErrIllegalTransition, booking.Status)
	}
	if !actor.MayCancel(booking, departure.DepartureTime, time.Now(), s.cancelLead) {
		return nil, domain.ErrNotAllowed
	}

	ok, err := s.bookings.TransitionStatusReleasing(ctx, booking.ID, booking.Status, domain.BookingStatusCancelled, reason,
		booking.DepartureID, booking.PassengerCount)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with the sweeper or the reconciler.
		return nil, fmt.Errorf("%w: booking is no longer %s", domain.ErrIllegalTransition, booking.Status)
	}

	if _, err := s.tickets.CancelValidByBooking(ctx, booking.ID); err != nil {
		s.log.Error("ticket invalidation failed after cancellation",
			zap.String("booking_code", booking.Code), zap.Error(err))
	}

	finalStatus := domain.BookingStatusCancelled
	if payment, err := s.payments.GetByBookingID(ctx, booking.ID); err == nil {
		if payment.Status == domain.PaymentStatusSuccess {
			// Money was collected: move both records toward REFUNDED rather
			// than leaving a cancelled booking with a settled payment.
			if _, err := s.payments.TransitionStatus(ctx, payment.ID, domain.PaymentStatusSuccess, domain.PaymentStatusRefunded); err != nil {
				return nil, err
			}
			if _, err := s.bookings.TransitionStatus(ctx, booking.ID, domain.BookingStatusCancelled, domain.BookingStatusRefunded, reason); err != nil {
				return nil, err
			}
			finalStatus = domain.BookingStatusRefunded
		}
	} else if !domain.IsNotFound(err) {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateDepartures(ctx); err != nil {
			s.log.Warn("failed to invalidate departures cache", zap.Error(err))
		}
	}

	updated, err := s.bookings.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	event := "booking_cancelled"
	if finalStatus == domain.BookingStatusRefunded {
		event = "booking_refunded"
	}
	s.publish(ctx, event, updated)
	return updated, nil
}

// ExpireDue reclaims seats from bookings whose hold lapsed without payment.
// Each booking is expired with a conditional update that credits its seats
// back in the same transaction, so a concurrent confirmation or a second
// sweeper instance cannot race it and a write failure leaves the booking
// PENDING for the next sweep; failures on one booking never abort the rest
// of the batch.
func (s *BookingService) ExpireDue(ctx context.Context) (*SweepResult, error) {
	due, err := s.bookings.ListExpirable(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	for i := range due {
		b := due[i]
		ok, err := s.bookings.ExpireIfDueReleasing(ctx, b.ID, b.DepartureID, b.PassengerCount)
		if err != nil {
			result.Failed++
			s.log.Error("expire booking failed", zap.String("booking_code", b.Code), zap.Error(err))
			continue
		}
		if !ok {
			// Confirmed or cancelled since the listing; its seats are
			// accounted for elsewhere.
			result.Skipped++
			continue
		}

		if payment, err := s.payments.GetByBookingID(ctx, b.ID); err == nil {
			// Best effort. A SUCCESS payment means the reconciler won a race
			// and the ExpireIfDue above would not have matched anyway.
			if payment.Status == domain.PaymentStatusPending {
				if _, err := s.payments.TransitionStatus(ctx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusExpired); err != nil {
					s.log.Warn("payment expiry failed", zap.String("booking_code", b.Code), zap.Error(err))
				}
			}
		} else if !domain.IsNotFound(err) {
			s.log.Warn("payment lookup failed during sweep", zap.String("booking_code", b.Code), zap.Error(err))
		}

		b.Status = domain.BookingStatusExpired
		s.publish(ctx, "booking_expired", &b)
		result.Expired++
	}

	if s.cache != nil && result.Expired > 0 {
		if err := s.cache.InvalidateDepartures(ctx); err != nil {
			s.log.Warn("failed to invalidate departures cache", zap.Error(err))
		}
	}
	return result, nil
}

func (s *BookingService) publish(ctx context.Context, eventType string, booking *domain.Booking) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.BookingEvent{
		Type:           eventType,
		BookingCode:    booking.Code,
		DepartureID:    booking.DepartureID,
		AccountID:      booking.AccountID,
		PassengerCount: booking.PassengerCount,
		Status:         string(booking.Status),
		ExpiresAt:      booking.ExpiresAt,
		OccurredAt:     time.Now(),
	}
	if err := s.producer.Publish(ctx, s.bookingTopic, booking.Code, event); err != nil {
		s.log.Warn("failed to publish booking event",
			zap.String("type", eventType), zap.String("booking_code", booking.Code), zap.Error(err))
	}
}

var _ BookingUseCase = (*BookingService)(nil)
