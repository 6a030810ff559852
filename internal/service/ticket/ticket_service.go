package ticket

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

// codeAttempts bounds retries on ticket code collisions; exhausting them
// fails loudly instead of overwriting anything.
const codeAttempts = 5

var seatLetters = []string{"A", "B", "C", "D"}

type TicketUseCase interface {
	IssueForBooking(ctx context.Context, bookingID int64) ([]domain.Ticket, error)
	Validate(ctx context.Context, ticketCode string) (*ValidationResult, error)
	CheckIn(ctx context.Context, ticketCode, operatorID string) (*CheckInResult, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type ValidationResult struct {
	OK             bool
	Reason         string
	Ticket         *domain.Ticket
	Passenger      *domain.Passenger
	BookingCode    string
	DepartureTime  time.Time
	CheckedInAt    *time.Time
	HoursUntilOpen float64
}

type CheckInResult struct {
	Ticket      *domain.Ticket
	Validation  *ValidationResult
	CheckedInAt time.Time
}

type TicketService struct {
	tickets      repository.TicketRepository
	bookings     repository.BookingRepository
	departures   repository.DepartureRepository
	producer     Producer
	log          *zap.Logger
	secret       []byte
	openBefore   time.Duration
	closeAfter   time.Duration
	bookingTopic string
}

func NewTicketService(
	tickets repository.TicketRepository,
	bookings repository.BookingRepository,
	departures repository.DepartureRepository,
	producer Producer,
	log *zap.Logger,
	secret []byte,
	openBefore, closeAfter time.Duration,
	bookingTopic string,
) *TicketService {
	if openBefore <= 0 {
		openBefore = 3 * time.Hour
	}
	if closeAfter <= 0 {
		closeAfter = time.Hour
	}
	return &TicketService{
		tickets:      tickets,
		bookings:     bookings,
		departures:   departures,
		producer:     producer,
		log:          log,
		secret:       secret,
		openBefore:   openBefore,
		closeAfter:   closeAfter,
		bookingTopic: bookingTopic,
	}
}

// IssueForBooking creates one ticket per passenger of a confirmed booking.
// Passengers that already hold a ticket are skipped, so a retried webhook
// cascade never double-issues.
func (s *TicketService) IssueForBooking(ctx context.Context, bookingID int64) ([]domain.Ticket, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != domain.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: booking is %s, tickets require CONFIRMED", domain.ErrIllegalTransition, booking.Status)
	}

	departure, err := s.departures.GetByID(ctx, booking.DepartureID)
	if err != nil {
		return nil, err
	}
	passengers, err := s.bookings.ListPassengers(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	existing, err := s.tickets.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	ticketed := make(map[int64]bool, len(existing))
	for _, t := range existing {
		ticketed[t.PassengerID] = true
	}

	issued := make([]domain.Ticket, 0, len(passengers))
	for i, p := range passengers {
		if ticketed[p.ID] {
			continue
		}

		if p.SeatLabel == "" {
			p.SeatLabel = seatLabel(i)
			if err := s.bookings.SetPassengerSeat(ctx, p.ID, p.SeatLabel); err != nil {
				return issued, err
			}
		}

		ticket, err := s.createWithRetry(ctx, booking, departure, &p)
		if err != nil {
			return issued, err
		}
		issued = append(issued, *ticket)
	}

	if len(issued) > 0 {
		s.log.Info("tickets issued",
			zap.String("booking_code", booking.Code), zap.Int("count", len(issued)))
		s.publish(ctx, "tickets_issued", booking)
	}
	return issued, nil
}

func (s *TicketService) createWithRetry(ctx context.Context, booking *domain.Booking, departure *domain.Departure, p *domain.Passenger) (*domain.Ticket, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code := shortuuid.New()
		payload, err := EncodeQR(qrClaims{
			TicketCode:    code,
			BookingCode:   booking.Code,
			PassengerName: p.FullName,
			DepartureID:   departure.ID,
			DepartureTime: departure.DepartureTime,
		}, s.secret)
		if err != nil {
			return nil, err
		}

		ticket := &domain.Ticket{
			Code:        code,
			BookingID:   booking.ID,
			PassengerID: p.ID,
			QRPayload:   payload,
		}
		err = s.tickets.Create(ctx, ticket)
		if err == nil {
			return ticket, nil
		}
		if !repository.IsUniqueViolation(err) {
			return nil, err
		}
		s.log.Warn("ticket code collision, retrying",
			zap.String("booking_code", booking.Code), zap.Int("attempt", attempt+1))
	}
	return nil, domain.ErrCodeCollision
}

// Validate previews whether a ticket can be redeemed right now. Read-only;
// rejection reasons follow a fixed priority so gate operators always see the
// most fundamental problem first.
func (s *TicketService) Validate(ctx context.Context, ticketCode string) (*ValidationResult, error) {
	ticket, err := s.tickets.GetByCode(ctx, ticketCode)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{Ticket: ticket}

	booking, err := s.bookings.GetByID(ctx, ticket.BookingID)
	if err != nil {
		return nil, err
	}
	result.BookingCode = booking.Code

	departure, err := s.departures.GetByID(ctx, booking.DepartureID)
	if err != nil {
		return nil, err
	}
	result.DepartureTime = departure.DepartureTime

	switch {
	case ticket.Status == domain.TicketStatusUsed:
		result.Reason = "ticket already used"
		result.CheckedInAt = ticket.CheckedInAt
	case ticket.Status == domain.TicketStatusCancelled:
		result.Reason = "ticket cancelled"
	case booking.Status != domain.BookingStatusConfirmed:
		result.Reason = fmt.Sprintf("booking is %s, not confirmed", booking.Status)
	case departure.Status == domain.DepartureStatusCancelled:
		result.Reason = "departure cancelled"
	default:
		now := time.Now()
		opens := departure.DepartureTime.Add(-s.openBefore)
		closes := departure.DepartureTime.Add(s.closeAfter)
		switch {
		case now.Before(opens):
			result.HoursUntilOpen = opens.Sub(now).Hours()
			result.Reason = fmt.Sprintf("check-in opens in %.1f hours", result.HoursUntilOpen)
		case now.After(closes):
			result.Reason = "check-in window closed"
		default:
			result.OK = true
		}
	}

	if result.OK {
		passengers, err := s.bookings.ListPassengers(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		for i := range passengers {
			if passengers[i].ID == ticket.PassengerID {
				result.Passenger = &passengers[i]
				break
			}
		}
	}
	return result, nil
}

// CheckIn redeems a ticket at the gate. The VALID→USED flip is a conditional
// update: of two simultaneous scans of the same code exactly one succeeds and
// the other observes "already used".
func (s *TicketService) CheckIn(ctx context.Context, ticketCode, operatorID string) (*CheckInResult, error) {
	validation, err := s.Validate(ctx, ticketCode)
	if err != nil {
		return nil, err
	}
	if !validation.OK {
		if validation.Ticket.Status == domain.TicketStatusUsed {
			return &CheckInResult{Ticket: validation.Ticket, Validation: validation}, domain.ErrTicketAlreadyUsed
		}
		return &CheckInResult{Ticket: validation.Ticket, Validation: validation},
			fmt.Errorf("%w: %s", domain.ErrIllegalTransition, validation.Reason)
	}

	applied, err := s.tickets.CheckIn(ctx, ticketCode, operatorID)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent scan got there first.
		return &CheckInResult{Ticket: validation.Ticket, Validation: validation}, domain.ErrTicketAlreadyUsed
	}

	ticket, err := s.tickets.GetByCode(ctx, ticketCode)
	if err != nil {
		return nil, err
	}

	booking, err := s.bookings.GetByID(ctx, ticket.BookingID)
	if err == nil {
		s.publish(ctx, "ticket_checked_in", booking)
	}

	checkedInAt := time.Now()
	if ticket.CheckedInAt != nil {
		checkedInAt = *ticket.CheckedInAt
	}
	return &CheckInResult{Ticket: ticket, Validation: validation, CheckedInAt: checkedInAt}, nil
}

func (s *TicketService) publish(ctx context.Context, eventType string, booking *domain.Booking) {
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
		OccurredAt:     time.Now(),
	}
	if err := s.producer.Publish(ctx, s.bookingTopic, booking.Code, event); err != nil {
		s.log.Warn("failed to publish ticket event",
			zap.String("type", eventType), zap.String("booking_code", booking.Code), zap.Error(err))
	}
}

func seatLabel(ordinal int) string {
	row := ordinal/len(seatLetters) + 1
	return fmt.Sprintf("%d%s", row, seatLetters[ordinal%len(seatLetters)])
}

var _ TicketUseCase = (*TicketService)(nil)
