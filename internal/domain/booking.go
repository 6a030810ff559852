package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusExpired   BookingStatus = "EXPIRED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusRefunded  BookingStatus = "REFUNDED"
)

// bookingTransitions is the single source of truth for legal booking
// status changes. Anything not listed is rejected with ErrIllegalTransition.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired},
	BookingStatusConfirmed: {BookingStatusCancelled, BookingStatusCompleted, BookingStatusRefunded},
	BookingStatusCancelled: {BookingStatusRefunded},
	BookingStatusCompleted: {BookingStatusRefunded},
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether a booking in this status no longer holds seats.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusExpired ||
		s == BookingStatusRefunded || s == BookingStatusCompleted
}

type Booking struct {
	ID                 int64
	Code               string
	DepartureID        int64
	AccountID          string
	PassengerCount     int
	TotalCents         int64
	Status             BookingStatus
	CreatedAt          time.Time
	ExpiresAt          time.Time
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason string
	UpdatedAt          time.Time
}

type Passenger struct {
	ID         int64
	BookingID  int64
	FullName   string
	IdentityNo string
	SeatLabel  string
}

// Actor identifies who requested a booking mutation.
type Actor struct {
	AccountID string
	Admin     bool
}

func (a Actor) MayCancel(b *Booking, departureTime, now time.Time, leadTime time.Duration) bool {
	if a.Admin {
		return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
	}
	if a.AccountID != b.AccountID {
		return false
	}
	switch b.Status {
	case BookingStatusPending:
		return true
	case BookingStatusConfirmed:
		return departureTime.Sub(now) > leadTime
	default:
		return false
	}
}
