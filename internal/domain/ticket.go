package domain

import "time"

type TicketStatus string

const (
	TicketStatusValid     TicketStatus = "VALID"
	TicketStatusUsed      TicketStatus = "USED"
	TicketStatusCancelled TicketStatus = "CANCELLED"
)

var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusValid: {TicketStatusUsed, TicketStatusCancelled},
}

func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, allowed := range ticketTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Ticket struct {
	ID          int64
	Code        string
	BookingID   int64
	PassengerID int64
	QRPayload   string
	Status      TicketStatus
	CheckedInAt *time.Time
	CheckedInBy string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
