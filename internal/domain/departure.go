package domain

import "time"

type DepartureStatus string

const (
	DepartureStatusScheduled DepartureStatus = "SCHEDULED"
	DepartureStatusCancelled DepartureStatus = "CANCELLED"
	DepartureStatusDeparted  DepartureStatus = "DEPARTED"
)

type Departure struct {
	ID             int64
	Route          string
	DepartureTime  time.Time
	Status         DepartureStatus
	TotalSeats     int
	AvailableSeats int
	PriceCents     int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Bookable reports whether new bookings may be taken for the departure.
func (d *Departure) Bookable(now time.Time) bool {
	return d.Status == DepartureStatusScheduled && d.DepartureTime.After(now)
}
