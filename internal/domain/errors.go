package domain

import "errors"

var (
	// Not found
	ErrDepartureNotFound = errors.New("departure not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrTicketNotFound    = errors.New("ticket not found")

	// Validation
	ErrNoPassengers      = errors.New("at least one passenger is required")
	ErrTooManyPassengers = errors.New("passenger count exceeds per-booking limit")
	ErrInvalidPassenger  = errors.New("passenger name and identity number are required")

	// Conflict
	ErrInsufficientSeats    = errors.New("insufficient seats available")
	ErrDepartureNotBookable = errors.New("departure is not open for booking")
	ErrIllegalTransition    = errors.New("illegal status transition")
	ErrBookingExpired       = errors.New("booking hold has expired")
	ErrAlreadyPaid          = errors.New("booking already has a successful payment")
	ErrTicketAlreadyUsed    = errors.New("ticket already used")
	ErrCodeCollision        = errors.New("code generation retries exhausted")

	// Authorization
	ErrNotAllowed = errors.New("actor is not allowed to perform this action")

	// Gateway / webhook
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrWebhookBusy        = errors.New("webhook for this order is being processed")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrDepartureNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrTicketNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrNoPassengers) ||
		errors.Is(err, ErrTooManyPassengers) ||
		errors.Is(err, ErrInvalidPassenger)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientSeats) ||
		errors.Is(err, ErrDepartureNotBookable) ||
		errors.Is(err, ErrIllegalTransition) ||
		errors.Is(err, ErrBookingExpired) ||
		errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrTicketAlreadyUsed) ||
		errors.Is(err, ErrCodeCollision)
}

func IsAuth(err error) bool {
	return errors.Is(err, ErrNotAllowed)
}

func IsGateway(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}
