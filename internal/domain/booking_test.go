package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBookingStatus_CanTransitionTo(t *testing.T) {
	testCases := []struct {
		name    string
		from    BookingStatus
		to      BookingStatus
		allowed bool
	}{
		{"pending to confirmed", BookingStatusPending, BookingStatusConfirmed, true},
		{"pending to cancelled", BookingStatusPending, BookingStatusCancelled, true},
		{"pending to expired", BookingStatusPending, BookingStatusExpired, true},
		{"pending to refunded", BookingStatusPending, BookingStatusRefunded, false},
		{"pending to completed", BookingStatusPending, BookingStatusCompleted, false},
		{"confirmed to cancelled", BookingStatusConfirmed, BookingStatusCancelled, true},
		{"confirmed to completed", BookingStatusConfirmed, BookingStatusCompleted, true},
		{"confirmed to refunded", BookingStatusConfirmed, BookingStatusRefunded, true},
		{"confirmed to expired", BookingStatusConfirmed, BookingStatusExpired, false},
		{"confirmed to pending", BookingStatusConfirmed, BookingStatusPending, false},
		{"cancelled to refunded", BookingStatusCancelled, BookingStatusRefunded, true},
		{"cancelled to confirmed", BookingStatusCancelled, BookingStatusConfirmed, false},
		{"completed to refunded", BookingStatusCompleted, BookingStatusRefunded, true},
		{"expired is terminal", BookingStatusExpired, BookingStatusConfirmed, false},
		{"refunded is terminal", BookingStatusRefunded, BookingStatusCancelled, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestBookingStatus_Terminal(t *testing.T) {
	assert.False(t, BookingStatusPending.Terminal())
	assert.False(t, BookingStatusConfirmed.Terminal())
	assert.True(t, BookingStatusCancelled.Terminal())
	assert.True(t, BookingStatusExpired.Terminal())
	assert.True(t, BookingStatusCompleted.Terminal())
	assert.True(t, BookingStatusRefunded.Terminal())
}

func TestActor_MayCancel(t *testing.T) {
	now := time.Now()
	lead := 2 * time.Hour

	owner := Actor{AccountID: "acc-1"}
	stranger := Actor{AccountID: "acc-2"}
	admin := Actor{AccountID: "ops", Admin: true}

	pending := &Booking{AccountID: "acc-1", Status: BookingStatusPending}
	confirmed := &Booking{AccountID: "acc-1", Status: BookingStatusConfirmed}
	expired := &Booking{AccountID: "acc-1", Status: BookingStatusExpired}

	farDeparture := now.Add(6 * time.Hour)
	soonDeparture := now.Add(time.Hour)

	// Owner may always drop a pending hold.
	assert.True(t, owner.MayCancel(pending, soonDeparture, now, lead))

	// A paid booking is only cancellable before the cutoff.
	assert.True(t, owner.MayCancel(confirmed, farDeparture, now, lead))
	assert.False(t, owner.MayCancel(confirmed, soonDeparture, now, lead))

	// Someone else's booking is off limits regardless of timing.
	assert.False(t, stranger.MayCancel(pending, farDeparture, now, lead))
	assert.False(t, stranger.MayCancel(confirmed, farDeparture, now, lead))

	// Admins bypass ownership and the cutoff but not terminal states.
	assert.True(t, admin.MayCancel(confirmed, soonDeparture, now, lead))
	assert.True(t, admin.MayCancel(pending, soonDeparture, now, lead))
	assert.False(t, admin.MayCancel(expired, farDeparture, now, lead))

	assert.False(t, owner.MayCancel(expired, farDeparture, now, lead))
}
