package domain

import "time"

// WebhookOutcome is the recorded processing result of one gateway
// notification. The audit row is written for every delivery, accepted or not.
type WebhookOutcome string

const (
	WebhookOutcomeApplied          WebhookOutcome = "APPLIED"
	WebhookOutcomeRejected         WebhookOutcome = "REJECTED"
	WebhookOutcomeAmountMismatch   WebhookOutcome = "AMOUNT_MISMATCH"
	WebhookOutcomeInvalidSignature WebhookOutcome = "INVALID_SIGNATURE"
	WebhookOutcomeUnknownOrder     WebhookOutcome = "UNKNOWN_ORDER"
)

type WebhookEvent struct {
	ID            int64
	TransactionID string
	OrderID       string
	TxStatus      string
	Outcome       WebhookOutcome
	Detail        string
	Retries       int
	ReceivedAt    time.Time
}
