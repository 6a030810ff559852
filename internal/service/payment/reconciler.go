package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/Domenick1991/ferrybook/internal/gateway"
	"github.com/Domenick1991/ferrybook/internal/kafka"
	"github.com/Domenick1991/ferrybook/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// orderLockTTL bounds how long a crashed instance can hold a webhook
// processing lock.
const orderLockTTL = 30 * time.Second

type ReconcilerUseCase interface {
	Ingest(ctx context.Context, rawPayload []byte) (*ProcessingResult, error)
	Resync(ctx context.Context, bookingCode string) (*ProcessingResult, error)
}

type Locker interface {
	AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error)
	ReleaseOrderLock(ctx context.Context, orderID string) error
}

type TicketIssuer interface {
	IssueForBooking(ctx context.Context, bookingID int64) ([]domain.Ticket, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type ProcessingResult struct {
	TransactionID string
	OrderID       string
	Outcome       domain.WebhookOutcome
	PaymentStatus domain.PaymentStatus
	Replayed      bool
	Detail        string
}

// Reconciler is the only path by which a payment reaches a final status. It
// is safe against replayed, out-of-order and forged gateway notifications.
type Reconciler struct {
	payments     repository.PaymentRepository
	bookings     repository.BookingRepository
	webhooks     repository.WebhookRepository
	locker       Locker
	issuer       TicketIssuer
	gateway      Gateway
	producer     Producer
	log          *zap.Logger
	serverKey    string
	bookingTopic string
}

func NewReconciler(
	payments repository.PaymentRepository,
	bookings repository.BookingRepository,
	webhooks repository.WebhookRepository,
	locker Locker,
	issuer TicketIssuer,
	gw Gateway,
	producer Producer,
	log *zap.Logger,
	serverKey, bookingTopic string,
) *Reconciler {
	return &Reconciler{
		payments:     payments,
		bookings:     bookings,
		webhooks:     webhooks,
		locker:       locker,
		issuer:       issuer,
		gateway:      gw,
		producer:     producer,
		log:          log,
		serverKey:    serverKey,
		bookingTopic: bookingTopic,
	}
}

// statusMap translates the gateway's transaction vocabulary into ours.
var statusMap = map[string]domain.PaymentStatus{
	"capture":        domain.PaymentStatusSuccess,
	"settlement":     domain.PaymentStatusSuccess,
	"pending":        domain.PaymentStatusPending,
	"challenge":      domain.PaymentStatusChallenge,
	"deny":           domain.PaymentStatusDeny,
	"cancel":         domain.PaymentStatusCancelled,
	"expire":         domain.PaymentStatusExpired,
	"failure":        domain.PaymentStatusFailed,
	"refund":         domain.PaymentStatusRefunded,
	"partial_refund": domain.PaymentStatusRefunded,
}

// priorSettled reports whether a recorded delivery leaves nothing for a later
// notification carrying the same transaction id to do. Settlement and the
// terminal failure statuses settle the transaction; everything else may still
// progress.
func priorSettled(prior *domain.WebhookEvent) bool {
	if prior.Outcome != domain.WebhookOutcomeApplied {
		return false
	}
	status, ok := statusMap[strings.ToLower(prior.TxStatus)]
	if !ok {
		return false
	}
	return status == domain.PaymentStatusSuccess || status.Final()
}

// Ingest processes one inbound gateway notification: signature check, replay
// detection, then the amount cross-check and state transition. Every
// delivery is recorded in the audit store before returning, whatever the
// outcome.
func (r *Reconciler) Ingest(ctx context.Context, rawPayload []byte) (*ProcessingResult, error) {
	var tx gateway.TransactionStatus
	if err := json.Unmarshal(rawPayload, &tx); err != nil {
		return nil, fmt.Errorf("malformed notification payload: %w", err)
	}

	// Authenticity comes first: nothing below runs on a forged payload. The
	// rejection is recorded durably and acknowledged, so the gateway never
	// redelivers a notification whose signature will never verify. A failed
	// audit write is the one case that propagates, making the caller answer
	// non-200.
	if !gateway.VerifySignature(tx.OrderID, tx.StatusCode, tx.GrossAmount, r.serverKey, tx.SignatureKey) {
		txID := tx.TransactionID
		if txID == "" {
			txID = "unsigned-" + uuid.NewString()
		}
		event := &domain.WebhookEvent{
			TransactionID: txID,
			OrderID:       tx.OrderID,
			TxStatus:      tx.TransactionStatus,
			Outcome:       domain.WebhookOutcomeInvalidSignature,
			Detail:        "signature mismatch",
		}
		if err := r.webhooks.Record(ctx, event); err != nil {
			return nil, fmt.Errorf("record rejected notification: %w", err)
		}
		r.log.Warn("webhook rejected: invalid signature",
			zap.String("order_id", tx.OrderID), zap.String("transaction_id", tx.TransactionID))
		return &ProcessingResult{
			TransactionID: txID,
			OrderID:       tx.OrderID,
			Outcome:       domain.WebhookOutcomeInvalidSignature,
			Detail:        "signature mismatch",
		}, nil
	}

	if tx.TransactionID == "" {
		return nil, fmt.Errorf("malformed notification payload: missing transaction_id")
	}

	locked, err := r.locker.AcquireOrderLock(ctx, tx.OrderID, orderLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire order lock: %w", err)
	}
	if !locked {
		// Not yet recorded; the gateway will redeliver.
		return nil, domain.ErrWebhookBusy
	}
	defer func() {
		if err := r.locker.ReleaseOrderLock(ctx, tx.OrderID); err != nil {
			r.log.Warn("failed to release order lock", zap.String("order_id", tx.OrderID), zap.Error(err))
		}
	}()

	// Replay detection: only a transaction id already settled by a recorded
	// delivery short-circuits. The gateway reuses one transaction id across
	// a payment's lifecycle, so a row applied at a progressable status
	// (pending, challenge) must let the follow-up notification through, and
	// rejected or forged rows are re-evaluated rather than frozen.
	if prior, err := r.webhooks.GetByTransactionID(ctx, tx.TransactionID); err != nil {
		return nil, fmt.Errorf("replay lookup: %w", err)
	} else if prior != nil && priorSettled(prior) {
		if err := r.webhooks.BumpRetries(ctx, tx.TransactionID); err != nil {
			r.log.Warn("failed to bump webhook retries", zap.String("transaction_id", tx.TransactionID), zap.Error(err))
		}
		return &ProcessingResult{
			TransactionID: prior.TransactionID,
			OrderID:       prior.OrderID,
			Outcome:       prior.Outcome,
			Detail:        prior.Detail,
			Replayed:      true,
		}, nil
	}

	return r.apply(ctx, &tx)
}

// Resync re-queries the gateway for an order's authoritative status and
// applies it, for the case where a webhook was never delivered. Signature
// and replay checks are skipped: the response came from the gateway
// directly, and the point is to apply a status we may have missed.
func (r *Reconciler) Resync(ctx context.Context, bookingCode string) (*ProcessingResult, error) {
	booking, err := r.bookings.GetByCode(ctx, bookingCode)
	if err != nil {
		return nil, err
	}
	payment, err := r.payments.GetByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	tx, err := r.gateway.Status(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if tx.TransactionID == "" {
		tx.TransactionID = "resync-" + uuid.NewString()
	}

	locked, err := r.locker.AcquireOrderLock(ctx, tx.OrderID, orderLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire order lock: %w", err)
	}
	if !locked {
		return nil, domain.ErrWebhookBusy
	}
	defer func() {
		if err := r.locker.ReleaseOrderLock(ctx, tx.OrderID); err != nil {
			r.log.Warn("failed to release order lock", zap.String("order_id", tx.OrderID), zap.Error(err))
		}
	}()

	return r.apply(ctx, tx)
}

// apply runs the amount cross-check, the status-table transition and the
// success cascade for one authenticated gateway report.
func (r *Reconciler) apply(ctx context.Context, tx *gateway.TransactionStatus) (*ProcessingResult, error) {
	result := &ProcessingResult{TransactionID: tx.TransactionID, OrderID: tx.OrderID}

	payment, err := r.payments.GetByOrderID(ctx, tx.OrderID)
	if err != nil {
		if domain.IsNotFound(err) {
			result.Outcome = domain.WebhookOutcomeUnknownOrder
			result.Detail = "no payment for order"
			r.audit(ctx, tx.TransactionID, tx.OrderID, tx.TransactionStatus, result.Outcome, result.Detail)
			return result, nil
		}
		return nil, err
	}
	result.PaymentStatus = payment.Status

	gross, err := parseGrossAmount(tx.GrossAmount)
	if err != nil || gross != payment.AmountCents {
		result.Outcome = domain.WebhookOutcomeAmountMismatch
		result.Detail = fmt.Sprintf("notified %q, stored %s", tx.GrossAmount, domain.GrossAmount(payment.AmountCents))
		r.audit(ctx, tx.TransactionID, tx.OrderID, tx.TransactionStatus, result.Outcome, result.Detail)
		r.log.Warn("webhook rejected: amount mismatch",
			zap.String("order_id", tx.OrderID), zap.String("detail", result.Detail))
		return result, nil
	}

	target, ok := statusMap[strings.ToLower(tx.TransactionStatus)]
	if !ok {
		result.Outcome = domain.WebhookOutcomeRejected
		result.Detail = fmt.Sprintf("unknown transaction status %q", tx.TransactionStatus)
		r.audit(ctx, tx.TransactionID, tx.OrderID, tx.TransactionStatus, result.Outcome, result.Detail)
		return result, nil
	}

	if target == payment.Status {
		result.Outcome = domain.WebhookOutcomeApplied
		result.Detail = "no status change"
		r.audit(ctx, tx.TransactionID, tx.OrderID, tx.TransactionStatus, result.Outcome, result.Detail)
		return result, nil
	}

	if !payment.Status.CanTransitionTo(target) {
		result.Outcome = domain.WebhookOutcomeRejected
		result.Detail = fmt.Sprintf("illegal transition %s -> %s", payment.Status, target)
		r.audit(ctx, tx.TransactionID, tx.OrderID, tx.TransactionStatus, result.Outcome, result.Detail)
		r.log.Warn("webhook rejected: illegal transition",
			zap.String("order_id", tx.OrderID), zap.String("detail", result.Detail))
		return result, nil
	}

	applied, err := r.payments.TransitionStatus(ctx, payment.ID, payment.Status, target)
	if err != nil {
		return nil, err
	}
	if !applied {
		result.Outcome = domain.WebhookOutcomeRejected
		result.Detail = "payment status changed concurrently"
		r.audit(ctx, tx.TransactionID, tx.OrderID, tx.TransactionStatus, result.Outcome, result.Detail)
		return result, nil
	}
	result.PaymentStatus = target

	switch target {
	case domain.PaymentStatusSuccess:
		// Winner of the CAS above is the single caller allowed to confirm
		// the booking and issue tickets.
		if err := r.confirmAndIssue(ctx, payment.BookingID); err != nil {
			return nil, err
		}
	case domain.PaymentStatusRefunded:
		if _, err := r.bookings.TransitionStatus(ctx, payment.BookingID, domain.BookingStatusConfirmed, domain.BookingStatusRefunded, "gateway refund"); err != nil {
			return nil, err
		}
	}
	// FAILED, EXPIRED, DENY, CANCELLED leave the booking PENDING: the user
	// may retry payment until the hold expires.

	result.Outcome = domain.WebhookOutcomeApplied
	result.Detail = fmt.Sprintf("payment %s", target)
	r.audit(ctx, tx.TransactionID, tx.OrderID, tx.TransactionStatus, result.Outcome, result.Detail)
	return result, nil
}

func (r *Reconciler) confirmAndIssue(ctx context.Context, bookingID int64) error {
	confirmed, err := r.bookings.TransitionStatus(ctx, bookingID, domain.BookingStatusPending, domain.BookingStatusConfirmed, "")
	if err != nil {
		return err
	}
	booking, err := r.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if !confirmed && booking.Status != domain.BookingStatusConfirmed {
		return fmt.Errorf("%w: booking is %s, cannot confirm", domain.ErrIllegalTransition, booking.Status)
	}

	if _, err := r.issuer.IssueForBooking(ctx, bookingID); err != nil {
		return fmt.Errorf("ticket issuance: %w", err)
	}

	if r.producer != nil && r.bookingTopic != "" {
		event := kafka.BookingEvent{
			Type:           "payment_succeeded",
			BookingCode:    booking.Code,
			DepartureID:    booking.DepartureID,
			AccountID:      booking.AccountID,
			PassengerCount: booking.PassengerCount,
			Status:         string(domain.BookingStatusConfirmed),
			OccurredAt:     time.Now(),
		}
		if err := r.producer.Publish(ctx, r.bookingTopic, booking.Code, event); err != nil {
			r.log.Warn("failed to publish payment event",
				zap.String("booking_code", booking.Code), zap.Error(err))
		}
	}
	return nil
}

func (r *Reconciler) audit(ctx context.Context, txID, orderID, txStatus string, outcome domain.WebhookOutcome, detail string) {
	event := &domain.WebhookEvent{
		TransactionID: txID,
		OrderID:       orderID,
		TxStatus:      txStatus,
		Outcome:       outcome,
		Detail:        detail,
	}
	if err := r.webhooks.Record(ctx, event); err != nil {
		r.log.Error("failed to record webhook audit row",
			zap.String("transaction_id", txID), zap.String("order_id", orderID), zap.Error(err))
	}
}

// parseGrossAmount parses the gateway's "12345.00" money format to cents.
func parseGrossAmount(s string) (int64, error) {
	whole, frac, found := strings.Cut(s, ".")
	cents, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid gross amount %q", s)
	}
	cents *= 100
	if found {
		if len(frac) != 2 {
			return 0, fmt.Errorf("invalid gross amount %q", s)
		}
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid gross amount %q", s)
		}
		cents += f
	}
	return cents, nil
}

var _ ReconcilerUseCase = (*Reconciler)(nil)
