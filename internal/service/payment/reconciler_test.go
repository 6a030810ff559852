package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/Domenick1991/ferrybook/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

const testServerKey = "test-server-key"

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) CreateWithReservation(ctx context.Context, booking *domain.Booking, passengers []domain.Passenger) error {
	args := m.Called(ctx, booking, passengers)
	return args.Error(0)
}

func (m *MockBookingRepository) GetByCode(ctx context.Context, code string) (*domain.Booking, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListPassengers(ctx context.Context, bookingID int64) ([]domain.Passenger, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).([]domain.Passenger), args.Error(1)
}

func (m *MockBookingRepository) TransitionStatus(ctx context.Context, bookingID int64, from, to domain.BookingStatus, reason string) (bool, error) {
	args := m.Called(ctx, bookingID, from, to, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepository) TransitionStatusReleasing(ctx context.Context, bookingID int64, from, to domain.BookingStatus, reason string, departureID int64, seats int) (bool, error) {
	args := m.Called(ctx, bookingID, from, to, reason, departureID, seats)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepository) ExpireIfDueReleasing(ctx context.Context, bookingID int64, departureID int64, seats int) (bool, error) {
	args := m.Called(ctx, bookingID, departureID, seats)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepository) ListExpirable(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, deadline)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) SetPassengerSeat(ctx context.Context, passengerID int64, label string) error {
	args := m.Called(ctx, passengerID, label)
	return args.Error(0)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Upsert(ctx context.Context, payment *domain.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetByBookingID(ctx context.Context, bookingID int64) (*domain.Payment, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) TransitionStatus(ctx context.Context, paymentID int64, from, to domain.PaymentStatus) (bool, error) {
	args := m.Called(ctx, paymentID, from, to)
	return args.Bool(0), args.Error(1)
}

type MockWebhookRepository struct {
	mock.Mock
}

func (m *MockWebhookRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.WebhookEvent, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WebhookEvent), args.Error(1)
}

func (m *MockWebhookRepository) Record(ctx context.Context, event *domain.WebhookEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockWebhookRepository) BumpRetries(ctx context.Context, transactionID string) error {
	args := m.Called(ctx, transactionID)
	return args.Error(0)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, orderID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) ReleaseOrderLock(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

type MockTicketIssuer struct {
	mock.Mock
}

func (m *MockTicketIssuer) IssueForBooking(ctx context.Context, bookingID int64) ([]domain.Ticket, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).([]domain.Ticket), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResponse, []byte, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*gateway.ChargeResponse), args.Get(1).([]byte), args.Error(2)
}

func (m *MockGateway) Status(ctx context.Context, orderID string) (*gateway.TransactionStatus, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.TransactionStatus), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func newTestReconciler() (*Reconciler, *MockPaymentRepository, *MockBookingRepository, *MockWebhookRepository, *MockLocker, *MockTicketIssuer, *MockGateway, *MockProducer) {
	payments := &MockPaymentRepository{}
	bookings := &MockBookingRepository{}
	webhooks := &MockWebhookRepository{}
	locker := &MockLocker{}
	issuer := &MockTicketIssuer{}
	gw := &MockGateway{}
	producer := &MockProducer{}

	r := &Reconciler{
		payments:     payments,
		bookings:     bookings,
		webhooks:     webhooks,
		locker:       locker,
		issuer:       issuer,
		gateway:      gw,
		producer:     producer,
		log:          zap.NewNop(),
		serverKey:    testServerKey,
		bookingTopic: "booking_topic",
	}
	return r, payments, bookings, webhooks, locker, issuer, gw, producer
}

// signedNotification builds a webhook payload with a valid signature.
func signedNotification(t *testing.T, txID, orderID, status, statusCode, grossAmount string) []byte {
	t.Helper()
	tx := gateway.TransactionStatus{
		TransactionID:     txID,
		OrderID:           orderID,
		TransactionStatus: status,
		StatusCode:        statusCode,
		GrossAmount:       grossAmount,
		SignatureKey:      gateway.Signature(orderID, statusCode, grossAmount, testServerKey),
	}
	payload, err := json.Marshal(tx)
	assert.NoError(t, err)
	return payload
}

func TestReconciler_Ingest_InvalidSignature(t *testing.T) {
	r, payments, _, webhooks, locker, _, _, _ := newTestReconciler()
	ctx := context.Background()

	tx := gateway.TransactionStatus{
		TransactionID:     "tx-1",
		OrderID:           "FB-BK1",
		TransactionStatus: "settlement",
		StatusCode:        "200",
		GrossAmount:       "150000.00",
		SignatureKey:      "forged",
	}
	payload, _ := json.Marshal(tx)

	webhooks.On("Record", ctx, mock.MatchedBy(func(e *domain.WebhookEvent) bool {
		return e.TransactionID == "tx-1" && e.Outcome == domain.WebhookOutcomeInvalidSignature
	})).Return(nil).Once()

	result, err := r.Ingest(ctx, payload)

	// Recorded and acknowledged: the gateway must not redeliver a payload
	// whose signature will never verify.
	assert.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeInvalidSignature, result.Outcome)

	webhooks.AssertExpectations(t)
	locker.AssertNotCalled(t, "AcquireOrderLock")
	payments.AssertNotCalled(t, "TransitionStatus")
}

func TestReconciler_Ingest_InvalidSignature_AuditFailure(t *testing.T) {
	r, _, _, webhooks, locker, _, _, _ := newTestReconciler()
	ctx := context.Background()

	tx := gateway.TransactionStatus{
		TransactionID:     "tx-1",
		OrderID:           "FB-BK1",
		TransactionStatus: "settlement",
		StatusCode:        "200",
		GrossAmount:       "150000.00",
		SignatureKey:      "forged",
	}
	payload, _ := json.Marshal(tx)

	webhooks.On("Record", ctx, mock.Anything).Return(errors.New("database error")).Once()

	result, err := r.Ingest(ctx, payload)

	// Nothing durable happened, so the error propagates and the gateway
	// redelivers.
	assert.Error(t, err)
	assert.Nil(t, result)
	locker.AssertNotCalled(t, "AcquireOrderLock")
}

func TestReconciler_Ingest_MalformedPayload(t *testing.T) {
	r, _, _, _, _, _, _, _ := newTestReconciler()

	result, err := r.Ingest(context.Background(), []byte("not json"))

	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestReconciler_Ingest_Busy(t *testing.T) {
	r, _, _, _, locker, _, _, _ := newTestReconciler()
	ctx := context.Background()

	payload := signedNotification(t, "tx-1", "FB-BK1", "settlement", "200", "150000.00")
	locker.On("AcquireOrderLock", ctx, "FB-BK1", orderLockTTL).Return(false, nil).Once()

	result, err := r.Ingest(ctx, payload)

	assert.ErrorIs(t, err, domain.ErrWebhookBusy)
	assert.Nil(t, result)
	locker.AssertExpectations(t)
}

func TestReconciler_Ingest_Replay(t *testing.T) {
	r, payments, _, webhooks, locker, _, _, _ := newTestReconciler()
	ctx := context.Background()

	payload := signedNotification(t, "tx-1", "FB-BK1", "settlement", "200", "150000.00")

	prior := &domain.WebhookEvent{
		TransactionID: "tx-1",
		OrderID:       "FB-BK1",
		TxStatus:      "settlement",
		Outcome:       domain.WebhookOutcomeApplied,
		Detail:        "payment SUCCESS",
	}

	locker.On("AcquireOrderLock", ctx, "FB-BK1", orderLockTTL).Return(true, nil).Once()
	locker.On("ReleaseOrderLock", ctx, "FB-BK1").Return(nil).Once()
	webhooks.On("GetByTransactionID", ctx, "tx-1").Return(prior, nil).Once()
	webhooks.On("BumpRetries", ctx, "tx-1").Return(nil).Once()

	result, err := r.Ingest(ctx, payload)

	assert.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.Equal(t, domain.WebhookOutcomeApplied, result.Outcome)

	// Side effects of the original delivery are not re-applied.
	payments.AssertNotCalled(t, "TransitionStatus")
	webhooks.AssertExpectations(t)
}

func TestReconciler_Ingest_SettlementAfterPendingAudit(t *testing.T) {
	r, payments, bookings, webhooks, locker, issuer, _, producer := newTestReconciler()
	ctx := context.Background()

	// The gateway keeps one transaction id across a payment's lifecycle, so
	// the settlement arrives under the id already audited for the "pending"
	// delivery. It must go through the full cascade, not be swallowed as a
	// replay.
	payload := signedNotification(t, "tx-1", "FB-BK1", "settlement", "200", "150000.00")

	prior := &domain.WebhookEvent{
		TransactionID: "tx-1",
		OrderID:       "FB-BK1",
		TxStatus:      "pending",
		Outcome:       domain.WebhookOutcomeApplied,
		Detail:        "no status change",
	}
	payment := &domain.Payment{ID: 7, BookingID: 1, OrderID: "FB-BK1", AmountCents: 15000000, Status: domain.PaymentStatusPending}
	booking := &domain.Booking{ID: 1, Code: "BK1", Status: domain.BookingStatusConfirmed}

	locker.On("AcquireOrderLock", ctx, "FB-BK1", orderLockTTL).Return(true, nil).Once()
	locker.On("ReleaseOrderLock", ctx, "FB-BK1").Return(nil).Once()
	webhooks.On("GetByTransactionID", ctx, "tx-1").Return(prior, nil).Once()
	payments.On("GetByOrderID", ctx, "FB-BK1").Return(payment, nil).Once()
	payments.On("TransitionStatus", ctx, int64(7), domain.PaymentStatusPending, domain.PaymentStatusSuccess).Return(true, nil).Once()
	bookings.On("TransitionStatus", ctx, int64(1), domain.BookingStatusPending, domain.BookingStatusConfirmed, "").Return(true, nil).Once()
	bookings.On("GetByID", ctx, int64(1)).Return(booking, nil).Once()
	issuer.On("IssueForBooking", ctx, int64(1)).Return([]domain.Ticket{{Code: "TCK-1"}}, nil).Once()
	producer.On("Publish", ctx, "booking_topic", "BK1", mock.Anything).Return(nil).Once()
	webhooks.On("Record", ctx, mock.Anything).Return(nil).Once()

	result, err := r.Ingest(ctx, payload)

	assert.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, domain.WebhookOutcomeApplied, result.Outcome)
	assert.Equal(t, domain.PaymentStatusSuccess, result.PaymentStatus)

	payments.AssertExpectations(t)
	issuer.AssertExpectations(t)
}

func TestReconciler_Ingest_SettlementAfterChallengeAudit(t *testing.T) {
	r, payments, bookings, webhooks, locker, issuer, _, producer := newTestReconciler()
	ctx := context.Background()

	payload := signedNotification(t, "tx-1", "FB-BK1", "settlement", "200", "150000.00")

	prior := &domain.WebhookEvent{
		TransactionID: "tx-1",
		OrderID:       "FB-BK1",
		TxStatus:      "challenge",
		Outcome:       domain.WebhookOutcomeApplied,
		Detail:        "payment CHALLENGE",
	}
	payment := &domain.Payment{ID: 7, BookingID: 1, OrderID: "FB-BK1", AmountCents: 15000000, Status: domain.PaymentStatusChallenge}
	booking := &domain.Booking{ID: 1, Code: "BK1", Status: domain.BookingStatusConfirmed}

	locker.On("AcquireOrderLock", ctx, "FB-BK1", orderLockTTL).Return(true, nil).Once()
	locker.On("ReleaseOrderLock", ctx, "FB-BK1").Return(nil).Once()
	webhooks.On("GetByTransactionID", ctx, "tx-1").Return(prior, nil).Once()
	payments.On("GetByOrderID", ctx, "FB-BK1").Return(payment, nil).Once()
	payments.On("TransitionStatus", ctx, int64(7), domain.PaymentStatusChallenge, domain.PaymentStatusSuccess).Return(true, nil).Once()
	bookings.On("TransitionStatus", ctx, int64(1), domain.BookingStatusPending, domain.BookingStatusConfirmed, "").Return(true, nil).Once()
	bookings.On("GetByID", ctx, int64(1)).Return(booking, nil).Once()
	issuer.On("IssueForBooking", ctx, int64(1)).Return([]domain.Ticket{{Code: "TCK-1"}}, nil).Once()
	producer.On("Publish", ctx, "booking_topic", "BK1", mock.Anything).Return(nil).Once()
	webhooks.On("Record", ctx, mock.Anything).Return(nil).Once()

	result, err := r.Ingest(ctx, payload)

	assert.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, domain.PaymentStatusSuccess, result.PaymentStatus)
	payments.AssertExpectations(t)
}

func TestReconciler_Ingest_ForgedRowDoesNotBlockGenuine(t *testing.T) {
	r, payments, bookings, webhooks, locker, issuer, _, producer := newTestReconciler()
	ctx := context.Background()

	payload := signedNotification(t, "tx-1", "FB-BK1", "settlement", "200", "150000.00")

	// An earlier forged delivery reused this transaction id; its audit row
	// must not short-circuit the genuine notification.
	prior := &domain.WebhookEvent{
		TransactionID: "tx-1",
		OrderID:       "FB-BK1",
		Outcome:       domain.WebhookOutcomeInvalidSignature,
	}
	payment := &domain.Payment{ID: 7, BookingID: 1, OrderID: "FB-BK1", AmountCents: 15000000, Status: domain.PaymentStatusPending}
	booking := &domain.Booking{ID: 1, Code: "BK1", Status: domain.BookingStatusConfirmed}

	locker.On("AcquireOrderLock", ctx, "FB-BK1", orderLockTTL).Return(true, nil).Once()
	locker.On("ReleaseOrderLock", ctx, "FB-BK1").Return(nil).Once()
	webhooks.On("GetByTransactionID", ctx, "tx-1").Return(prior, nil).Once()
	payments.On("GetByOrderID", ctx, "FB-BK1").Return(payment, nil).Once()
	payments.On("TransitionStatus", ctx, int64(7), domain.PaymentStatusPending, domain.PaymentStatusSuccess).Return(true, nil).Once()
	bookings.On("TransitionStatus", ctx, int64(1), domain.BookingStatusPending, domain.BookingStatusConfirmed, "").Return(true, nil).Once()
	bookings.On("GetByID", ctx, int64(1)).Return(booking, nil).Once()
	issuer.On("IssueForBooking", ctx, int64(1)).Return([]domain.Ticket{{Code: "TCK-1"}}, nil).Once()
	producer.On("Publish", ctx, "booking_topic", "BK1", mock.Anything).Return(nil).Once()
	webhooks.On("Record", ctx, mock.Anything).Return(nil).Once()

	result, err := r.Ingest(ctx, payload)

	assert.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, domain.WebhookOutcomeApplied, result.Outcome)
	assert.Equal(t, domain.PaymentStatusSuccess, result.PaymentStatus)
}

func TestReconciler_Ingest_UnknownOrder(t *testing.T) {
	r, payments, _, webhooks, locker, _, _, _ := newTestReconciler()
	ctx := context.Background()

	payload := signedNotification(t, "tx-1", "FB-unknown", "settlement", "200", "150000.00")

	locker.On("AcquireOrderLock", ctx, "FB-unknown", orderLockTTL).Return(true, nil).Once()
	locker.On("ReleaseOrderLock", ctx, "FB-unknown").Return(nil).Once()
	webhooks.On("GetByTransactionID", ctx, "tx-1").Return(nil, nil).Once()
	payments.On("GetByOrderID", ctx, "FB-unknown").Return(nil, domain.ErrPaymentNotFound).Once()
	webhooks.On("Record", ctx, mock.MatchedBy(func(e *domain.WebhookEvent) bool {
		return e.Outcome == domain.WebhookOutcomeUnknownOrder
	})).Return(nil).Once()

	result, err := r.Ingest(ctx, payload)

	assert.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeUnknownOrder, result.Outcome)
	webhooks.AssertExpectations(t)
}

func TestReconciler_Ingest_AmountMismatch(t *testing.T) {
	r, payments, bookings, webhooks, locker, _, _, _ := newTestReconciler()
	ctx := context.Background()

	// Signature is valid over the notified amount; only the stored amount
	// disagrees.
	payload := signedNotification(t, "tx-1", "FB-BK1", "settlement", "200", "1.00")
	payment := &domain.Payment{ID: 7, BookingID: 1, OrderID: "FB-BK1", AmountCents: 15000000, Status: domain.PaymentStatusPending}

	locker.On("AcquireOrderLock", ctx, "FB-BK1", orderLockTTL).Return(true, nil).Once()
	locker.On("ReleaseOrderLock", ctx, "FB-BK1").Return(nil).Once()
	webhooks.On("GetByTransactionID", ctx, "tx-1").Return(nil, nil).Once()
	payments.On("GetByOrderID", ctx, "FB-BK1").Return(payment, nil).Once()
	webhooks.On("Record", ctx, mock.MatchedBy(func(e *domain.WebhookEvent) bool {
		return e.Outcome == domain.WebhookOutcomeAmountMismatch
	})).Return(nil).Once()

	result, err := r.Ingest(ctx, payload)

	assert.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeAmountMismatch, result.Outcome)

	payments.AssertNotCalled(t, "TransitionStatus")
	bookings.AssertNotCalled(t, "TransitionStatus")
}

func TestReconciler_Ingest_SettlementConfirmsAndIssues(t *testing.T) {
	r, payments, bookings, webhooks, locker, issuer, _, producer := newTestReconciler()
	ctx := context.Background()

	payload := signedNotification(t, "tx-1", "FB-BK1", "settlement", "200", "150000.00")
	payment := &domain.Payment{ID: 7, BookingID: 1, OrderID: "FB-BK1", AmountCents: 15000000, Status: domain.PaymentStatusPending}
	booking := &domain.Booking{ID: 1, Code: "BK1", DepartureID: 4, Status: domain.BookingStatusConfirmed}

	locker.On("AcquireOrderLock", ctx, "FB-BK1", orderLockTTL).Return(true, nil).Once()
	locker.On("ReleaseOrderLock", ctx, "FB-BK1").Return(nil).Once()
	webhooks.On("GetByTransactionID", ctx, "tx-1").Return(nil, nil).Once()
	payments.On("GetByOrderID", ctx, "FB-BK1").Return(payment, nil).Once()
	payments.On("TransitionStatus", ctx, int64(7), domain.PaymentStatusPending, domain.PaymentStatusSuccess).Return(true, nil).Once()
	bookings.On("TransitionStatus", ctx, int64(1), domain.BookingStatusPending, domain.BookingStatusConfirmed, "").Return(true, nil).Once()
	bookings.On("GetByID", ctx, int64(1)).Return(booking, nil).Once()
	issuer.On("IssueForBooking", ctx, int64(1)).Return([]domain.Ticket{{Code: "TCK-1"}}, nil).Once()
	producer.On("Publish", ctx, "booking_topic", "BK1", mock.Anything).Return(nil).Once()
	webhooks.On("Record", ctx, mock.MatchedBy(func(e *domain.WebhookEvent) bool {
		return e.Outcome == domain.WebhookOutcomeApplied
	})).Return(nil).Once()

	result, err := r.Ingest(ctx, payload)

	assert.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeApplied, result.Outcome)
	assert.Equal(t, domain.PaymentStatusSuccess, result.PaymentStatus)

	payments.AssertExpectations(t)
	bookings.AssertExpectations(t)
	issuer.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestReconciler_Ingest_IllegalTransition(t *testing.T) {
	r, payments, bookings, webhooks, locker, issuer, _, _ := newTestReconciler()
	ctx := context.Background()

	// A settlement for a payment that already failed must not resurrect it.
	payload := signedNotification(t, "tx-2", "FB-BK1", "settlement", "200", "150000.00")
	payment := &domain.Payment{ID: 7, BookingID: 1, OrderID: "FB-BK1", AmountCents: 15000000, Status: domain.PaymentStatusFailed}

	locker.On("AcquireOrderLock", ctx, "FB-BK1", orderLockTTL).Return(true, nil).Once()
	locker.On("ReleaseOrderLock", ctx, "FB-BK1").Return(nil).Once()
	webhooks.On("GetByTransactionID", ctx, "tx-2").Return(nil, nil).Once()
	payments.On("GetByOrderID", ctx, "FB-BK1").Return(payment, nil).Once()
	webhooks.On("Record", ctx, mock.MatchedBy(func(e *domain.WebhookEvent) bool {
		return e.Outcome == domain.WebhookOutcomeRejected
	})).Return(nil).Once()

	result, err := r.Ingest(ctx, payload)

	assert.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeRejected, result.Outcome)

	payments.AssertNotCalled(t, "TransitionStatus")
	bookings.AssertNotCalled(t, "TransitionStatus")
	issuer.AssertNotCalled(t, "IssueForBooking")
}

func TestReconciler_Ingest_NoStatusChange(t *testing.T) {
	r, payments, _, webhooks, locker, issuer, _, _ := newTestReconciler()
	ctx := context.Background()

	payload := signedNotification(t, "tx-3", "FB-BK1", "settlement", "200", "150000.00")
	payment := &domain.Payment{ID: 7, BookingID: 1, OrderID: "FB-BK1", AmountCents: 15000000, Status: domain.PaymentStatusSuccess}

	locker.On("AcquireOrderLock", ctx, "FB-BK1", orderLockTTL).Return(true, nil).Once()
	locker.On("ReleaseOrderLock", ctx, "FB-BK1").Return(nil).Once()
	webhooks.On("GetByTransactionID", ctx, "tx-3").Return(nil, nil).Once()
	payments.On("GetByOrderID", ctx, "FB-BK1").Return(payment, nil).Once()
	webhooks.On("Record", ctx, mock.Anything).Return(nil).Once()

	result, err := r.Ingest(ctx, payload)

	assert.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeApplied, result.Outcome)
	assert.Equal(t, "no status change", result.Detail)

	payments.AssertNotCalled(t, "TransitionStatus")
	issuer.AssertNotCalled(t, "IssueForBooking")
}

func TestReconciler_Ingest_UnknownStatusVocabulary(t *testing.T) {
	r, payments, _, webhooks, locker, _, _, _ := newTestReconciler()
	ctx := context.Background()

	payload := signedNotification(t, "tx-4", "FB-BK1", "authorize", "200", "150000.00")
	payment := &domain.Payment{ID: 7, BookingID: 1, OrderID: "FB-BK1", AmountCents: 15000000, Status: domain.PaymentStatusPending}

	locker.On("AcquireOrderLock", ctx, "FB-BK1", orderLockTTL).Return(true, nil).Once()
	locker.On("ReleaseOrderLock", ctx, "FB-BK1").Return(nil).Once()
	webhooks.On("GetByTransactionID", ctx, "tx-4").Return(nil, nil).Once()
	payments.On("GetByOrderID", ctx, "FB-BK1").Return(payment, nil).Once()
	webhooks.On("Record", ctx, mock.MatchedBy(func(e *domain.WebhookEvent) bool {
		return e.Outcome == domain.WebhookOutcomeRejected
	})).Return(nil).Once()

	result, err := r.Ingest(ctx, payload)

	assert.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeRejected, result.Outcome)
	payments.AssertNotCalled(t, "TransitionStatus")
}

func TestReconciler_Resync_AppliesGatewayStatus(t *testing.T) {
	r, payments, bookings, webhooks, locker, _, gw, _ := newTestReconciler()
	ctx := context.Background()

	booking := &domain.Booking{ID: 1, Code: "BK1", Status: domain.BookingStatusPending}
	payment := &domain.Payment{ID: 7, BookingID: 1, OrderID: "FB-BK1", AmountCents: 15000000, Status: domain.PaymentStatusPending}
	tx := &gateway.TransactionStatus{
		TransactionID:     "tx-9",
		OrderID:           "FB-BK1",
		TransactionStatus: "expire",
		StatusCode:        "407",
		GrossAmount:       "150000.00",
	}

	bookings.On("GetByCode", ctx, "BK1").Return(booking, nil).Once()
	payments.On("GetByBookingID", ctx, int64(1)).Return(payment, nil).Once()
	gw.On("Status", ctx, "FB-BK1").Return(tx, nil).Once()
	locker.On("AcquireOrderLock", ctx, "FB-BK1", orderLockTTL).Return(true, nil).Once()
	locker.On("ReleaseOrderLock", ctx, "FB-BK1").Return(nil).Once()
	payments.On("GetByOrderID", ctx, "FB-BK1").Return(payment, nil).Once()
	payments.On("TransitionStatus", ctx, int64(7), domain.PaymentStatusPending, domain.PaymentStatusExpired).Return(true, nil).Once()
	webhooks.On("Record", ctx, mock.Anything).Return(nil).Once()

	result, err := r.Resync(ctx, "BK1")

	assert.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeApplied, result.Outcome)
	assert.Equal(t, domain.PaymentStatusExpired, result.PaymentStatus)

	gw.AssertExpectations(t)
	payments.AssertExpectations(t)
}

func TestParseGrossAmount(t *testing.T) {
	testCases := []struct {
		in      string
		cents   int64
		wantErr bool
	}{
		{"150000.00", 15000000, false},
		{"1.23", 123, false},
		{"0.05", 5, false},
		{"42", 4200, false},
		{"1.2", 0, true},
		{"1.234", 0, true},
		{"abc", 0, true},
		{"1.ab", 0, true},
		{"", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			cents, err := parseGrossAmount(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.cents, cents)
		})
	}
}
