package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/Domenick1991/ferrybook/internal/service/payment"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockIntentUseCase struct {
	mock.Mock
}

func (m *MockIntentUseCase) CreateIntent(ctx context.Context, bookingCode string, force bool) (*payment.Intent, error) {
	args := m.Called(ctx, bookingCode, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Intent), args.Error(1)
}

type MockReconcilerUseCase struct {
	mock.Mock
}

func (m *MockReconcilerUseCase) Ingest(ctx context.Context, rawPayload []byte) (*payment.ProcessingResult, error) {
	args := m.Called(ctx, rawPayload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ProcessingResult), args.Error(1)
}

func (m *MockReconcilerUseCase) Resync(ctx context.Context, bookingCode string) (*payment.ProcessingResult, error) {
	args := m.Called(ctx, bookingCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ProcessingResult), args.Error(1)
}

func newPaymentHandler() (*PaymentHandler, *MockIntentUseCase, *MockReconcilerUseCase) {
	intents := &MockIntentUseCase{}
	reconciler := &MockReconcilerUseCase{}
	return NewPaymentHandler(intents, reconciler, zap.NewNop()), intents, reconciler
}

func TestPaymentHandler_createIntent(t *testing.T) {
	handler, intents, _ := newPaymentHandler()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "code", Value: "BK1"}}
	c.Request = httptest.NewRequest("POST", "/api/v1/bookings/BK1/payment", nil)

	intent := &payment.Intent{
		OrderID:     "FB-BK1",
		Token:       "tok-1",
		RedirectURL: "https://pay.example/tok-1",
		AmountCents: 15000000,
		ExpiresAt:   time.Now().Add(10 * time.Minute),
	}
	intents.On("CreateIntent", c.Request.Context(), "BK1", false).Return(intent, nil)

	handler.createIntent(c)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response intentResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "FB-BK1", response.OrderID)
	assert.Equal(t, "tok-1", response.Token)
	assert.False(t, response.Cached)

	intents.AssertExpectations(t)
}

func TestPaymentHandler_createIntent_Force(t *testing.T) {
	handler, intents, _ := newPaymentHandler()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "code", Value: "BK1"}}
	c.Request = httptest.NewRequest("POST", "/api/v1/bookings/BK1/payment?force=true", nil)

	intent := &payment.Intent{OrderID: "FB-BK1-a1b2c3d4", Token: "tok-2"}
	intents.On("CreateIntent", c.Request.Context(), "BK1", true).Return(intent, nil)

	handler.createIntent(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	intents.AssertExpectations(t)
}

func TestPaymentHandler_createIntent_AlreadyPaid(t *testing.T) {
	handler, intents, _ := newPaymentHandler()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "code", Value: "BK1"}}
	c.Request = httptest.NewRequest("POST", "/api/v1/bookings/BK1/payment", nil)

	intents.On("CreateIntent", c.Request.Context(), "BK1", false).Return(nil, domain.ErrAlreadyPaid)

	handler.createIntent(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPaymentHandler_createIntent_GatewayDown(t *testing.T) {
	handler, intents, _ := newPaymentHandler()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "code", Value: "BK1"}}
	c.Request = httptest.NewRequest("POST", "/api/v1/bookings/BK1/payment", nil)

	intents.On("CreateIntent", c.Request.Context(), "BK1", false).Return(nil, domain.ErrGatewayUnavailable)

	handler.createIntent(c)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestPaymentHandler_webhook_Processed(t *testing.T) {
	handler, _, reconciler := newPaymentHandler()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	payload := []byte(`{"transaction_id":"tx-1","order_id":"FB-BK1"}`)
	c.Request = httptest.NewRequest("POST", "/api/v1/payments/webhook", bytes.NewReader(payload))

	result := &payment.ProcessingResult{
		TransactionID: "tx-1",
		OrderID:       "FB-BK1",
		Outcome:       domain.WebhookOutcomeApplied,
	}
	reconciler.On("Ingest", c.Request.Context(), payload).Return(result, nil)

	handler.webhook(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, true, response["received"])
	assert.Equal(t, string(domain.WebhookOutcomeApplied), response["outcome"])
}

func TestPaymentHandler_webhook_RejectedStill200(t *testing.T) {
	handler, _, reconciler := newPaymentHandler()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	payload := []byte(`{"transaction_id":"tx-1","order_id":"FB-BK1"}`)
	c.Request = httptest.NewRequest("POST", "/api/v1/payments/webhook", bytes.NewReader(payload))

	// Recorded as rejected; the gateway must not redeliver a notification
	// whose outcome will never change.
	result := &payment.ProcessingResult{Outcome: domain.WebhookOutcomeAmountMismatch}
	reconciler.On("Ingest", c.Request.Context(), payload).Return(result, nil)

	handler.webhook(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPaymentHandler_webhook_NotProcessed(t *testing.T) {
	handler, _, reconciler := newPaymentHandler()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	payload := []byte(`{"transaction_id":"tx-1","order_id":"FB-BK1"}`)
	c.Request = httptest.NewRequest("POST", "/api/v1/payments/webhook", bytes.NewReader(payload))

	reconciler.On("Ingest", c.Request.Context(), payload).Return(nil, domain.ErrWebhookBusy)

	handler.webhook(c)

	// Non-200 so the gateway redelivers.
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPaymentHandler_resync(t *testing.T) {
	handler, _, reconciler := newPaymentHandler()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Params = gin.Params{{Key: "code", Value: "BK1"}}
	c.Request = httptest.NewRequest("POST", "/api/v1/admin/payments/BK1/resync", nil)

	result := &payment.ProcessingResult{
		Outcome:       domain.WebhookOutcomeApplied,
		PaymentStatus: domain.PaymentStatusSuccess,
		Detail:        "payment SUCCESS",
	}
	reconciler.On("Resync", c.Request.Context(), "BK1").Return(result, nil)

	handler.resync(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, string(domain.PaymentStatusSuccess), response["payment_status"])
}
