package api

import (
	"io"
	"net/http"
	"time"

	"github.com/Domenick1991/ferrybook/internal/service/payment"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	intents    payment.IntentUseCase
	reconciler payment.ReconcilerUseCase
	log        *zap.Logger
}

type intentResponse struct {
	OrderID     string `json:"order_id"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
	AmountCents int64  `json:"amount_cents"`
	ExpiresAt   string `json:"expires_at"`
	Cached      bool   `json:"cached"`
}

func NewPaymentHandler(intents payment.IntentUseCase, reconciler payment.ReconcilerUseCase, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{intents: intents, reconciler: reconciler, log: log}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup, admin *gin.RouterGroup) {
	router.POST("/bookings/:code/payment", h.createIntent)
	router.POST("/payments/webhook", h.webhook)
	admin.POST("/payments/:code/resync", h.resync)
}

func (h *PaymentHandler) createIntent(c *gin.Context) {
	force := c.Query("force") == "true"

	intent, err := h.intents.CreateIntent(c.Request.Context(), c.Param("code"), force)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, intentResponse{
		OrderID:     intent.OrderID,
		Token:       intent.Token,
		RedirectURL: intent.RedirectURL,
		AmountCents: intent.AmountCents,
		ExpiresAt:   intent.ExpiresAt.Format(time.RFC3339),
		Cached:      intent.Cached,
	})
}

// webhook ingests a gateway notification. Once the delivery is durably
// recorded the gateway gets 200 regardless of whether the transition was
// applied; rejections are logged and audited, not surfaced, so the gateway
// does not retry-storm over outcomes that will never change.
func (h *PaymentHandler) webhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	result, err := h.reconciler.Ingest(c.Request.Context(), payload)
	if err != nil {
		// Not recorded as processed: a non-200 makes the gateway redeliver.
		h.log.Warn("webhook ingest failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification not processed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"outcome":  string(result.Outcome),
		"replayed": result.Replayed,
	})
}

func (h *PaymentHandler) resync(c *gin.Context) {
	result, err := h.reconciler.Resync(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome":        string(result.Outcome),
		"payment_status": string(result.PaymentStatus),
		"detail":         result.Detail,
	})
}
