package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Domenick1991/ferrybook/config"
	"github.com/Domenick1991/ferrybook/internal/domain"
)

// ChargeRequest opens a transaction on the gateway for the exact booking
// amount. ExpiryMinutes caps how long the issued token stays payable.
type ChargeRequest struct {
	OrderID       string `json:"order_id"`
	GrossAmount   string `json:"gross_amount"`
	ExpiryMinutes int    `json:"expiry_minutes"`
	Description   string `json:"description"`
}

type ChargeResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// TransactionStatus is the gateway's authoritative view of one order, as
// returned by both the notification webhook and the status query endpoint.
type TransactionStatus struct {
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	SettlementTime    string `json:"settlement_time,omitempty"`
}

type Client struct {
	baseURL   string
	serverKey string
	http      *http.Client
}

func NewClient(cfg config.GatewayConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		serverKey: cfg.ServerKey,
		http:      &http.Client{Timeout: timeout},
	}
}

// Charge opens a payment transaction. Transport failures and unexpected
// response shapes surface as ErrGatewayUnavailable so callers treat them as
// retryable, never as a decline.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, []byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/charge", bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("%w: charge returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, nil, fmt.Errorf("%w: read charge response: %v", domain.ErrGatewayUnavailable, err)
	}
	raw := buf.Bytes()

	var out ChargeResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.Token == "" {
		return nil, nil, fmt.Errorf("%w: unexpected charge response", domain.ErrGatewayUnavailable)
	}
	return &out, raw, nil
}

// Status queries the gateway directly for an order's current transaction
// state. Used by the manual resync path when a webhook never arrived.
func (c *Client) Status(ctx context.Context, orderID string) (*TransactionStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/"+orderID+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrPaymentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}

	var out TransactionStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: unexpected status response", domain.ErrGatewayUnavailable)
	}
	return &out, nil
}
