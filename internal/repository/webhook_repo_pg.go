package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookRepository is the append-only audit store for gateway
// notifications, keyed by the gateway transaction id. Rows are never
// rewritten after the processing outcome is recorded; redeliveries only
// increment the retry counter.
type WebhookRepository interface {
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.WebhookEvent, error)
	Record(ctx context.Context, event *domain.WebhookEvent) error
	BumpRetries(ctx context.Context, transactionID string) error
}

type PGWebhookRepository struct {
	db *pgxpool.Pool
}

func NewWebhookRepository(db *pgxpool.Pool) WebhookRepository {
	return &PGWebhookRepository{db: db}
}

func (r *PGWebhookRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	err := r.db.QueryRow(ctx, `SELECT id, transaction_id, order_id, tx_status, outcome, detail, retries, received_at
		FROM webhook_events WHERE transaction_id=$1`, transactionID).
		Scan(&e.ID, &e.TransactionID, &e.OrderID, &e.TxStatus, &e.Outcome, &e.Detail, &e.Retries, &e.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PGWebhookRepository) Record(ctx context.Context, e *domain.WebhookEvent) error {
	// A redelivery of an already-recorded transaction keeps the original
	// outcome and only bumps the retry counter.
	return r.db.QueryRow(ctx, `INSERT INTO webhook_events (transaction_id, order_id, tx_status, outcome, detail)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (transaction_id) DO UPDATE SET retries = webhook_events.retries + 1
		RETURNING id, received_at`,
		e.TransactionID, e.OrderID, e.TxStatus, e.Outcome, e.Detail).
		Scan(&e.ID, &e.ReceivedAt)
}

func (r *PGWebhookRepository) BumpRetries(ctx context.Context, transactionID string) error {
	_, err := r.db.Exec(ctx, `UPDATE webhook_events SET retries = retries + 1 WHERE transaction_id=$1`, transactionID)
	return err
}

var _ WebhookRepository = (*PGWebhookRepository)(nil)
