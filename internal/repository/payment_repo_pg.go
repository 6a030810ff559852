package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepository interface {
	// Upsert persists the payment keyed by booking id. Re-invocation before
	// the prior token expires must pass the existing row back through
	// GetByBookingID first; Upsert overwrites token, order id and raw
	// response but never the amount.
	Upsert(ctx context.Context, payment *domain.Payment) error
	GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	GetByBookingID(ctx context.Context, bookingID int64) (*domain.Payment, error)
	// TransitionStatus applies from→to as a compare-and-swap, stamping
	// paid_at on the first transition into SUCCESS. Returns false when the
	// payment was no longer in `from`.
	TransitionStatus(ctx context.Context, paymentID int64, from, to domain.PaymentStatus) (bool, error)
}

type PGPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) PaymentRepository {
	return &PGPaymentRepository{db: db}
}

const paymentColumns = `id, booking_id, order_id, amount_cents, status, token, redirect_url, raw_response, expired_at, paid_at, created_at, updated_at`

func (r *PGPaymentRepository) Upsert(ctx context.Context, p *domain.Payment) error {
	return r.db.QueryRow(ctx, `INSERT INTO payments (booking_id, order_id, amount_cents, status, token, redirect_url, raw_response, expired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (booking_id) DO UPDATE SET
			order_id = EXCLUDED.order_id,
			status = EXCLUDED.status,
			token = EXCLUDED.token,
			redirect_url = EXCLUDED.redirect_url,
			raw_response = EXCLUDED.raw_response,
			expired_at = EXCLUDED.expired_at,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		p.BookingID, p.OrderID, p.AmountCents, p.Status, p.Token, p.RedirectURL, p.RawResponse, p.ExpiredAt).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PGPaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.get(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id=$1`, orderID)
}

func (r *PGPaymentRepository) GetByBookingID(ctx context.Context, bookingID int64) (*domain.Payment, error) {
	return r.get(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id=$1`, bookingID)
}

func (r *PGPaymentRepository) get(ctx context.Context, query string, arg interface{}) (*domain.Payment, error) {
	var p domain.Payment
	err := r.db.QueryRow(ctx, query, arg).Scan(&p.ID, &p.BookingID, &p.OrderID, &p.AmountCents,
		&p.Status, &p.Token, &p.RedirectURL, &p.RawResponse, &p.ExpiredAt, &p.PaidAt,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PGPaymentRepository) TransitionStatus(ctx context.Context, paymentID int64, from, to domain.PaymentStatus) (bool, error) {
	var paidAt *time.Time
	if to == domain.PaymentStatusSuccess {
		now := nowFunc()
		paidAt = &now
	}
	res, err := r.db.Exec(ctx, `UPDATE payments SET status=$3, updated_at=now(),
		paid_at = COALESCE($4, paid_at)
		WHERE id=$1 AND status=$2`,
		paymentID, from, to, paidAt)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

var _ PaymentRepository = (*PGPaymentRepository)(nil)
