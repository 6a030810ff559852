package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByCode(ctx context.Context, code string) (*domain.Ticket, error)
	ListByBooking(ctx context.Context, bookingID int64) ([]domain.Ticket, error)
	// CheckIn moves VALID→USED as a conditional update; of two concurrent
	// scans only the first succeeds, the second observes false.
	CheckIn(ctx context.Context, code, operatorID string) (bool, error)
	// CancelValidByBooking voids all still-VALID tickets of a booking.
	CancelValidByBooking(ctx context.Context, bookingID int64) (int64, error)
}

type PGTicketRepository struct {
	db *pgxpool.Pool
}

func NewTicketRepository(db *pgxpool.Pool) TicketRepository {
	return &PGTicketRepository{db: db}
}

const ticketColumns = `id, code, booking_id, passenger_id, qr_payload, status, checked_in_at, checked_in_by, created_at, updated_at`

// IsUniqueViolation reports a duplicate-key insert, used by the issuance
// service to retry ticket code generation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PGTicketRepository) Create(ctx context.Context, t *domain.Ticket) error {
	t.Status = domain.TicketStatusValid
	return r.db.QueryRow(ctx, `INSERT INTO tickets (code, booking_id, passenger_id, qr_payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		t.Code, t.BookingID, t.PassengerID, t.QRPayload, t.Status).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *PGTicketRepository) GetByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	var t domain.Ticket
	var checkedInBy *string
	err := r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE code=$1`, code).
		Scan(&t.ID, &t.Code, &t.BookingID, &t.PassengerID, &t.QRPayload, &t.Status,
			&t.CheckedInAt, &checkedInBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	if checkedInBy != nil {
		t.CheckedInBy = *checkedInBy
	}
	return &t, nil
}

func (r *PGTicketRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE booking_id=$1 ORDER BY id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		var checkedInBy *string
		if err := rows.Scan(&t.ID, &t.Code, &t.BookingID, &t.PassengerID, &t.QRPayload,
			&t.Status, &t.CheckedInAt, &checkedInBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if checkedInBy != nil {
			t.CheckedInBy = *checkedInBy
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (r *PGTicketRepository) CheckIn(ctx context.Context, code, operatorID string) (bool, error) {
	res, err := r.db.Exec(ctx, `UPDATE tickets SET status='USED', checked_in_at=now(), checked_in_by=$2, updated_at=now()
		WHERE code=$1 AND status='VALID'`, code, operatorID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (r *PGTicketRepository) CancelValidByBooking(ctx context.Context, bookingID int64) (int64, error) {
	res, err := r.db.Exec(ctx, `UPDATE tickets SET status='CANCELLED', updated_at=now()
		WHERE booking_id=$1 AND status='VALID'`, bookingID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

var _ TicketRepository = (*PGTicketRepository)(nil)
