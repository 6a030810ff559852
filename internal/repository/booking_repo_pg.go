package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookingRepository interface {
	// CreateWithReservation persists the booking and its passengers and
	// decrements departure inventory in one transaction. The decrement is a
	// conditional UPDATE; on contention for the last seats only one caller's
	// transaction applies.
	CreateWithReservation(ctx context.Context, booking *domain.Booking, passengers []domain.Passenger) error
	GetByCode(ctx context.Context, code string) (*domain.Booking, error)
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	ListPassengers(ctx context.Context, bookingID int64) ([]domain.Passenger, error)
	// TransitionStatus applies from→to as a compare-and-swap on the status
	// column. Returns false when the booking was no longer in `from`.
	TransitionStatus(ctx context.Context, bookingID int64, from, to domain.BookingStatus, reason string) (bool, error)
	// TransitionStatusReleasing is TransitionStatus plus the seat credit back
	// to the departure, in one transaction. Either the booking leaves `from`
	// with its seats returned, or nothing changes.
	TransitionStatusReleasing(ctx context.Context, bookingID int64, from, to domain.BookingStatus, reason string, departureID int64, seats int) (bool, error)
	// ExpireIfDueReleasing moves one booking PENDING→EXPIRED only if its
	// deadline has passed at write time, crediting its seats back in the same
	// transaction. Returns false when the booking moved on already.
	ExpireIfDueReleasing(ctx context.Context, bookingID int64, departureID int64, seats int) (bool, error)
	// ListExpirable returns PENDING bookings past their deadline whose
	// payment, if any, is not SUCCESS.
	ListExpirable(ctx context.Context, deadline time.Time) ([]domain.Booking, error)
	SetPassengerSeat(ctx context.Context, passengerID int64, label string) error
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, code, departure_id, account_id, passenger_count, total_cents, status, created_at, expires_at, confirmed_at, cancelled_at, cancellation_reason, updated_at`

func (r *PGBookingRepository) CreateWithReservation(ctx context.Context, booking *domain.Booking, passengers []domain.Passenger) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, `UPDATE departures
		SET available_seats = available_seats - $2, updated_at = now()
		WHERE id = $1 AND status = 'SCHEDULED' AND departure_time > now() AND available_seats >= $2`,
		booking.DepartureID, booking.PassengerCount)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return r.classifyReserveFailure(ctx, tx, booking.DepartureID)
	}

	booking.Status = domain.BookingStatusPending
	if err := tx.QueryRow(ctx, `INSERT INTO bookings (code, departure_id, account_id, passenger_count, total_cents, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		booking.Code, booking.DepartureID, booking.AccountID, booking.PassengerCount,
		booking.TotalCents, booking.Status, booking.ExpiresAt).
		Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt); err != nil {
		return err
	}

	for i := range passengers {
		passengers[i].BookingID = booking.ID
		if err := tx.QueryRow(ctx, `INSERT INTO passengers (booking_id, full_name, identity_no, seat_label)
			VALUES ($1, $2, $3, $4) RETURNING id`,
			passengers[i].BookingID, passengers[i].FullName, passengers[i].IdentityNo, passengers[i].SeatLabel).
			Scan(&passengers[i].ID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PGBookingRepository) classifyReserveFailure(ctx context.Context, tx pgx.Tx, departureID int64) error {
	var d domain.Departure
	err := scanDeparture(tx.QueryRow(ctx, `SELECT `+departureColumns+` FROM departures WHERE id=$1`, departureID), &d)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrDepartureNotFound
	}
	if err != nil {
		return err
	}
	if !d.Bookable(nowFunc()) {
		return domain.ErrDepartureNotBookable
	}
	return domain.ErrInsufficientSeats
}

func (r *PGBookingRepository) GetByCode(ctx context.Context, code string) (*domain.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE code=$1`, code)
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
}

func (r *PGBookingRepository) get(ctx context.Context, query string, arg interface{}) (*domain.Booking, error) {
	var b domain.Booking
	var reason *string
	err := r.db.QueryRow(ctx, query, arg).Scan(&b.ID, &b.Code, &b.DepartureID, &b.AccountID,
		&b.PassengerCount, &b.TotalCents, &b.Status, &b.CreatedAt, &b.ExpiresAt,
		&b.ConfirmedAt, &b.CancelledAt, &reason, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	if reason != nil {
		b.CancellationReason = *reason
	}
	return &b, nil
}

func (r *PGBookingRepository) ListPassengers(ctx context.Context, bookingID int64) ([]domain.Passenger, error) {
	rows, err := r.db.Query(ctx, `SELECT id, booking_id, full_name, identity_no, seat_label FROM passengers WHERE booking_id=$1 ORDER BY id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var passengers []domain.Passenger
	for rows.Next() {
		var p domain.Passenger
		if err := rows.Scan(&p.ID, &p.BookingID, &p.FullName, &p.IdentityNo, &p.SeatLabel); err != nil {
			return nil, err
		}
		passengers = append(passengers, p)
	}
	return passengers, rows.Err()
}

func (r *PGBookingRepository) TransitionStatus(ctx context.Context, bookingID int64, from, to domain.BookingStatus, reason string) (bool, error) {
	res, err := r.db.Exec(ctx, `UPDATE bookings SET status=$3, updated_at=now(),
		confirmed_at = CASE WHEN $3 = 'CONFIRMED' THEN now() ELSE confirmed_at END,
		cancelled_at = CASE WHEN $3 = 'CANCELLED' THEN now() ELSE cancelled_at END,
		cancellation_reason = COALESCE(NULLIF($4, ''), cancellation_reason)
		WHERE id=$1 AND status=$2`,
		bookingID, from, to, reason)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (r *PGBookingRepository) TransitionStatusReleasing(ctx context.Context, bookingID int64, from, to domain.BookingStatus, reason string, departureID int64, seats int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, `UPDATE bookings SET status=$3, updated_at=now(),
		cancelled_at = CASE WHEN $3 = 'CANCELLED' THEN now() ELSE cancelled_at END,
		cancellation_reason = COALESCE(NULLIF($4, ''), cancellation_reason)
		WHERE id=$1 AND status=$2`,
		bookingID, from, to, reason)
	if err != nil {
		return false, err
	}
	if res.RowsAffected() == 0 {
		return false, nil
	}
	if err := releaseSeats(ctx, tx, departureID, seats); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *PGBookingRepository) ExpireIfDueReleasing(ctx context.Context, bookingID int64, departureID int64, seats int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, `UPDATE bookings SET status='EXPIRED', updated_at=now()
		WHERE id=$1 AND status='PENDING' AND expires_at <= now()`, bookingID)
	if err != nil {
		return false, err
	}
	if res.RowsAffected() == 0 {
		return false, nil
	}
	if err := releaseSeats(ctx, tx, departureID, seats); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// releaseSeats credits seats back inside the caller's transaction. The guard
// against exceeding total_seats catches double-release bugs at the storage
// layer.
func releaseSeats(ctx context.Context, tx pgx.Tx, departureID int64, seats int) error {
	res, err := tx.Exec(ctx, `UPDATE departures
		SET available_seats = available_seats + $2, updated_at = now()
		WHERE id = $1 AND available_seats + $2 <= total_seats`,
		departureID, seats)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return errors.New("seat release would exceed total seats")
	}
	return nil
}

func (r *PGBookingRepository) ListExpirable(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT b.id, b.code, b.departure_id, b.account_id, b.passenger_count, b.total_cents, b.status, b.created_at, b.expires_at, b.confirmed_at, b.cancelled_at, b.cancellation_reason, b.updated_at
		FROM bookings b
		WHERE b.status = 'PENDING' AND b.expires_at <= $1
		AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.booking_id = b.id AND p.status = 'SUCCESS')
		ORDER BY b.expires_at`, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		var reason *string
		if err := rows.Scan(&b.ID, &b.Code, &b.DepartureID, &b.AccountID, &b.PassengerCount,
			&b.TotalCents, &b.Status, &b.CreatedAt, &b.ExpiresAt, &b.ConfirmedAt,
			&b.CancelledAt, &reason, &b.UpdatedAt); err != nil {
			return nil, err
		}
		if reason != nil {
			b.CancellationReason = *reason
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (r *PGBookingRepository) SetPassengerSeat(ctx context.Context, passengerID int64, label string) error {
	_, err := r.db.Exec(ctx, `UPDATE passengers SET seat_label=$2 WHERE id=$1`, passengerID, label)
	return err
}

var _ BookingRepository = (*PGBookingRepository)(nil)
