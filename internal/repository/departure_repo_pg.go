package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DepartureRepository reads the inventory ledger. Mutation of
// available_seats happens only inside booking transactions (see
// BookingRepository), so a booking can never change status with its seat
// movement lost.
type DepartureRepository interface {
	List(ctx context.Context) ([]domain.Departure, error)
	GetByID(ctx context.Context, id int64) (*domain.Departure, error)
}

type PGDepartureRepository struct {
	db *pgxpool.Pool
}

func NewDepartureRepository(db *pgxpool.Pool) DepartureRepository {
	return &PGDepartureRepository{db: db}
}

const departureColumns = `id, route, departure_time, status, total_seats, available_seats, price_cents, created_at, updated_at`

func (r *PGDepartureRepository) List(ctx context.Context) ([]domain.Departure, error) {
	rows, err := r.db.Query(ctx, `SELECT `+departureColumns+` FROM departures ORDER BY departure_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	departures := make([]domain.Departure, 0)
	for rows.Next() {
		var d domain.Departure
		if err := scanDeparture(rows, &d); err != nil {
			return nil, err
		}
		departures = append(departures, d)
	}
	return departures, rows.Err()
}

func (r *PGDepartureRepository) GetByID(ctx context.Context, id int64) (*domain.Departure, error) {
	row := r.db.QueryRow(ctx, `SELECT `+departureColumns+` FROM departures WHERE id=$1`, id)
	var d domain.Departure
	if err := scanDeparture(row, &d); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDepartureNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanDeparture(row pgx.Row, d *domain.Departure) error {
	return row.Scan(&d.ID, &d.Route, &d.DepartureTime, &d.Status, &d.TotalSeats,
		&d.AvailableSeats, &d.PriceCents, &d.CreatedAt, &d.UpdatedAt)
}

var _ DepartureRepository = (*PGDepartureRepository)(nil)
