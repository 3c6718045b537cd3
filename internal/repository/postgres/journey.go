package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/repository"
)

const journeyColumns = `reference_id, journey_code, source_city, destination_city,
	departure_time, arrival_time, base_fare_cents, total_seats, available_seats,
	is_active, vehicle_ref, route_name, version, created_at, updated_at`

type JourneyRepo struct {
	pool Pool
	db   DB
}

func (r *JourneyRepo) With(db DB) *JourneyRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *JourneyRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a journey.
//
// Returns:
//   - error: repository.ErrConflict if the journey code is already taken.
func (r *JourneyRepo) Create(ctx context.Context, j *domain.Journey) error {
	const op = "postgres.JourneyRepo.Create"

	if err := r.handle().QueryRow(ctx,
		`INSERT INTO journeys(reference_id, journey_code, source_city, destination_city,
			departure_time, arrival_time, base_fare_cents, total_seats, available_seats,
			is_active, vehicle_ref, route_name)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING version, created_at, updated_at`,
		j.ID, j.Code, j.SourceCity, j.DestinationCity,
		j.DepartureTime, j.ArrivalTime, j.BaseFareCents, j.TotalSeats, j.AvailableSeats,
		j.IsActive, j.VehicleRef, j.RouteName,
	).Scan(&j.Version, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *JourneyRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Journey, error) {
	const op = "postgres.JourneyRepo.Get"

	j, err := scanJourney(r.handle().QueryRow(ctx,
		`SELECT `+journeyColumns+` FROM journeys WHERE reference_id = $1`, id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return j, nil
}

func (r *JourneyRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Journey, error) {
	const op = "postgres.JourneyRepo.GetForUpdate"

	j, err := scanJourney(r.handle().QueryRow(ctx,
		`SELECT `+journeyColumns+` FROM journeys WHERE reference_id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return j, nil
}

// AdjustAvailable moves the available seat counter by delta. A result
// outside [0, total_seats] violates the table check and returns
// repository.ErrConflict.
func (r *JourneyRepo) AdjustAvailable(ctx context.Context, id uuid.UUID, delta int) error {
	const op = "postgres.JourneyRepo.AdjustAvailable"

	tag, err := r.handle().Exec(ctx,
		`UPDATE journeys
		 SET available_seats = available_seats + $2,
		     version = version + 1,
		     updated_at = now()
		 WHERE reference_id = $1`,
		id, delta,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func scanJourney(row pgx.Row) (*domain.Journey, error) {
	var j domain.Journey
	if err := row.Scan(
		&j.ID, &j.Code, &j.SourceCity, &j.DestinationCity,
		&j.DepartureTime, &j.ArrivalTime, &j.BaseFareCents, &j.TotalSeats, &j.AvailableSeats,
		&j.IsActive, &j.VehicleRef, &j.RouteName, &j.Version, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &j, nil
}
