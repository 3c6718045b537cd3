package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/busgo/internal/domain"
)

const seatColumns = `reference_id, journey_id, seat_number, seat_type, is_available,
	is_ladies_seat, fare_multiplier, booking_reference_id, locked_at, version`

type SeatRepo struct {
	pool Pool
	db   DB
}

func (r *SeatRepo) With(db DB) *SeatRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SeatRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *SeatRepo) BatchCreate(ctx context.Context, seats []domain.SeatInventory) error {
	const op = "postgres.SeatRepo.BatchCreate"

	batch := &pgx.Batch{}
	for _, s := range seats {
		batch.Queue(
			`INSERT INTO seat_inventory(reference_id, journey_id, seat_number, seat_type,
				is_available, is_ladies_seat, fare_multiplier)
			 VALUES ($1, $2, $3, $4, TRUE, $5, $6)`,
			s.ID, s.JourneyID, s.SeatNumber, string(s.SeatType), s.IsLadiesSeat, s.FareMultiplier,
		)
	}
	if err := r.handle().SendBatch(ctx, batch).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *SeatRepo) List(ctx context.Context, journeyID uuid.UUID, ids []uuid.UUID) ([]domain.SeatInventory, error) {
	const op = "postgres.SeatRepo.List"

	var (
		rows pgx.Rows
		err  error
	)
	if len(ids) == 0 {
		rows, err = r.handle().Query(ctx,
			`SELECT `+seatColumns+` FROM seat_inventory
			 WHERE journey_id = $1
			 ORDER BY seat_number`,
			journeyID,
		)
	} else {
		rows, err = r.handle().Query(ctx,
			`SELECT `+seatColumns+` FROM seat_inventory
			 WHERE journey_id = $1 AND reference_id = ANY($2)
			 ORDER BY seat_number`,
			journeyID, ids,
		)
	}
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	seats, err := collectSeats(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return seats, nil
}

// ListForUpdate locks the requested seat rows of a journey. Rows are
// locked in reference_id order so concurrent multi-seat callers cannot
// deadlock each other.
func (r *SeatRepo) ListForUpdate(ctx context.Context, journeyID uuid.UUID, ids []uuid.UUID) ([]domain.SeatInventory, error) {
	const op = "postgres.SeatRepo.ListForUpdate"

	rows, err := r.handle().Query(ctx,
		`SELECT `+seatColumns+` FROM seat_inventory
		 WHERE journey_id = $1 AND reference_id = ANY($2)
		 ORDER BY reference_id
		 FOR UPDATE`,
		journeyID, ids,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	seats, err := collectSeats(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return seats, nil
}

func (r *SeatRepo) Lock(ctx context.Context, ids []uuid.UUID, holder string, at time.Time) error {
	const op = "postgres.SeatRepo.Lock"

	if _, err := r.handle().Exec(ctx,
		`UPDATE seat_inventory
		 SET is_available = FALSE, booking_reference_id = $2, locked_at = $3, version = version + 1
		 WHERE reference_id = ANY($1)`,
		ids, holder, at,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// SetHolder replaces the holder of locked seats. Available seats are left
// untouched.
func (r *SeatRepo) SetHolder(ctx context.Context, ids []uuid.UUID, holder string) error {
	const op = "postgres.SeatRepo.SetHolder"

	if _, err := r.handle().Exec(ctx,
		`UPDATE seat_inventory
		 SET booking_reference_id = $2, version = version + 1
		 WHERE reference_id = ANY($1) AND is_available = FALSE`,
		ids, holder,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *SeatRepo) Release(ctx context.Context, ids []uuid.UUID) error {
	const op = "postgres.SeatRepo.Release"

	if _, err := r.handle().Exec(ctx,
		`UPDATE seat_inventory
		 SET is_available = TRUE, booking_reference_id = NULL, locked_at = NULL, version = version + 1
		 WHERE reference_id = ANY($1)`,
		ids,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *SeatRepo) ListStalePlaceholders(ctx context.Context, before time.Time, limit int) ([]domain.SeatInventory, error) {
	const op = "postgres.SeatRepo.ListStalePlaceholders"

	rows, err := r.handle().Query(ctx,
		`SELECT `+seatColumns+` FROM seat_inventory
		 WHERE booking_reference_id = $1 AND locked_at < $2
		 ORDER BY journey_id, reference_id
		 LIMIT $3`,
		domain.PlaceholderHolder, before, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	seats, err := collectSeats(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return seats, nil
}

func collectSeats(rows pgx.Rows) ([]domain.SeatInventory, error) {
	defer rows.Close()

	var seats []domain.SeatInventory
	for rows.Next() {
		var (
			s        domain.SeatInventory
			seatType string
			holder   *string
		)
		if err := rows.Scan(
			&s.ID, &s.JourneyID, &s.SeatNumber, &seatType, &s.IsAvailable,
			&s.IsLadiesSeat, &s.FareMultiplier, &holder, &s.LockedAt, &s.Version,
		); err != nil {
			return nil, err
		}
		s.SeatType = domain.SeatType(seatType)
		if holder != nil {
			s.Holder = *holder
		}
		seats = append(seats, s)
	}

	return seats, rows.Err()
}
