package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kirinyoku/busgo/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Pool is satisfied by *pgxpool.Pool.
type Pool interface {
	DB
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// txAttempts bounds how often RunTx runs a transaction that failed with a
// serialization failure or deadlock.
const txAttempts = 4

type Store struct {
	pool Pool
}

func NewStore(pool Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn in a transaction, serializable unless opts says otherwise.
// A serialization failure or deadlock from fn or from commit reruns the
// whole transaction, so fn must not keep state across calls.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	for attempt := 1; ; attempt++ {
		err := s.runTx(ctx, txOpts, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}

		if attempt == txAttempts {
			return fmt.Errorf("gave up after %d attempts: %w", txAttempts, err)
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * 5 * time.Millisecond):
		}
	}
}

func (s *Store) runTx(ctx context.Context, txOpts pgx.TxOptions, fn func(ctx context.Context, tx DB) error) error {
	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) Journeys() repository.JourneyRepository { return &JourneyRepo{pool: s.pool} }
func (s *Store) Seats() repository.SeatRepository       { return &SeatRepo{pool: s.pool} }
func (s *Store) Bookings() repository.BookingRepository { return &BookingRepo{pool: s.pool} }

type inventoryTx struct {
	journeys *JourneyRepo
	seats    *SeatRepo
}

func (t inventoryTx) Journeys() repository.JourneyRepository { return t.journeys }
func (t inventoryTx) Seats() repository.SeatRepository       { return t.seats }

// RunInventoryTx runs fn in a serializable transaction with journey and
// seat repositories bound to it.
func (s *Store) RunInventoryTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.InventoryTx) error,
) error {
	return s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		return fn(ctx, inventoryTx{
			journeys: (&JourneyRepo{pool: s.pool}).With(tx),
			seats:    (&SeatRepo{pool: s.pool}).With(tx),
		})
	})
}

// RunBookingTx runs fn in a serializable transaction with a booking
// repository bound to it.
func (s *Store) RunBookingTx(
	ctx context.Context,
	fn func(ctx context.Context, repo repository.BookingRepository) error,
) error {
	return s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		return fn(ctx, (&BookingRepo{pool: s.pool}).With(tx))
	})
}
