// Package reclaimer runs periodic sweeps that drive lapsed holds to a
// terminal state and release their seats.
package reclaimer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned by RunOnce when another instance owns the sweep.
var ErrLockHeld = errors.New("sweep lock held by another instance")

type Result struct {
	Found     int `json:"found"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type Sweeper interface {
	Sweep(ctx context.Context) (Result, error)
}

type SweepFunc func(ctx context.Context) (Result, error)

func (f SweepFunc) Sweep(ctx context.Context) (Result, error) {
	return f(ctx)
}

// Locker grants one instance at a time the right to run a named sweep.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, func(ctx context.Context) error, error)
}

type Config struct {
	Interval     time.Duration
	InitialDelay time.Duration
	LockTTL      time.Duration
}

type Runner struct {
	name    string
	sweeper Sweeper
	locker  Locker
	logger  *slog.Logger
	cfg     Config
}

// NewRunner builds a runner for one sweep. A nil locker assumes a single
// active instance.
func NewRunner(name string, sweeper Sweeper, locker Locker, logger *slog.Logger, cfg Config) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}

	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}

	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval - cfg.Interval/5
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		name:    name,
		sweeper: sweeper,
		locker:  locker,
		logger:  logger.With(slog.String("sweep", name)),
		cfg:     cfg,
	}
}

// Run sweeps after the initial delay and then every interval until ctx
// is done. Sweep errors are logged and never stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.InitialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		r.tick(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()

	res, err := r.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrLockHeld):
		r.logger.Debug("sweep skipped, lock held elsewhere")
	case err != nil:
		r.logger.Error("sweep failed", slog.Any("error", err))
	case res.Found > 0:
		r.logger.Info("sweep finished",
			slog.Int("found", res.Found),
			slog.Int("processed", res.Processed),
			slog.Int("skipped", res.Skipped),
			slog.Int("failed", res.Failed),
			slog.Duration("took", time.Since(start)),
		)
	}
}

// RunOnce performs a single sweep, holding the distributed lock if one is
// configured.
func (r *Runner) RunOnce(ctx context.Context) (Result, error) {
	const op = "reclaimer.Runner.RunOnce"

	if r.locker != nil {
		ok, unlock, err := r.locker.TryLock(ctx, r.name, r.cfg.LockTTL)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			return Result{}, ErrLockHeld
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("release sweep lock", slog.Any("error", err))
			}
		}()
	}

	res, err := r.sweeper.Sweep(ctx)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}

	return res, nil
}

// Expirer is the booking side of the expiry sweep.
type Expirer interface {
	ListExpired(ctx context.Context, limit int) ([]uuid.UUID, error)
	Expire(ctx context.Context, id uuid.UUID) (bool, error)
	// ListUnreleased and ReleaseHeld retry seat releases that failed after
	// a booking reached a terminal status.
	ListUnreleased(ctx context.Context, limit int) ([]uuid.UUID, error)
	ReleaseHeld(ctx context.Context, id uuid.UUID) (bool, error)
}

// ExpiredBookings first retries releases left behind by earlier
// transitions and then expires lapsed bookings one by one. A failing
// booking is logged, counted and left for the next sweep.
type ExpiredBookings struct {
	bookings Expirer
	batch    int
	logger   *slog.Logger
}

func NewExpiredBookings(bookings Expirer, batch int, logger *slog.Logger) *ExpiredBookings {
	if batch <= 0 {
		batch = 500
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &ExpiredBookings{
		bookings: bookings,
		batch:    batch,
		logger:   logger,
	}
}

func (e *ExpiredBookings) Sweep(ctx context.Context) (Result, error) {
	var res Result

	stuck, err := e.bookings.ListUnreleased(ctx, e.batch)
	if err != nil {
		return res, err
	}

	if err := e.each(ctx, stuck, &res, "release seats of settled booking", e.bookings.ReleaseHeld); err != nil {
		return res, err
	}

	ids, err := e.bookings.ListExpired(ctx, e.batch)
	if err != nil {
		return res, err
	}

	return res, e.each(ctx, ids, &res, "expire booking", e.bookings.Expire)
}

func (e *ExpiredBookings) each(
	ctx context.Context,
	ids []uuid.UUID,
	res *Result,
	what string,
	fn func(ctx context.Context, id uuid.UUID) (bool, error),
) error {
	res.Found += len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		done, err := fn(ctx, id)
		switch {
		case err != nil:
			res.Failed++
			e.logger.Error(what,
				slog.String("booking_id", id.String()),
				slog.Any("error", err),
			)
		case done:
			res.Processed++
		default:
			res.Skipped++
		}
	}

	return nil
}
