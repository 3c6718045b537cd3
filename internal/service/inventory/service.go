package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/repository"
	redisrepo "github.com/kirinyoku/busgo/internal/repository/redis"
	"github.com/kirinyoku/busgo/internal/uow"
)

type Config struct {
	JourneyTTL       time.Duration
	SeatsTTL         time.Duration
	PlaceholderTTL   time.Duration
	PlaceholderBatch int
	Clock            func() time.Time
}

// Service is the seat inventory lock manager. Every mutating operation
// locks the journey row and then the touched seat rows in reference-id
// order inside one transaction.
type Service struct {
	store  repository.InventoryStore
	uow    *uow.UoW[repository.InventoryTx]
	cache  *redisrepo.Cache
	events *redisrepo.SeatEvents
	logger *slog.Logger
	cfg    Config
}

func New(
	store repository.InventoryStore,
	cache *redisrepo.Cache,
	events *redisrepo.SeatEvents,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.JourneyTTL <= 0 {
		cfg.JourneyTTL = 60 * time.Second
	}

	if cfg.SeatsTTL <= 0 {
		cfg.SeatsTTL = 15 * time.Second
	}

	if cfg.PlaceholderTTL <= 0 {
		cfg.PlaceholderTTL = domain.HoldWindow + 5*time.Minute
	}

	if cfg.PlaceholderBatch <= 0 {
		cfg.PlaceholderBatch = 500
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:  store,
		uow:    uow.New[repository.InventoryTx](store.RunInventoryTx),
		cache:  cache,
		events: events,
		logger: logger,
		cfg:    cfg,
	}
}

// LockSeats locks every requested seat of an active journey or none of
// them.
//
// Parameters:
//   - ctx: request-scoped context.
//   - journeyID: journey the seats belong to.
//   - seatIDs: seat inventory reference ids, without duplicates.
//
// Returns:
//   - []domain.LockedSeat: post-lock snapshot with the calculated fare per seat.
//   - error: inventory.ErrJourneyNotFound if the journey is missing or inactive.
//   - error: inventory.ErrSeatNotFound if any seat id does not resolve.
//   - error: inventory.SeatsUnavailableError (wrapping ErrSeatUnavailable) if any
//     seat is already held. No seat is modified in that case.
func (s *Service) LockSeats(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID) ([]domain.LockedSeat, error) {
	const op = "service.inventory.LockSeats"

	if err := checkSelection(seatIDs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var locked []domain.LockedSeat

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.InventoryTx, after func(uow.AfterCommit)) error {
		j, err := s.lockJourney(ctx, tx, journeyID)
		if err != nil {
			return err
		}

		if !j.IsActive {
			return fmt.Errorf("journey %s is inactive: %w", journeyID, ErrJourneyNotFound)
		}

		seats, err := tx.Seats().ListForUpdate(ctx, journeyID, seatIDs)
		if err != nil {
			return err
		}

		if len(seats) != len(seatIDs) {
			return ErrSeatNotFound
		}

		var unavailable []string
		for _, seat := range seats {
			if !seat.IsAvailable {
				unavailable = append(unavailable, seat.SeatNumber)
			}
		}
		if len(unavailable) > 0 {
			sort.Strings(unavailable)
			return SeatsUnavailableError{SeatNumbers: unavailable}
		}

		now := s.cfg.Clock()
		if err := tx.Seats().Lock(ctx, seatIDs, domain.PlaceholderHolder, now); err != nil {
			return err
		}

		if err := tx.Journeys().AdjustAvailable(ctx, journeyID, -len(seats)); err != nil {
			return err
		}

		locked = make([]domain.LockedSeat, 0, len(seats))
		for _, seat := range seats {
			lockedAt := now
			seat.IsAvailable = false
			seat.Holder = domain.PlaceholderHolder
			seat.LockedAt = &lockedAt
			seat.Version++
			locked = append(locked, domain.LockedSeat{
				SeatInventory:       seat,
				CalculatedFareCents: domain.Fare(j.BaseFareCents, seat.FareMultiplier),
			})
		}

		after(s.changed(redisrepo.SeatsLocked, journeyID, seatIDs))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return locked, nil
}

// ConfirmSeats stamps bookingID as the holder of the given locked seats,
// replacing the placeholder. Seats that are available or stamped for
// another booking are left alone and not counted. Repeating the call is
// harmless.
//
// Returns:
//   - int: number of seats now held by bookingID.
//   - error: inventory.ErrJourneyNotFound or inventory.ErrSeatNotFound.
func (s *Service) ConfirmSeats(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID, bookingID uuid.UUID) (int, error) {
	const op = "service.inventory.ConfirmSeats"

	if err := checkSelection(seatIDs); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if bookingID == uuid.Nil {
		return 0, fmt.Errorf("%s: missing booking reference: %w", op, ErrInvalidSeatSelection)
	}

	var stamped int

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.InventoryTx, after func(uow.AfterCommit)) error {
		if _, err := s.lockJourney(ctx, tx, journeyID); err != nil {
			return err
		}

		seats, err := tx.Seats().ListForUpdate(ctx, journeyID, seatIDs)
		if err != nil {
			return err
		}

		if len(seats) != len(seatIDs) {
			return ErrSeatNotFound
		}

		var held []uuid.UUID
		for _, seat := range seats {
			if !seat.IsAvailable && seat.HeldBy(bookingID) {
				held = append(held, seat.ID)
			}
		}

		stamped = len(held)
		if stamped == 0 {
			return nil
		}

		if err := tx.Seats().SetHolder(ctx, held, bookingID.String()); err != nil {
			return err
		}

		after(s.changed(redisrepo.SeatsConfirmed, journeyID, held))

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return stamped, nil
}

// ReleaseSeats makes the given seats available again. Seats that are
// already available or unknown are skipped, so the call is idempotent.
// A non-nil bookingID restricts the release to seats held by that booking
// or by the placeholder.
//
// Returns:
//   - int: number of seats flipped back to available.
//   - error: inventory.ErrJourneyNotFound if the journey does not exist.
func (s *Service) ReleaseSeats(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID, bookingID uuid.UUID) (int, error) {
	const op = "service.inventory.ReleaseSeats"

	seatIDs = dedupe(seatIDs)
	if len(seatIDs) == 0 {
		return 0, nil
	}

	var released int

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.InventoryTx, after func(uow.AfterCommit)) error {
		if _, err := s.lockJourney(ctx, tx, journeyID); err != nil {
			return err
		}

		ids, err := s.releaseLocked(ctx, tx, journeyID, seatIDs, func(seat domain.SeatInventory) bool {
			return bookingID == uuid.Nil || seat.HeldBy(bookingID)
		})
		if err != nil {
			return err
		}

		released = len(ids)
		if released > 0 {
			after(s.changed(redisrepo.SeatsReleased, journeyID, ids))
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return released, nil
}

// ReclaimStalePlaceholders releases seats that were locked but never
// stamped with a booking reference within PlaceholderTTL. Each journey is
// handled in its own transaction; a failing journey is logged and skipped.
func (s *Service) ReclaimStalePlaceholders(ctx context.Context) (int, error) {
	const op = "service.inventory.ReclaimStalePlaceholders"

	cutoff := s.cfg.Clock().Add(-s.cfg.PlaceholderTTL)

	stale, err := s.store.Seats().ListStalePlaceholders(ctx, cutoff, s.cfg.PlaceholderBatch)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	byJourney := make(map[uuid.UUID][]uuid.UUID)
	var journeys []uuid.UUID
	for _, seat := range stale {
		if _, ok := byJourney[seat.JourneyID]; !ok {
			journeys = append(journeys, seat.JourneyID)
		}
		byJourney[seat.JourneyID] = append(byJourney[seat.JourneyID], seat.ID)
	}

	total := 0
	for _, journeyID := range journeys {
		seatIDs := byJourney[journeyID]
		var released []uuid.UUID

		err := s.uow.Do(ctx, func(ctx context.Context, tx repository.InventoryTx, after func(uow.AfterCommit)) error {
			if _, err := s.lockJourney(ctx, tx, journeyID); err != nil {
				return err
			}

			ids, err := s.releaseLocked(ctx, tx, journeyID, seatIDs, func(seat domain.SeatInventory) bool {
				return seat.Holder == domain.PlaceholderHolder &&
					seat.LockedAt != nil && seat.LockedAt.Before(cutoff)
			})
			if err != nil {
				return err
			}

			released = ids
			if len(ids) > 0 {
				after(s.changed(redisrepo.SeatsReleased, journeyID, ids))
			}

			return nil
		})
		if err != nil {
			s.logger.Error("reclaim stale placeholders failed",
				slog.String("journey_id", journeyID.String()),
				slog.Any("error", err),
			)
			continue
		}

		if len(released) > 0 {
			s.logger.Warn("released stale placeholder locks",
				slog.String("journey_id", journeyID.String()),
				slog.Int("seats", len(released)),
			)
		}
		total += len(released)
	}

	return total, nil
}

func (s *Service) lockJourney(ctx context.Context, tx repository.InventoryTx, journeyID uuid.UUID) (*domain.Journey, error) {
	j, err := tx.Journeys().GetForUpdate(ctx, journeyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJourneyNotFound
		}
		return nil, err
	}
	return j, nil
}

// releaseLocked flips the held seats accepted by keep back to available
// and returns their ids. The journey row must already be locked.
func (s *Service) releaseLocked(
	ctx context.Context,
	tx repository.InventoryTx,
	journeyID uuid.UUID,
	seatIDs []uuid.UUID,
	keep func(domain.SeatInventory) bool,
) ([]uuid.UUID, error) {
	seats, err := tx.Seats().ListForUpdate(ctx, journeyID, seatIDs)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for _, seat := range seats {
		if !seat.IsAvailable && keep(seat) {
			ids = append(ids, seat.ID)
		}
	}

	if len(ids) == 0 {
		return nil, nil
	}

	if err := tx.Seats().Release(ctx, ids); err != nil {
		return nil, err
	}

	if err := tx.Journeys().AdjustAvailable(ctx, journeyID, len(ids)); err != nil {
		return nil, err
	}

	return ids, nil
}

func (s *Service) changed(change redisrepo.SeatsChange, journeyID uuid.UUID, seatIDs []uuid.UUID) uow.AfterCommit {
	return func(ctx context.Context) {
		if s.cache != nil {
			if err := s.cache.InvalidateJourney(ctx, journeyID); err != nil {
				s.logger.Warn("invalidate journey cache", slog.String("journey_id", journeyID.String()), slog.Any("error", err))
			}
		}
		if s.events != nil {
			if err := s.events.PublishSeatsChanged(ctx, change, journeyID, seatIDs); err != nil {
				s.logger.Warn("publish seats changed", slog.String("journey_id", journeyID.String()), slog.Any("error", err))
			}
		}
	}
}

func checkSelection(seatIDs []uuid.UUID) error {
	if len(seatIDs) == 0 {
		return fmt.Errorf("no seats selected: %w", ErrInvalidSeatSelection)
	}

	seen := make(map[uuid.UUID]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if id == uuid.Nil {
			return fmt.Errorf("empty seat id: %w", ErrInvalidSeatSelection)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate seat %s: %w", id, ErrInvalidSeatSelection)
		}
		seen[id] = struct{}{}
	}

	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
