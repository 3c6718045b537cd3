package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/repository"
	redisrepo "github.com/kirinyoku/busgo/internal/repository/redis"
)

// GetJourney retrieves a journey by reference id through the cache.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: journey reference id.
//
// Returns:
//   - *domain.Journey: the journey.
//   - error: inventory.ErrJourneyNotFound if it does not exist.
func (s *Service) GetJourney(ctx context.Context, id uuid.UUID) (*domain.Journey, error) {
	const op = "service.inventory.GetJourney"

	j, err := cached(ctx, s.cache, redisrepo.KeyJourney(id), s.cfg.JourneyTTL,
		func(ctx context.Context) (domain.Journey, error) {
			j, err := s.store.Journeys().Get(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Journey{}, ErrJourneyNotFound
				}
				return domain.Journey{}, err
			}
			return *j, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &j, nil
}

// GetInventory lists the seats of a journey ordered by seat number. A
// non-empty seatIDs filter restricts the result to those seats; unknown
// ids are skipped.
func (s *Service) GetInventory(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID) ([]domain.SeatInventory, error) {
	const op = "service.inventory.GetInventory"

	if _, err := s.GetJourney(ctx, journeyID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	seats, err := cached(ctx, s.cache, redisrepo.KeyJourneySeats(journeyID), s.cfg.SeatsTTL,
		func(ctx context.Context) ([]domain.SeatInventory, error) {
			return s.store.Seats().List(ctx, journeyID, nil)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(seatIDs) == 0 {
		return seats, nil
	}

	want := make(map[uuid.UUID]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		want[id] = struct{}{}
	}

	filtered := make([]domain.SeatInventory, 0, len(seatIDs))
	for _, seat := range seats {
		if _, ok := want[seat.ID]; ok {
			filtered = append(filtered, seat)
		}
	}

	return filtered, nil
}

// CheckAvailability reports whether every listed seat exists on an active
// journey and is currently available. It reads committed state directly
// and takes no locks, so the answer is advisory.
func (s *Service) CheckAvailability(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID) (bool, error) {
	const op = "service.inventory.CheckAvailability"

	seatIDs = dedupe(seatIDs)
	if len(seatIDs) == 0 {
		return false, nil
	}

	j, err := s.store.Journeys().Get(ctx, journeyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !j.IsActive {
		return false, nil
	}

	seats, err := s.store.Seats().List(ctx, journeyID, seatIDs)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if len(seats) != len(seatIDs) {
		return false, nil
	}

	for _, seat := range seats {
		if !seat.IsAvailable {
			return false, nil
		}
	}

	return true, nil
}

// cached reads key through c, or calls loader directly when no cache is
// configured.
func cached[T any](
	ctx context.Context,
	c *redisrepo.Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return loader(ctx)
	}
	return redisrepo.GetOrSetJSON(ctx, c, key, ttl, loader)
}
