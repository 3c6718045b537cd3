package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/gateway"
	"github.com/kirinyoku/busgo/internal/repository"
)

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Get"

	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrBookingNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*domain.Booking, error) {
	const op = "service.booking.GetByCode"

	b, err := s.store.Bookings().GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrBookingNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	const op = "service.booking.ListByUser"

	bookings, err := s.store.Bookings().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookings, nil
}

func (s *Service) ListByJourney(ctx context.Context, journeyID uuid.UUID) ([]domain.Booking, error) {
	const op = "service.booking.ListByJourney"

	bookings, err := s.store.Bookings().ListByJourney(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookings, nil
}

// CheckSeatAvailability asks the inventory whether every listed seat is
// free right now. The answer is advisory; nothing is locked.
//
// Returns:
//   - bool: true only if all seats exist and are available.
//   - error: booking.ErrJourneyNotFound if the journey does not exist.
func (s *Service) CheckSeatAvailability(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID) (bool, error) {
	const op = "service.booking.CheckSeatAvailability"

	if len(seatIDs) == 0 {
		return false, fmt.Errorf("%s: no seats selected: %w", op, ErrInvalidRequest)
	}

	seats, err := s.inventory.GetInventory(ctx, journeyID, seatIDs)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return false, fmt.Errorf("%s: %w", op, ErrJourneyNotFound)
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}

	want := make(map[uuid.UUID]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		want[id] = struct{}{}
	}

	found := 0
	for _, seat := range seats {
		if _, ok := want[seat.ID]; !ok {
			continue
		}
		if !seat.IsAvailable {
			return false, nil
		}
		found++
	}

	return found == len(want), nil
}
