package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/repository"
	redisrepo "github.com/kirinyoku/busgo/internal/repository/redis"
	"github.com/kirinyoku/busgo/internal/uow"
)

// DefaultSeatCount is the size of the layout generated when a journey is
// scheduled without an explicit seat list.
const DefaultSeatCount = 40

type SeatSpec struct {
	SeatNumber     string
	SeatType       domain.SeatType
	IsLadiesSeat   bool
	FareMultiplier float64
}

type NewJourney struct {
	Code            string
	SourceCity      string
	DestinationCity string
	DepartureTime   time.Time
	ArrivalTime     time.Time
	BaseFareCents   int64
	VehicleRef      string
	RouteName       string
	IsActive        bool
	Seats           []SeatSpec
}

// DefaultLayout returns seats S01..Sn; every tenth seat is a ladies seat.
func DefaultLayout(n int) []SeatSpec {
	seats := make([]SeatSpec, 0, n)
	for i := 1; i <= n; i++ {
		seats = append(seats, SeatSpec{
			SeatNumber:     fmt.Sprintf("S%02d", i),
			SeatType:       domain.SeatSeater,
			IsLadiesSeat:   i%10 == 0,
			FareMultiplier: 1.0,
		})
	}
	return seats
}

// ScheduleJourney creates a journey together with its seat inventory in
// one transaction. Every seat starts available.
//
// Returns:
//   - *domain.Journey: the stored journey.
//   - error: inventory.ErrInvalidJourney for malformed input.
//   - error: inventory.ErrJourneyConflict if the journey code is taken.
func (s *Service) ScheduleJourney(ctx context.Context, in NewJourney) (*domain.Journey, error) {
	const op = "service.inventory.ScheduleJourney"

	specs := in.Seats
	if len(specs) == 0 {
		specs = DefaultLayout(DefaultSeatCount)
	}

	if err := validateJourney(in, specs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	j := &domain.Journey{
		ID:              uuid.New(),
		Code:            strings.TrimSpace(in.Code),
		SourceCity:      strings.TrimSpace(in.SourceCity),
		DestinationCity: strings.TrimSpace(in.DestinationCity),
		DepartureTime:   in.DepartureTime.UTC(),
		ArrivalTime:     in.ArrivalTime.UTC(),
		BaseFareCents:   in.BaseFareCents,
		TotalSeats:      len(specs),
		AvailableSeats:  len(specs),
		IsActive:        in.IsActive,
		VehicleRef:      in.VehicleRef,
		RouteName:       in.RouteName,
	}

	seats := make([]domain.SeatInventory, 0, len(specs))
	seatIDs := make([]uuid.UUID, 0, len(specs))
	for _, spec := range specs {
		seat := domain.SeatInventory{
			ID:             uuid.New(),
			JourneyID:      j.ID,
			SeatNumber:     strings.TrimSpace(spec.SeatNumber),
			SeatType:       spec.SeatType,
			IsAvailable:    true,
			IsLadiesSeat:   spec.IsLadiesSeat,
			FareMultiplier: spec.FareMultiplier,
		}
		if seat.SeatType == "" {
			seat.SeatType = domain.SeatSeater
		}
		if seat.FareMultiplier == 0 {
			seat.FareMultiplier = 1.0
		}
		seats = append(seats, seat)
		seatIDs = append(seatIDs, seat.ID)
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.InventoryTx, after func(uow.AfterCommit)) error {
		if err := tx.Journeys().Create(ctx, j); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrJourneyConflict
			}
			return err
		}

		if err := tx.Seats().BatchCreate(ctx, seats); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("duplicate seat: %w", ErrInvalidJourney)
			}
			return err
		}

		after(s.changed(redisrepo.SeatsCreated, j.ID, seatIDs))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("journey scheduled",
		slog.String("journey_id", j.ID.String()),
		slog.String("code", j.Code),
		slog.Int("seats", j.TotalSeats),
	)

	return j, nil
}

func validateJourney(in NewJourney, specs []SeatSpec) error {
	switch {
	case strings.TrimSpace(in.Code) == "":
		return fmt.Errorf("journey code is required: %w", ErrInvalidJourney)
	case strings.TrimSpace(in.SourceCity) == "" || strings.TrimSpace(in.DestinationCity) == "":
		return fmt.Errorf("source and destination are required: %w", ErrInvalidJourney)
	case in.DepartureTime.IsZero() || !in.ArrivalTime.After(in.DepartureTime):
		return fmt.Errorf("arrival must be after departure: %w", ErrInvalidJourney)
	case in.BaseFareCents < 0:
		return fmt.Errorf("base fare must not be negative: %w", ErrInvalidJourney)
	}

	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		number := strings.TrimSpace(spec.SeatNumber)
		if number == "" {
			return fmt.Errorf("seat number is required: %w", ErrInvalidJourney)
		}
		if _, dup := seen[number]; dup {
			return fmt.Errorf("duplicate seat number %s: %w", number, ErrInvalidJourney)
		}
		seen[number] = struct{}{}

		if spec.SeatType != "" && !spec.SeatType.Valid() {
			return fmt.Errorf("seat %s has unknown type %q: %w", number, spec.SeatType, ErrInvalidJourney)
		}
		if spec.FareMultiplier < 0 {
			return fmt.Errorf("seat %s has negative fare multiplier: %w", number, ErrInvalidJourney)
		}
	}

	return nil
}
