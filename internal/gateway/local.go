package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/service/inventory"
)

// Local calls an in-process inventory service and translates its errors
// to the gateway taxonomy, so callers see the same errors as over HTTP.
type Local struct {
	svc *inventory.Service
}

func NewLocal(svc *inventory.Service) *Local {
	return &Local{svc: svc}
}

func (l *Local) GetJourney(ctx context.Context, journeyID uuid.UUID) (*domain.Journey, error) {
	j, err := l.svc.GetJourney(ctx, journeyID)
	return j, translate(err)
}

func (l *Local) LockSeats(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID) ([]domain.LockedSeat, error) {
	seats, err := l.svc.LockSeats(ctx, journeyID, seatIDs)
	return seats, translate(err)
}

func (l *Local) ConfirmSeats(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID, bookingID uuid.UUID) (int, error) {
	n, err := l.svc.ConfirmSeats(ctx, journeyID, seatIDs, bookingID)
	return n, translate(err)
}

func (l *Local) ReleaseSeats(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID, bookingID uuid.UUID) (int, error) {
	n, err := l.svc.ReleaseSeats(ctx, journeyID, seatIDs, bookingID)
	return n, translate(err)
}

func (l *Local) GetInventory(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID) ([]domain.SeatInventory, error) {
	seats, err := l.svc.GetInventory(ctx, journeyID, seatIDs)
	return seats, translate(err)
}

func translate(err error) error {
	if err == nil {
		return nil
	}

	var unavailable inventory.SeatsUnavailableError
	switch {
	case errors.As(err, &unavailable):
		return SeatsUnavailableError{SeatNumbers: unavailable.SeatNumbers}
	case errors.Is(err, inventory.ErrJourneyNotFound), errors.Is(err, inventory.ErrSeatNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, inventory.ErrInvalidSeatSelection):
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
