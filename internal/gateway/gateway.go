// Package gateway is the contract the booking side uses to reach the seat
// inventory. Calls are synchronous and never retried.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
)

var (
	ErrNotFound        = errors.New("inventory: not found")
	ErrSeatUnavailable = errors.New("inventory: seats unavailable")
	ErrBadRequest      = errors.New("inventory: bad request")
	ErrUnavailable     = errors.New("inventory: service unavailable")
)

// SeatsUnavailableError carries the seat numbers that lost the lock race.
type SeatsUnavailableError struct {
	SeatNumbers []string
}

func (e SeatsUnavailableError) Error() string {
	if len(e.SeatNumbers) == 0 {
		return ErrSeatUnavailable.Error()
	}
	return fmt.Sprintf("%s: %s", ErrSeatUnavailable, strings.Join(e.SeatNumbers, ", "))
}

func (e SeatsUnavailableError) Unwrap() error {
	return ErrSeatUnavailable
}

type Gateway interface {
	GetJourney(ctx context.Context, journeyID uuid.UUID) (*domain.Journey, error)
	LockSeats(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID) ([]domain.LockedSeat, error)
	ConfirmSeats(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID, bookingID uuid.UUID) (int, error)
	// ReleaseSeats frees seats. A non-nil bookingID limits the release to
	// seats held by that booking or still held by the placeholder.
	ReleaseSeats(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID, bookingID uuid.UUID) (int, error)
	GetInventory(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID) ([]domain.SeatInventory, error)
}

type SeatsRequest struct {
	SeatIDs []uuid.UUID `json:"seatIds" binding:"required,min=1"`
}

type UpdateBookingRequest struct {
	SeatIDs   []uuid.UUID `json:"seatIds" binding:"required,min=1"`
	BookingID uuid.UUID   `json:"bookingReferenceId" binding:"required"`
}

type ReleaseRequest struct {
	SeatIDs   []uuid.UUID `json:"seatIds" binding:"required"`
	BookingID *uuid.UUID  `json:"bookingReferenceId,omitempty"`
}

type LockedSeatsResponse struct {
	Seats []domain.LockedSeat `json:"seats"`
}

type InventoryResponse struct {
	Seats []domain.SeatInventory `json:"seats"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type ErrorResponse struct {
	Error       string   `json:"error"`
	SeatNumbers []string `json:"seatNumbers,omitempty"`
}
