package inventory

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrJourneyNotFound      = errors.New("journey not found")
	ErrSeatNotFound         = errors.New("seat not found")
	ErrSeatUnavailable      = errors.New("some seats are unavailable")
	ErrInvalidSeatSelection = errors.New("invalid seat selection")
	ErrJourneyConflict      = errors.New("journey already exists")
	ErrInvalidJourney       = errors.New("invalid journey")
)

// SeatsUnavailableError names the seats that could not be locked.
type SeatsUnavailableError struct {
	SeatNumbers []string
}

func (e SeatsUnavailableError) Error() string {
	return fmt.Sprintf("seats unavailable: %s", strings.Join(e.SeatNumbers, ", "))
}

func (e SeatsUnavailableError) Unwrap() error {
	return ErrSeatUnavailable
}
