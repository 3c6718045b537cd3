package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirinyoku/busgo/internal/domain"
)

var (
	ErrInvalidRequest  = errors.New("invalid booking request")
	ErrJourneyNotFound = errors.New("journey not found")
	ErrJourneyInactive = errors.New("journey is not active")
	ErrSeatNotFound    = errors.New("seat not found")
	ErrSeatUnavailable = errors.New("some seats are unavailable")
	ErrBookingNotFound = errors.New("booking not found")
	ErrWrongState      = errors.New("booking is in the wrong state")
	ErrExpired         = errors.New("booking hold has expired")
	ErrBusinessRule    = errors.New("business rule violated")
	ErrRateLimited     = errors.New("rate limited")
	ErrConcurrentWrite = errors.New("booking was modified concurrently")
)

// WrongStateError reports an illegal transition attempt.
type WrongStateError struct {
	From domain.BookingStatus
	Op   string
}

func (e WrongStateError) Error() string {
	return fmt.Sprintf("cannot %s booking in status %s", e.Op, e.From)
}

func (e WrongStateError) Unwrap() error {
	return ErrWrongState
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	messages := make([]string, 0, len(v))
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

func (v ValidationErrors) Unwrap() error {
	return ErrInvalidRequest
}

// RateLimitError tells the caller when a new initiate attempt may succeed.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e RateLimitError) Unwrap() error {
	return ErrRateLimited
}
