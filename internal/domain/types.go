package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// HoldWindow is how long seats stay locked for an unconfirmed booking.
const HoldWindow = 15 * time.Minute

// PlaceholderHolder marks seats that are locked but not yet stamped with
// the owning booking reference.
const PlaceholderHolder = "LOCKED"

type SeatType string

const (
	SeatLower       SeatType = "LOWER"
	SeatUpper       SeatType = "UPPER"
	SeatSeater      SeatType = "SEATER"
	SeatSleeper     SeatType = "SLEEPER"
	SeatSemiSleeper SeatType = "SEMI_SLEEPER"
)

func (t SeatType) Valid() bool {
	switch t {
	case SeatLower, SeatUpper, SeatSeater, SeatSleeper, SeatSemiSleeper:
		return true
	}
	return false
}

type Journey struct {
	ID              uuid.UUID `json:"referenceId"`
	Code            string    `json:"journeyCode"`
	SourceCity      string    `json:"sourceCity"`
	DestinationCity string    `json:"destinationCity"`
	DepartureTime   time.Time `json:"departureTime"`
	ArrivalTime     time.Time `json:"arrivalTime"`
	BaseFareCents   int64     `json:"baseFareCents"`
	TotalSeats      int       `json:"totalSeats"`
	AvailableSeats  int       `json:"availableSeats"`
	IsActive        bool      `json:"isActive"`
	VehicleRef      string    `json:"vehicleRef,omitempty"`
	RouteName       string    `json:"routeName,omitempty"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// SeatInventory is one durable seat row of a journey. Holder is empty
// exactly when the seat is available.
type SeatInventory struct {
	ID             uuid.UUID  `json:"referenceId"`
	JourneyID      uuid.UUID  `json:"journeyReferenceId"`
	SeatNumber     string     `json:"seatNumber"`
	SeatType       SeatType   `json:"seatType"`
	IsAvailable    bool       `json:"isAvailable"`
	IsLadiesSeat   bool       `json:"isLadiesSeat"`
	FareMultiplier float64    `json:"fareMultiplier"`
	Holder         string     `json:"bookingReferenceId,omitempty"`
	LockedAt       *time.Time `json:"lockedAt,omitempty"`
	Version        int64      `json:"version"`
}

// HeldBy reports whether the seat may be released on behalf of bookingID.
func (s SeatInventory) HeldBy(bookingID uuid.UUID) bool {
	return s.Holder == bookingID.String() || s.Holder == PlaceholderHolder
}

// LockedSeat is the post-lock snapshot returned to the booking side.
type LockedSeat struct {
	SeatInventory
	CalculatedFareCents int64 `json:"calculatedFareCents"`
}

// Fare returns round(base * multiplier) in cents.
func Fare(baseCents int64, multiplier float64) int64 {
	return int64(math.Round(float64(baseCents) * multiplier))
}
