package httpgin

import (
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/service/booking"
)

type ScheduleJourneyRequest struct {
	Code            string      `json:"journeyCode" binding:"required,max=64"`
	SourceCity      string      `json:"sourceCity" binding:"required"`
	DestinationCity string      `json:"destinationCity" binding:"required"`
	DepartureTime   time.Time   `json:"departureTime" binding:"required"`
	ArrivalTime     time.Time   `json:"arrivalTime" binding:"required"`
	BaseFareCents   int64       `json:"baseFareCents" binding:"gte=0"`
	VehicleRef      string      `json:"vehicleRef"`
	RouteName       string      `json:"routeName"`
	IsActive        *bool       `json:"isActive"`
	Seats           []SeatInput `json:"seats" binding:"omitempty,dive"`
}

type SeatInput struct {
	SeatNumber     string          `json:"seatNumber" binding:"required,max=10"`
	SeatType       domain.SeatType `json:"seatType"`
	IsLadiesSeat   bool            `json:"isLadiesSeat"`
	FareMultiplier float64         `json:"fareMultiplier" binding:"gte=0"`
}

type AvailabilityRequest struct {
	JourneyID uuid.UUID   `json:"journeyReferenceId" binding:"required"`
	SeatIDs   []uuid.UUID `json:"seatIds" binding:"required,min=1"`
}

type AvailabilityResponse struct {
	JourneyID uuid.UUID `json:"journeyReferenceId"`
	Available bool      `json:"available"`
}

type BookingsResponse struct {
	Bookings []domain.Booking `json:"bookings"`
}

type ErrorResponse struct {
	Error       string                    `json:"error"`
	SeatNumbers []string                  `json:"seatNumbers,omitempty"`
	Details     []booking.ValidationError `json:"details,omitempty"`
}
