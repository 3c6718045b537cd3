package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	StatusInitiated         BookingStatus = "INITIATED"
	StatusSeatsBlocked      BookingStatus = "SEATS_BLOCKED"
	StatusPaymentPending    BookingStatus = "PAYMENT_PENDING"
	StatusPaymentProcessing BookingStatus = "PAYMENT_PROCESSING"
	StatusConfirmed         BookingStatus = "CONFIRMED"
	StatusCancelled         BookingStatus = "CANCELLED"
	StatusFailed            BookingStatus = "FAILED"
	StatusExpired           BookingStatus = "EXPIRED"
	StatusRefundInitiated   BookingStatus = "REFUND_INITIATED"
	StatusRefunded          BookingStatus = "REFUNDED"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusInitiated, StatusSeatsBlocked, StatusPaymentPending, StatusPaymentProcessing,
		StatusConfirmed, StatusCancelled, StatusFailed, StatusExpired,
		StatusRefundInitiated, StatusRefunded:
		return true
	}
	return false
}

// ReleasesSeats reports whether the status is terminal with respect to
// holding: every seat of a booking in this status must be released.
func (s BookingStatus) ReleasesSeats() bool {
	switch s {
	case StatusCancelled, StatusFailed, StatusExpired, StatusRefunded:
		return true
	}
	return false
}

// HoldsSeats reports whether a booking in this status keeps its seats
// locked in the inventory.
func (s BookingStatus) HoldsSeats() bool {
	switch s {
	case StatusSeatsBlocked, StatusPaymentPending, StatusPaymentProcessing, StatusConfirmed:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

type Contact struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Passenger struct {
	ID         uuid.UUID `json:"referenceId"`
	Name       string    `json:"name"`
	Age        int       `json:"age"`
	Gender     Gender    `json:"gender"`
	IDType     string    `json:"idType,omitempty"`
	IDNumber   string    `json:"idNumber,omitempty"`
	SeatNumber string    `json:"seatNumber"`
	IsPrimary  bool      `json:"isPrimary"`
}

// BookingSeat references a seat of the inventory service by value.
type BookingSeat struct {
	ID              uuid.UUID `json:"referenceId"`
	SeatInventoryID uuid.UUID `json:"seatInventoryReferenceId"`
	SeatNumber      string    `json:"seatNumber"`
	PassengerID     uuid.UUID `json:"passengerReferenceId"`
	FareCents       int64     `json:"fareCents"`
	IsLocked        bool      `json:"isLocked"`
}

type Booking struct {
	ID                 uuid.UUID     `json:"referenceId"`
	Code               string        `json:"bookingCode"`
	UserID             int64         `json:"userId"`
	JourneyID          uuid.UUID     `json:"journeyReferenceId"`
	BoardingPointRef   string        `json:"boardingPointReferenceId,omitempty"`
	DroppingPointRef   string        `json:"droppingPointReferenceId,omitempty"`
	SeatCount          int           `json:"seatCount"`
	TotalAmountCents   int64         `json:"totalAmountCents"`
	DiscountCents      int64         `json:"discountCents"`
	FinalAmountCents   int64         `json:"finalAmountCents"`
	Status             BookingStatus `json:"bookingStatus"`
	PaymentStatus      PaymentStatus `json:"paymentStatus"`
	PaymentReference   string        `json:"paymentReferenceId,omitempty"`
	PaymentMethod      string        `json:"paymentMethod,omitempty"`
	TransactionID      string        `json:"transactionId,omitempty"`
	BookingTime        time.Time     `json:"bookingTime"`
	ExpiryTime         time.Time     `json:"expiryTime"`
	CancelledAt        *time.Time    `json:"cancellationTime,omitempty"`
	CancellationReason string        `json:"cancellationReason,omitempty"`
	RefundCents        int64         `json:"refundAmountCents"`
	Contact            Contact       `json:"contact"`
	Passengers         []Passenger   `json:"passengers"`
	Seats              []BookingSeat `json:"seats"`
	Version            int64         `json:"version"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// LockedSeatIDs returns inventory references of seats still held for
// this booking.
func (b *Booking) LockedSeatIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, s := range b.Seats {
		if s.IsLocked {
			ids = append(ids, s.SeatInventoryID)
		}
	}
	return ids
}

// SeatIDs returns inventory references of all booked seats.
func (b *Booking) SeatIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(b.Seats))
	for _, s := range b.Seats {
		ids = append(ids, s.SeatInventoryID)
	}
	return ids
}

// PaymentOutcome is the payment callback payload.
type PaymentOutcome struct {
	PaymentReference string        `json:"paymentReferenceId"`
	Status           PaymentStatus `json:"paymentStatus"`
	AmountCents      int64         `json:"paymentAmountCents"`
	Method           string        `json:"paymentMethod"`
	PaidAt           *time.Time    `json:"paymentTime,omitempty"`
	TransactionID    string        `json:"transactionId,omitempty"`
	FailureReason    string        `json:"failureReason,omitempty"`
}

type BookingEventType string

const (
	EventBookingInitiated BookingEventType = "booking.initiated"
	EventBookingConfirmed BookingEventType = "booking.confirmed"
	EventBookingFailed    BookingEventType = "booking.failed"
	EventBookingCancelled BookingEventType = "booking.cancelled"
	EventBookingExpired   BookingEventType = "booking.expired"
)

type BookingEvent struct {
	Type        BookingEventType `json:"type"`
	BookingID   uuid.UUID        `json:"bookingReferenceId"`
	BookingCode string           `json:"bookingCode"`
	JourneyID   uuid.UUID        `json:"journeyReferenceId"`
	UserID      int64            `json:"userId"`
	Status      BookingStatus    `json:"bookingStatus"`
	AmountCents int64            `json:"amountCents"`
	OccurredAt  time.Time        `json:"occurredAt"`
}

func NewBookingEvent(t BookingEventType, b *Booking, at time.Time) BookingEvent {
	amount := b.FinalAmountCents
	if t == EventBookingCancelled {
		amount = b.RefundCents
	}
	return BookingEvent{
		Type:        t,
		BookingID:   b.ID,
		BookingCode: b.Code,
		JourneyID:   b.JourneyID,
		UserID:      b.UserID,
		Status:      b.Status,
		AmountCents: amount,
		OccurredAt:  at,
	}
}
