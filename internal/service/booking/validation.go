package booking

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
)

const MaxSeatsPerBooking = 6

var phoneRegex = regexp.MustCompile(`^[0-9]{10}$`)

type SeatSelection struct {
	SeatID         uuid.UUID `json:"seatInventoryReferenceId" validate:"required"`
	SeatNumber     string    `json:"seatNumber" validate:"required,max=10"`
	PassengerIndex int       `json:"passengerIndex" validate:"min=0"`
}

type PassengerInput struct {
	Name      string        `json:"name" validate:"required,min=2,max=100"`
	Age       int           `json:"age" validate:"required,min=1,max=120"`
	Gender    domain.Gender `json:"gender" validate:"required,oneof=MALE FEMALE OTHER"`
	IDType    string        `json:"idType" validate:"max=50"`
	IDNumber  string        `json:"idNumber" validate:"max=50"`
	IsPrimary bool          `json:"isPrimary"`
}

type InitiateRequest struct {
	UserID           int64            `json:"userId" validate:"required,gt=0"`
	JourneyID        uuid.UUID        `json:"journeyReferenceId" validate:"required"`
	BoardingPointRef string           `json:"boardingPointReferenceId" validate:"max=64"`
	DroppingPointRef string           `json:"droppingPointReferenceId" validate:"max=64"`
	Seats            []SeatSelection  `json:"seatSelections" validate:"required,min=1,max=6,dive"`
	Passengers       []PassengerInput `json:"passengers" validate:"required,min=1,max=6,dive"`
	ContactEmail     string           `json:"contactEmail" validate:"required,email"`
	ContactPhone     string           `json:"contactPhone" validate:"required,phone10"`
}

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return phoneRegex.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register phone10 validation: %v", err))
	}

	return &Validator{validate: v}
}

// ValidateInitiate checks field constraints first and then the rules that
// span several fields.
func (v *Validator) ValidateInitiate(req *InitiateRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}

	var errs ValidationErrors

	if len(req.Seats) != len(req.Passengers) {
		errs = append(errs, ValidationError{
			Field:   "SeatSelections",
			Message: fmt.Sprintf("seat count (%d) must match passenger count (%d)", len(req.Seats), len(req.Passengers)),
		})
		return errs
	}

	seenSeat := make(map[uuid.UUID]struct{}, len(req.Seats))
	seenPassenger := make(map[int]struct{}, len(req.Seats))
	for i, sel := range req.Seats {
		if _, dup := seenSeat[sel.SeatID]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("SeatSelections[%d].SeatInventoryReferenceId", i),
				Message: "seat is selected more than once",
			})
		}
		seenSeat[sel.SeatID] = struct{}{}

		if sel.PassengerIndex >= len(req.Passengers) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("SeatSelections[%d].PassengerIndex", i),
				Message: fmt.Sprintf("passenger index %d is out of range", sel.PassengerIndex),
			})
			continue
		}
		if _, dup := seenPassenger[sel.PassengerIndex]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("SeatSelections[%d].PassengerIndex", i),
				Message: "passenger is assigned more than one seat",
			})
		}
		seenPassenger[sel.PassengerIndex] = struct{}{}
	}

	primaries := 0
	for _, p := range req.Passengers {
		if p.IsPrimary {
			primaries++
		}
	}
	if primaries != 1 {
		errs = append(errs, ValidationError{
			Field:   "Passengers",
			Message: "exactly one passenger must be primary",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		case "phone10":
			message = fmt.Sprintf("%s must be 10 digits", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
