package booking

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() InitiateRequest {
	return InitiateRequest{
		UserID:    42,
		JourneyID: uuid.New(),
		Seats: []SeatSelection{
			{SeatID: uuid.New(), SeatNumber: "S01", PassengerIndex: 0},
			{SeatID: uuid.New(), SeatNumber: "S02", PassengerIndex: 1},
		},
		Passengers: []PassengerInput{
			{Name: "Asha Rao", Age: 34, Gender: domain.GenderFemale, IsPrimary: true},
			{Name: "Ravi Rao", Age: 36, Gender: domain.GenderMale},
		},
		ContactEmail: "asha@example.com",
		ContactPhone: "9123456780",
	}
}

func TestValidateInitiate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name   string
		mutate func(*InitiateRequest)
		field  string
	}{
		{"valid", func(*InitiateRequest) {}, ""},
		{"missing user", func(r *InitiateRequest) { r.UserID = 0 }, "UserID"},
		{"bad email", func(r *InitiateRequest) { r.ContactEmail = "not-an-email" }, "ContactEmail"},
		{"short phone", func(r *InitiateRequest) { r.ContactPhone = "12345" }, "ContactPhone"},
		{"phone with letters", func(r *InitiateRequest) { r.ContactPhone = "98765abcde" }, "ContactPhone"},
		{"bad gender", func(r *InitiateRequest) { r.Passengers[1].Gender = "X" }, "Gender"},
		{"too young", func(r *InitiateRequest) { r.Passengers[0].Age = 0 }, "Age"},
		{"too old", func(r *InitiateRequest) { r.Passengers[0].Age = 121 }, "Age"},
		{"short name", func(r *InitiateRequest) { r.Passengers[0].Name = "A" }, "Name"},
		{"no seats", func(r *InitiateRequest) { r.Seats = nil }, "Seats"},
		{"count mismatch", func(r *InitiateRequest) { r.Passengers = r.Passengers[:1] }, "SeatSelections"},
		{"duplicate seat", func(r *InitiateRequest) { r.Seats[1].SeatID = r.Seats[0].SeatID }, "SeatSelections[1].SeatInventoryReferenceId"},
		{"passenger out of range", func(r *InitiateRequest) { r.Seats[1].PassengerIndex = 5 }, "SeatSelections[1].PassengerIndex"},
		{"passenger twice", func(r *InitiateRequest) { r.Seats[1].PassengerIndex = 0 }, "SeatSelections[1].PassengerIndex"},
		{"no primary", func(r *InitiateRequest) { r.Passengers[0].IsPrimary = false }, "Passengers"},
		{"two primaries", func(r *InitiateRequest) { r.Passengers[1].IsPrimary = true }, "Passengers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := v.ValidateInitiate(&req)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest))

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)

			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidateInitiate_TooManySeats(t *testing.T) {
	req := validRequest()
	for i := 2; i <= MaxSeatsPerBooking; i++ {
		req.Seats = append(req.Seats, SeatSelection{SeatID: uuid.New(), SeatNumber: "X", PassengerIndex: i})
		req.Passengers = append(req.Passengers, PassengerInput{Name: "Guest", Age: 20, Gender: domain.GenderOther})
	}
	require.Len(t, req.Seats, MaxSeatsPerBooking+1)

	err := NewValidator().ValidateInitiate(&req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
