package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLayout(t *testing.T) {
	seats := DefaultLayout(DefaultSeatCount)

	require.Len(t, seats, 40)
	assert.Equal(t, "S01", seats[0].SeatNumber)
	assert.Equal(t, "S40", seats[39].SeatNumber)
	assert.True(t, seats[9].IsLadiesSeat)
	assert.False(t, seats[10].IsLadiesSeat)
	assert.Equal(t, domain.SeatSeater, seats[0].SeatType)
}

func TestScheduleJourney_DefaultsLayout(t *testing.T) {
	svc := New(memory.NewStore(), nil, nil, nil, Config{})
	now := time.Now()

	j, err := svc.ScheduleJourney(context.Background(), NewJourney{
		Code:            " MUM-PUN-1 ",
		SourceCity:      "Mumbai",
		DestinationCity: "Pune",
		DepartureTime:   now.Add(time.Hour),
		ArrivalTime:     now.Add(4 * time.Hour),
		BaseFareCents:   45000,
		IsActive:        true,
	})
	require.NoError(t, err)

	assert.Equal(t, "MUM-PUN-1", j.Code)
	assert.Equal(t, DefaultSeatCount, j.TotalSeats)
	assert.Equal(t, DefaultSeatCount, j.AvailableSeats)

	seats, err := svc.GetInventory(context.Background(), j.ID, nil)
	require.NoError(t, err)
	require.Len(t, seats, DefaultSeatCount)
	for _, s := range seats {
		assert.True(t, s.IsAvailable)
		assert.Equal(t, j.ID, s.JourneyID)
	}
}

func TestScheduleJourney_Conflict(t *testing.T) {
	svc := New(memory.NewStore(), nil, nil, nil, Config{})
	now := time.Now()

	in := NewJourney{
		Code:            "DEL-JAI-7",
		SourceCity:      "Delhi",
		DestinationCity: "Jaipur",
		DepartureTime:   now.Add(time.Hour),
		ArrivalTime:     now.Add(6 * time.Hour),
		BaseFareCents:   60000,
		IsActive:        true,
		Seats:           DefaultLayout(2),
	}

	_, err := svc.ScheduleJourney(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.ScheduleJourney(context.Background(), in)
	assert.ErrorIs(t, err, ErrJourneyConflict)
}

func TestScheduleJourney_Invalid(t *testing.T) {
	svc := New(memory.NewStore(), nil, nil, nil, Config{})
	now := time.Now()

	valid := func() NewJourney {
		return NewJourney{
			Code:            "X-1",
			SourceCity:      "A",
			DestinationCity: "B",
			DepartureTime:   now.Add(time.Hour),
			ArrivalTime:     now.Add(2 * time.Hour),
			BaseFareCents:   100,
			Seats:           DefaultLayout(2),
		}
	}

	tests := []struct {
		name   string
		mutate func(*NewJourney)
	}{
		{"missing code", func(j *NewJourney) { j.Code = " " }},
		{"missing city", func(j *NewJourney) { j.DestinationCity = "" }},
		{"arrival before departure", func(j *NewJourney) { j.ArrivalTime = j.DepartureTime.Add(-time.Minute) }},
		{"negative fare", func(j *NewJourney) { j.BaseFareCents = -1 }},
		{"duplicate seat", func(j *NewJourney) {
			j.Seats = []SeatSpec{{SeatNumber: "1A"}, {SeatNumber: "1A"}}
		}},
		{"unknown seat type", func(j *NewJourney) {
			j.Seats = []SeatSpec{{SeatNumber: "1A", SeatType: "BUNK"}}
		}},
		{"negative multiplier", func(j *NewJourney) {
			j.Seats = []SeatSpec{{SeatNumber: "1A", FareMultiplier: -0.5}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			_, err := svc.ScheduleJourney(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalidJourney)
		})
	}
}
