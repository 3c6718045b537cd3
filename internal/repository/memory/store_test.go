package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedJourney(t *testing.T, s *Store, seats int) (*domain.Journey, []domain.SeatInventory) {
	t.Helper()
	ctx := context.Background()

	j := &domain.Journey{
		ID:             uuid.New(),
		Code:           "J-" + uuid.NewString()[:8],
		BaseFareCents:  50000,
		TotalSeats:     seats,
		AvailableSeats: seats,
		IsActive:       true,
	}
	require.NoError(t, s.Journeys().Create(ctx, j))

	inv := make([]domain.SeatInventory, 0, seats)
	for i := range seats {
		inv = append(inv, domain.SeatInventory{
			ID:             uuid.New(),
			JourneyID:      j.ID,
			SeatNumber:     string(rune('A' + i)),
			SeatType:       domain.SeatSeater,
			FareMultiplier: 1,
		})
	}
	require.NoError(t, s.Seats().BatchCreate(ctx, inv))

	return j, inv
}

func TestStore_RollbackRestoresState(t *testing.T) {
	s := NewStore()
	j, seats := seedJourney(t, s, 3)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInventoryTx(ctx, func(ctx context.Context, tx repository.InventoryTx) error {
		if err := tx.Seats().Lock(ctx, []uuid.UUID{seats[0].ID}, domain.PlaceholderHolder, time.Now()); err != nil {
			return err
		}
		if err := tx.Journeys().AdjustAvailable(ctx, j.ID, -1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Journeys().Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableSeats)

	list, err := s.Seats().List(ctx, j.ID, []uuid.UUID{seats[0].ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsAvailable)
	assert.Empty(t, list[0].Holder)
}

func TestStore_CancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.RunBookingTx(ctx, func(context.Context, repository.BookingRepository) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestJourneyRepo_AdjustAvailableOutOfRange(t *testing.T) {
	s := NewStore()
	j, _ := seedJourney(t, s, 2)
	ctx := context.Background()

	assert.ErrorIs(t, s.Journeys().AdjustAvailable(ctx, j.ID, -3), repository.ErrConflict)
	assert.ErrorIs(t, s.Journeys().AdjustAvailable(ctx, j.ID, 1), repository.ErrConflict)

	got, _ := s.Journeys().Get(ctx, j.ID)
	assert.Equal(t, 2, got.AvailableSeats)
	assert.Zero(t, got.Version, "rejected adjustments leave the row untouched")

	require.NoError(t, s.Journeys().AdjustAvailable(ctx, j.ID, -2))
	got, _ = s.Journeys().Get(ctx, j.ID)
	assert.Zero(t, got.AvailableSeats)

	require.NoError(t, s.Journeys().AdjustAvailable(ctx, j.ID, 2))
	got, _ = s.Journeys().Get(ctx, j.ID)
	assert.Equal(t, 2, got.AvailableSeats)

	assert.ErrorIs(t, s.Journeys().AdjustAvailable(ctx, uuid.New(), 1), repository.ErrNotFound)
}

func TestSeatRepo_DuplicateSeatNumber(t *testing.T) {
	s := NewStore()
	j, _ := seedJourney(t, s, 1)

	err := s.Seats().BatchCreate(context.Background(), []domain.SeatInventory{
		{ID: uuid.New(), JourneyID: j.ID, SeatNumber: "A"},
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestSeatRepo_ListForUpdateOrdersByID(t *testing.T) {
	s := NewStore()
	j, seats := seedJourney(t, s, 4)

	ids := []uuid.UUID{seats[3].ID, seats[0].ID, seats[2].ID, uuid.New()}
	got, err := s.Seats().ListForUpdate(context.Background(), j.ID, ids)
	require.NoError(t, err)
	require.Len(t, got, 3)

	sorted := sortIDs(ids[:3])
	for i := range got {
		assert.Equal(t, sorted[i], got[i].ID)
	}
}

func TestSeatRepo_StalePlaceholders(t *testing.T) {
	s := NewStore()
	_, seats := seedJourney(t, s, 3)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Seats().Lock(ctx, []uuid.UUID{seats[0].ID}, domain.PlaceholderHolder, now.Add(-30*time.Minute)))
	require.NoError(t, s.Seats().Lock(ctx, []uuid.UUID{seats[1].ID}, domain.PlaceholderHolder, now.Add(-5*time.Minute)))
	require.NoError(t, s.Seats().Lock(ctx, []uuid.UUID{seats[2].ID}, uuid.NewString(), now.Add(-time.Hour)))

	stale, err := s.Seats().ListStalePlaceholders(ctx, now.Add(-20*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, seats[0].ID, stale[0].ID)

	require.NoError(t, s.Seats().SetHolder(ctx, []uuid.UUID{seats[0].ID}, "b-1"))
	stale, err = s.Seats().ListStalePlaceholders(ctx, now, 10)
	require.NoError(t, err)
	assert.Len(t, stale, 1, "stamped seats are no longer placeholders")
}

func newBooking(code string, expiry time.Time, status domain.BookingStatus) *domain.Booking {
	return &domain.Booking{
		ID:         uuid.New(),
		Code:       code,
		UserID:     1,
		JourneyID:  uuid.New(),
		Status:     status,
		ExpiryTime: expiry,
		Seats:      []domain.BookingSeat{{ID: uuid.New(), SeatNumber: "A", IsLocked: true}},
	}
}

func TestBookingRepo_CodeConflict(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Bookings().Create(ctx, newBooking("BKG1", time.Now(), domain.StatusSeatsBlocked)))
	err := s.Bookings().Create(ctx, newBooking("BKG1", time.Now(), domain.StatusSeatsBlocked))
	assert.ErrorIs(t, err, repository.ErrConflict)

	b, err := s.Bookings().GetByCode(ctx, "BKG1")
	require.NoError(t, err)
	assert.Equal(t, "BKG1", b.Code)

	_, err = s.Bookings().GetByCode(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBookingRepo_UpdateVersion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	b := newBooking("BKG2", time.Now(), domain.StatusSeatsBlocked)
	require.NoError(t, s.Bookings().Create(ctx, b))

	first, _ := s.Bookings().Get(ctx, b.ID)
	second, _ := s.Bookings().Get(ctx, b.ID)

	first.Status = domain.StatusConfirmed
	require.NoError(t, s.Bookings().Update(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	second.Status = domain.StatusCancelled
	assert.ErrorIs(t, s.Bookings().Update(ctx, second), repository.ErrVersionConflict)

	got, _ := s.Bookings().Get(ctx, b.ID)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
}

func TestBookingRepo_ReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	b := newBooking("BKG3", time.Now(), domain.StatusSeatsBlocked)
	require.NoError(t, s.Bookings().Create(ctx, b))

	got, _ := s.Bookings().Get(ctx, b.ID)
	got.Seats[0].SeatNumber = "Z"

	again, _ := s.Bookings().Get(ctx, b.ID)
	assert.Equal(t, "A", again.Seats[0].SeatNumber)

	require.NoError(t, s.Bookings().UnlockSeats(ctx, b.ID))
	again, _ = s.Bookings().Get(ctx, b.ID)
	assert.False(t, again.Seats[0].IsLocked)
}

func TestBookingRepo_ListExpired(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	older := newBooking("E1", now.Add(-10*time.Minute), domain.StatusPaymentPending)
	newer := newBooking("E2", now.Add(-time.Minute), domain.StatusSeatsBlocked)
	atBoundary := newBooking("E3", now, domain.StatusSeatsBlocked)
	confirmed := newBooking("E4", now.Add(-time.Hour), domain.StatusConfirmed)
	for _, b := range []*domain.Booking{newer, older, atBoundary, confirmed} {
		require.NoError(t, s.Bookings().Create(ctx, b))
	}

	statuses := []domain.BookingStatus{domain.StatusSeatsBlocked, domain.StatusPaymentPending}

	ids, err := s.Bookings().ListExpired(ctx, statuses, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{older.ID, newer.ID}, ids)

	ids, err = s.Bookings().ListExpired(ctx, statuses, now, 1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{older.ID}, ids)
}
