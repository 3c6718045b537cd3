package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
)

type JourneyRepository interface {
	Create(ctx context.Context, j *domain.Journey) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Journey, error)
	// GetForUpdate takes an exclusive row lock on the journey until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Journey, error)
	AdjustAvailable(ctx context.Context, id uuid.UUID, delta int) error
}

type SeatRepository interface {
	BatchCreate(ctx context.Context, seats []domain.SeatInventory) error
	// List returns seats of a journey ordered by seat number. An empty ids
	// slice returns every seat.
	List(ctx context.Context, journeyID uuid.UUID, ids []uuid.UUID) ([]domain.SeatInventory, error)
	// ListForUpdate locks the requested seats in reference-id order.
	ListForUpdate(ctx context.Context, journeyID uuid.UUID, ids []uuid.UUID) ([]domain.SeatInventory, error)
	Lock(ctx context.Context, ids []uuid.UUID, holder string, at time.Time) error
	SetHolder(ctx context.Context, ids []uuid.UUID, holder string) error
	Release(ctx context.Context, ids []uuid.UUID) error
	// ListStalePlaceholders reads, without locking, seats still owned by
	// the placeholder holder since before the cutoff.
	ListStalePlaceholders(ctx context.Context, before time.Time, limit int) ([]domain.SeatInventory, error)
}

// InventoryTx exposes inventory repositories bound to one transaction.
type InventoryTx interface {
	Journeys() JourneyRepository
	Seats() SeatRepository
}

type InventoryStore interface {
	InventoryTx
	RunInventoryTx(ctx context.Context, fn func(ctx context.Context, tx InventoryTx) error) error
}

type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	// GetForUpdate takes an exclusive row lock on the booking until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetByCode(ctx context.Context, code string) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error)
	ListByJourney(ctx context.Context, journeyID uuid.UUID) ([]domain.Booking, error)
	ListExpired(ctx context.Context, statuses []domain.BookingStatus, now time.Time, limit int) ([]uuid.UUID, error)
	// ListUnreleased returns bookings in one of the statuses that still
	// have a seat marked locked.
	ListUnreleased(ctx context.Context, statuses []domain.BookingStatus, limit int) ([]uuid.UUID, error)
	// Update writes the mutable booking columns when b.Version matches the
	// stored version and bumps b.Version.
	Update(ctx context.Context, b *domain.Booking) error
	UnlockSeats(ctx context.Context, bookingID uuid.UUID) error
}

type BookingStore interface {
	Bookings() BookingRepository
	RunBookingTx(ctx context.Context, fn func(ctx context.Context, repo BookingRepository) error) error
}
