// Package memory keeps repositories in process memory. A store-wide mutex
// serializes transactions and a snapshot restores state on rollback, which
// gives the same isolation the Postgres store gets from row locks.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/repository"
)

type state struct {
	journeys map[uuid.UUID]domain.Journey
	seats    map[uuid.UUID]domain.SeatInventory
	bookings map[uuid.UUID]domain.Booking
	codes    map[string]uuid.UUID
}

func newState() *state {
	return &state{
		journeys: make(map[uuid.UUID]domain.Journey),
		seats:    make(map[uuid.UUID]domain.SeatInventory),
		bookings: make(map[uuid.UUID]domain.Booking),
		codes:    make(map[string]uuid.UUID),
	}
}

func (s *state) clone() *state {
	cp := newState()
	for k, v := range s.journeys {
		cp.journeys[k] = v
	}
	for k, v := range s.seats {
		cp.seats[k] = v
	}
	for k, v := range s.bookings {
		cp.bookings[k] = cloneBooking(v)
	}
	for k, v := range s.codes {
		cp.codes[k] = v
	}
	return cp
}

type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// guard locks the store for a single call made outside a transaction.
func (s *Store) guard(locking bool) func() {
	if !locking {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.st.clone()
	if err := fn(ctx); err != nil {
		s.st = snapshot
		return err
	}

	return nil
}

func (s *Store) Journeys() repository.JourneyRepository { return &journeyRepo{s: s, locking: true} }
func (s *Store) Seats() repository.SeatRepository       { return &seatRepo{s: s, locking: true} }
func (s *Store) Bookings() repository.BookingRepository { return &bookingRepo{s: s, locking: true} }

type inventoryTx struct {
	s *Store
}

func (t inventoryTx) Journeys() repository.JourneyRepository { return &journeyRepo{s: t.s} }
func (t inventoryTx) Seats() repository.SeatRepository       { return &seatRepo{s: t.s} }

func (s *Store) RunInventoryTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.InventoryTx) error,
) error {
	return s.runTx(ctx, func(ctx context.Context) error {
		return fn(ctx, inventoryTx{s: s})
	})
}

func (s *Store) RunBookingTx(
	ctx context.Context,
	fn func(ctx context.Context, repo repository.BookingRepository) error,
) error {
	return s.runTx(ctx, func(ctx context.Context) error {
		return fn(ctx, &bookingRepo{s: s})
	})
}

func sortIDs(ids []uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID(nil), ids...)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

func cloneBooking(b domain.Booking) domain.Booking {
	b.Passengers = append([]domain.Passenger(nil), b.Passengers...)
	b.Seats = append([]domain.BookingSeat(nil), b.Seats...)
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		b.CancelledAt = &t
	}
	return b
}
