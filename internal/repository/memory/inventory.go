package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/repository"
)

type journeyRepo struct {
	s       *Store
	locking bool
}

func (r *journeyRepo) Create(_ context.Context, j *domain.Journey) error {
	const op = "memory.JourneyRepo.Create"

	defer r.s.guard(r.locking)()

	for _, existing := range r.s.st.journeys {
		if existing.ID == j.ID || existing.Code == j.Code {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	now := time.Now()
	j.CreatedAt, j.UpdatedAt, j.Version = now, now, 0
	r.s.st.journeys[j.ID] = *j

	return nil
}

func (r *journeyRepo) Get(_ context.Context, id uuid.UUID) (*domain.Journey, error) {
	const op = "memory.JourneyRepo.Get"

	defer r.s.guard(r.locking)()

	j, ok := r.s.st.journeys[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &j, nil
}

func (r *journeyRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Journey, error) {
	return r.Get(ctx, id)
}

func (r *journeyRepo) AdjustAvailable(_ context.Context, id uuid.UUID, delta int) error {
	const op = "memory.JourneyRepo.AdjustAvailable"

	defer r.s.guard(r.locking)()

	j, ok := r.s.st.journeys[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	next := j.AvailableSeats + delta
	if next < 0 || next > j.TotalSeats {
		return fmt.Errorf("%s:available seats %d%+d outside [0, %d]:%w",
			op, j.AvailableSeats, delta, j.TotalSeats, repository.ErrConflict)
	}

	j.AvailableSeats = next
	j.Version++
	j.UpdatedAt = time.Now()
	r.s.st.journeys[id] = j

	return nil
}

type seatRepo struct {
	s       *Store
	locking bool
}

func (r *seatRepo) BatchCreate(_ context.Context, seats []domain.SeatInventory) error {
	const op = "memory.SeatRepo.BatchCreate"

	defer r.s.guard(r.locking)()

	taken := make(map[string]bool)
	for _, s := range r.s.st.seats {
		taken[s.JourneyID.String()+"/"+s.SeatNumber] = true
	}

	for _, s := range seats {
		key := s.JourneyID.String() + "/" + s.SeatNumber
		if _, dup := r.s.st.seats[s.ID]; dup || taken[key] {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
		taken[key] = true
	}

	for _, s := range seats {
		s.IsAvailable = true
		s.Holder = ""
		s.LockedAt = nil
		r.s.st.seats[s.ID] = s
	}

	return nil
}

func (r *seatRepo) List(_ context.Context, journeyID uuid.UUID, ids []uuid.UUID) ([]domain.SeatInventory, error) {
	defer r.s.guard(r.locking)()

	out := r.collect(journeyID, ids)
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })

	return out, nil
}

func (r *seatRepo) ListForUpdate(_ context.Context, journeyID uuid.UUID, ids []uuid.UUID) ([]domain.SeatInventory, error) {
	defer r.s.guard(r.locking)()

	var out []domain.SeatInventory
	for _, id := range sortIDs(ids) {
		if s, ok := r.s.st.seats[id]; ok && s.JourneyID == journeyID {
			out = append(out, s)
		}
	}

	return out, nil
}

func (r *seatRepo) Lock(_ context.Context, ids []uuid.UUID, holder string, at time.Time) error {
	defer r.s.guard(r.locking)()

	for _, id := range ids {
		s, ok := r.s.st.seats[id]
		if !ok {
			continue
		}
		lockedAt := at
		s.IsAvailable = false
		s.Holder = holder
		s.LockedAt = &lockedAt
		s.Version++
		r.s.st.seats[id] = s
	}

	return nil
}

func (r *seatRepo) SetHolder(_ context.Context, ids []uuid.UUID, holder string) error {
	defer r.s.guard(r.locking)()

	for _, id := range ids {
		s, ok := r.s.st.seats[id]
		if !ok || s.IsAvailable {
			continue
		}
		s.Holder = holder
		s.Version++
		r.s.st.seats[id] = s
	}

	return nil
}

func (r *seatRepo) Release(_ context.Context, ids []uuid.UUID) error {
	defer r.s.guard(r.locking)()

	for _, id := range ids {
		s, ok := r.s.st.seats[id]
		if !ok {
			continue
		}
		s.IsAvailable = true
		s.Holder = ""
		s.LockedAt = nil
		s.Version++
		r.s.st.seats[id] = s
	}

	return nil
}

func (r *seatRepo) ListStalePlaceholders(_ context.Context, before time.Time, limit int) ([]domain.SeatInventory, error) {
	defer r.s.guard(r.locking)()

	var ids []uuid.UUID
	for id, s := range r.s.st.seats {
		if s.Holder == domain.PlaceholderHolder && s.LockedAt != nil && s.LockedAt.Before(before) {
			ids = append(ids, id)
		}
	}

	var out []domain.SeatInventory
	for _, id := range sortIDs(ids) {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, r.s.st.seats[id])
	}

	return out, nil
}

func (r *seatRepo) collect(journeyID uuid.UUID, ids []uuid.UUID) []domain.SeatInventory {
	var out []domain.SeatInventory
	if len(ids) == 0 {
		for _, s := range r.s.st.seats {
			if s.JourneyID == journeyID {
				out = append(out, s)
			}
		}
		return out
	}

	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if s, ok := r.s.st.seats[id]; ok && s.JourneyID == journeyID {
			out = append(out, s)
		}
	}
	return out
}
