package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/repository"
)

type bookingRepo struct {
	s       *Store
	locking bool
}

func (r *bookingRepo) Create(_ context.Context, b *domain.Booking) error {
	const op = "memory.BookingRepo.Create"

	defer r.s.guard(r.locking)()

	if _, ok := r.s.st.bookings[b.ID]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}
	if _, ok := r.s.st.codes[b.Code]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	now := time.Now()
	b.CreatedAt, b.UpdatedAt, b.Version = now, now, 0
	r.s.st.bookings[b.ID] = cloneBooking(*b)
	r.s.st.codes[b.Code] = b.ID

	return nil
}

func (r *bookingRepo) Get(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "memory.BookingRepo.Get"

	defer r.s.guard(r.locking)()

	b, ok := r.s.st.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	cp := cloneBooking(b)
	return &cp, nil
}

func (r *bookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return r.Get(ctx, id)
}

func (r *bookingRepo) GetByCode(ctx context.Context, code string) (*domain.Booking, error) {
	const op = "memory.BookingRepo.GetByCode"

	unlock := r.s.guard(r.locking)
	id, ok := r.s.st.codes[code]
	unlock()
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return r.Get(ctx, id)
}

func (r *bookingRepo) ListByUser(_ context.Context, userID int64) ([]domain.Booking, error) {
	defer r.s.guard(r.locking)()

	return r.filter(func(b domain.Booking) bool { return b.UserID == userID }), nil
}

func (r *bookingRepo) ListByJourney(_ context.Context, journeyID uuid.UUID) ([]domain.Booking, error) {
	defer r.s.guard(r.locking)()

	return r.filter(func(b domain.Booking) bool { return b.JourneyID == journeyID }), nil
}

func (r *bookingRepo) ListExpired(
	_ context.Context,
	statuses []domain.BookingStatus,
	now time.Time,
	limit int,
) ([]uuid.UUID, error) {
	defer r.s.guard(r.locking)()

	var expired []domain.Booking
	for _, b := range r.s.st.bookings {
		for _, st := range statuses {
			if b.Status == st && b.ExpiryTime.Before(now) {
				expired = append(expired, b)
				break
			}
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiryTime.Before(expired[j].ExpiryTime) })

	var ids []uuid.UUID
	for _, b := range expired {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, b.ID)
	}

	return ids, nil
}

func (r *bookingRepo) ListUnreleased(
	_ context.Context,
	statuses []domain.BookingStatus,
	limit int,
) ([]uuid.UUID, error) {
	defer r.s.guard(r.locking)()

	var stuck []domain.Booking
	for _, b := range r.s.st.bookings {
		if slices.Contains(statuses, b.Status) && len(b.LockedSeatIDs()) > 0 {
			stuck = append(stuck, b)
		}
	}
	sort.Slice(stuck, func(i, j int) bool { return stuck[i].UpdatedAt.Before(stuck[j].UpdatedAt) })

	var ids []uuid.UUID
	for _, b := range stuck {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, b.ID)
	}

	return ids, nil
}

func (r *bookingRepo) Update(_ context.Context, b *domain.Booking) error {
	const op = "memory.BookingRepo.Update"

	defer r.s.guard(r.locking)()

	cur, ok := r.s.st.bookings[b.ID]
	if !ok || cur.Version != b.Version {
		return fmt.Errorf("%s:%w", op, repository.ErrVersionConflict)
	}

	cur.Status = b.Status
	cur.PaymentStatus = b.PaymentStatus
	cur.PaymentReference = b.PaymentReference
	cur.PaymentMethod = b.PaymentMethod
	cur.TransactionID = b.TransactionID
	cur.CancelledAt = b.CancelledAt
	cur.CancellationReason = b.CancellationReason
	cur.RefundCents = b.RefundCents
	cur.Version++
	cur.UpdatedAt = time.Now()
	r.s.st.bookings[b.ID] = cloneBooking(cur)

	b.Version = cur.Version
	b.UpdatedAt = cur.UpdatedAt

	return nil
}

func (r *bookingRepo) UnlockSeats(_ context.Context, bookingID uuid.UUID) error {
	defer r.s.guard(r.locking)()

	b, ok := r.s.st.bookings[bookingID]
	if !ok {
		return nil
	}
	for i := range b.Seats {
		b.Seats[i].IsLocked = false
	}
	r.s.st.bookings[bookingID] = b

	return nil
}

func (r *bookingRepo) filter(keep func(domain.Booking) bool) []domain.Booking {
	var out []domain.Booking
	for _, b := range r.s.st.bookings {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingTime.After(out[j].BookingTime) })
	return out
}
