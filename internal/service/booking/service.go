package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/gateway"
	"github.com/kirinyoku/busgo/internal/repository"
	"github.com/kirinyoku/busgo/internal/uow"
)

// EventPublisher delivers booking lifecycle events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.BookingEvent) error
}

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, int64, time.Duration, error)
}

type Config struct {
	CodeAttempts int
	Clock        func() time.Time
}

// Service drives the booking saga: lock seats remotely, persist locally,
// then confirm, cancel, fail or expire with a compensating release.
type Service struct {
	store     repository.BookingStore
	uow       *uow.UoW[repository.BookingRepository]
	inventory gateway.Gateway
	limiter   Limiter
	events    EventPublisher
	validator *Validator
	logger    *slog.Logger
	cfg       Config
}

func New(
	store repository.BookingStore,
	inventory gateway.Gateway,
	limiter Limiter,
	events EventPublisher,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = 5
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:     store,
		uow:       uow.New[repository.BookingRepository](store.RunBookingTx),
		inventory: inventory,
		limiter:   limiter,
		events:    events,
		validator: NewValidator(),
		logger:    logger,
		cfg:       cfg,
	}
}

// Initiate validates the request, locks every selected seat through the
// inventory gateway and persists the booking as SEATS_BLOCKED with a
// 15 minute hold. If persisting fails the seats are released again.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: journey, seat selections, passengers and contact details.
//   - rlKey: rate limit bucket; empty disables limiting.
//
// Returns:
//   - *domain.Booking: the stored booking.
//   - error: booking.ValidationErrors (wrapping ErrInvalidRequest) for malformed input.
//   - error: booking.ErrJourneyNotFound or booking.ErrJourneyInactive.
//   - error: booking.ErrSeatUnavailable if any seat is already held.
//   - error: booking.RateLimitError when rlKey is over its limit.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest, rlKey string) (*domain.Booking, error) {
	const op = "service.booking.Initiate"

	if err := s.validator.ValidateInitiate(&req); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: %w", op, RateLimitError{RetryAfter: retry})
		}
	}

	journey, err := s.inventory.GetJourney(ctx, req.JourneyID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrJourneyNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !journey.IsActive {
		return nil, fmt.Errorf("%s: %w", op, ErrJourneyInactive)
	}

	seatIDs := make([]uuid.UUID, 0, len(req.Seats))
	for _, sel := range req.Seats {
		seatIDs = append(seatIDs, sel.SeatID)
	}

	locked, err := s.inventory.LockSeats(ctx, req.JourneyID, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, lockErr(err))
	}

	now := s.cfg.Clock().UTC()

	b, err := newBooking(req, locked, now)
	if err != nil {
		s.compensate(ctx, req.JourneyID, seatIDs, uuid.Nil)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.persist(ctx, b); err != nil {
		s.compensate(ctx, req.JourneyID, seatIDs, b.ID)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Seats stay owned by the placeholder when this fails. Confirm stamps
	// them again before the placeholder sweep can reclaim them.
	if _, err := s.inventory.ConfirmSeats(ctx, b.JourneyID, seatIDs, b.ID); err != nil {
		s.logger.Warn("stamp booking reference on seats failed",
			slog.String("booking_id", b.ID.String()),
			slog.String("journey_id", b.JourneyID.String()),
			slog.Any("error", err),
		)
	}

	s.logger.Info("booking initiated",
		slog.String("booking_id", b.ID.String()),
		slog.String("code", b.Code),
		slog.Int("seats", b.SeatCount),
	)

	return b, nil
}

// Confirm applies a payment outcome to a blocked booking. A successful
// payment first stamps the booking on its seats; if the inventory no
// longer holds every seat for it the booking fails with
// ErrSeatUnavailable. A hold that has lapsed is moved to EXPIRED and
// ErrExpired is returned even if the payment succeeded. Seats of a booking
// that ends FAILED or EXPIRED are released after the status is committed.
//
// Returns:
//   - *domain.Booking: the booking after the transition.
//   - error: booking.ErrBookingNotFound, booking.WrongStateError or booking.ErrExpired.
//   - error: booking.ErrSeatUnavailable when the seats were lost before payment landed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, outcome domain.PaymentOutcome) (*domain.Booking, error) {
	const op = "service.booking.Confirm"

	var (
		result *domain.Booking
		failed error
	)

	err := s.uow.Do(ctx, func(ctx context.Context, repo repository.BookingRepository, after func(uow.AfterCommit)) error {
		failed = nil

		b, err := s.lockBooking(ctx, repo, id)
		if err != nil {
			return err
		}

		if b.Status != domain.StatusSeatsBlocked && b.Status != domain.StatusPaymentPending {
			return WrongStateError{From: b.Status, Op: "confirm"}
		}

		now := s.cfg.Clock().UTC()
		if now.After(b.ExpiryTime) {
			if err := s.transition(ctx, repo, b, domain.StatusExpired, after); err != nil {
				return err
			}
			result, failed = b, ErrExpired
			return nil
		}

		b.PaymentReference = outcome.PaymentReference
		b.PaymentMethod = outcome.Method
		b.TransactionID = outcome.TransactionID

		next := domain.StatusFailed
		b.PaymentStatus = domain.PaymentFailed
		if outcome.Status == domain.PaymentSuccess {
			next = domain.StatusConfirmed
			b.PaymentStatus = domain.PaymentSuccess

			held, err := s.inventory.ConfirmSeats(ctx, b.JourneyID, b.SeatIDs(), b.ID)
			if err != nil {
				return fmt.Errorf("stamp seats: %w", err)
			}
			if held != b.SeatCount {
				next = domain.StatusFailed
				failed = fmt.Errorf("%w: inventory holds %d of %d seats", ErrSeatUnavailable, held, b.SeatCount)
			}
		}

		if err := s.transition(ctx, repo, b, next, after); err != nil {
			return err
		}

		result = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.settleOrDefer(ctx, result)

	if failed != nil {
		return result, fmt.Errorf("%s: %w", op, failed)
	}

	return result, nil
}

// Cancel cancels a blocked or confirmed booking and releases its seats.
// Confirmed bookings get a refund based on time left until departure.
//
// Returns:
//   - *domain.Booking: the cancelled booking.
//   - error: booking.ErrBookingNotFound or booking.WrongStateError.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Booking, error) {
	const op = "service.booking.Cancel"

	var result *domain.Booking

	err := s.uow.Do(ctx, func(ctx context.Context, repo repository.BookingRepository, after func(uow.AfterCommit)) error {
		b, err := s.lockBooking(ctx, repo, id)
		if err != nil {
			return err
		}

		if b.Status != domain.StatusConfirmed && b.Status != domain.StatusSeatsBlocked {
			return WrongStateError{From: b.Status, Op: "cancel"}
		}

		now := s.cfg.Clock().UTC()

		if b.Status == domain.StatusConfirmed {
			journey, err := s.inventory.GetJourney(ctx, b.JourneyID)
			if err != nil {
				return fmt.Errorf("load journey for refund: %w", err)
			}
			b.RefundCents = Refund(b, journey.DepartureTime, now)
		}

		b.CancelledAt = &now
		b.CancellationReason = strings.TrimSpace(reason)

		if err := s.transition(ctx, repo, b, domain.StatusCancelled, after); err != nil {
			return err
		}

		result = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.settleOrDefer(ctx, result)

	return result, nil
}

// UpdateStatus force-sets the booking status. Moving into CANCELLED,
// FAILED, EXPIRED or REFUNDED releases any seats still held. A booking
// whose seats were released cannot be moved back into a status that
// holds seats.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) (*domain.Booking, error) {
	const op = "service.booking.UpdateStatus"

	if !status.Valid() {
		return nil, fmt.Errorf("%s: unknown status %q: %w", op, status, ErrInvalidRequest)
	}

	var result *domain.Booking

	err := s.uow.Do(ctx, func(ctx context.Context, repo repository.BookingRepository, after func(uow.AfterCommit)) error {
		b, err := s.lockBooking(ctx, repo, id)
		if err != nil {
			return err
		}

		if b.Status.ReleasesSeats() && status.HoldsSeats() {
			return WrongStateError{From: b.Status, Op: "reopen"}
		}

		if err := s.transition(ctx, repo, b, status, after); err != nil {
			return err
		}

		result = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.settleOrDefer(ctx, result)

	return result, nil
}

// ListExpired returns ids of unconfirmed bookings whose hold has lapsed.
func (s *Service) ListExpired(ctx context.Context, limit int) ([]uuid.UUID, error) {
	const op = "service.booking.ListExpired"

	ids, err := s.store.Bookings().ListExpired(
		ctx,
		[]domain.BookingStatus{domain.StatusSeatsBlocked, domain.StatusPaymentPending},
		s.cfg.Clock().UTC(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ids, nil
}

// Expire moves one lapsed booking to EXPIRED and releases its seats. It
// reports false when the booking no longer qualifies, for example because
// it was confirmed or cancelled after it was listed. When the release
// fails the booking stays EXPIRED with its seats marked locked and the
// error is returned; ReleaseHeld retries it.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "service.booking.Expire"

	var expired *domain.Booking

	err := s.uow.Do(ctx, func(ctx context.Context, repo repository.BookingRepository, after func(uow.AfterCommit)) error {
		expired = nil

		b, err := s.lockBooking(ctx, repo, id)
		if err != nil {
			return err
		}

		if b.Status != domain.StatusSeatsBlocked && b.Status != domain.StatusPaymentPending {
			return nil
		}

		if !s.cfg.Clock().UTC().After(b.ExpiryTime) {
			return nil
		}

		if err := s.transition(ctx, repo, b, domain.StatusExpired, after); err != nil {
			return err
		}

		expired = b
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if expired == nil {
		return false, nil
	}

	if err := s.settle(ctx, expired); err != nil {
		return true, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

// ListUnreleased returns ids of bookings in a releasing status that still
// have seats marked locked, oldest first.
func (s *Service) ListUnreleased(ctx context.Context, limit int) ([]uuid.UUID, error) {
	const op = "service.booking.ListUnreleased"

	ids, err := s.store.Bookings().ListUnreleased(ctx, releasing, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ids, nil
}

// ReleaseHeld retries the seat release of a cancelled, failed, expired or
// refunded booking. It reports false when there was nothing left to
// release.
func (s *Service) ReleaseHeld(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "service.booking.ReleaseHeld"

	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fmt.Errorf("%s: %w", op, ErrBookingNotFound)
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !b.Status.ReleasesSeats() || len(b.LockedSeatIDs()) == 0 {
		return false, nil
	}

	if err := s.settle(ctx, b); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("released seats of settled booking",
		slog.String("booking_id", b.ID.String()),
		slog.String("status", string(b.Status)),
	)

	return true, nil
}

var releasing = []domain.BookingStatus{
	domain.StatusCancelled,
	domain.StatusFailed,
	domain.StatusExpired,
	domain.StatusRefunded,
}

// transition sets the new status and writes the booking under its version
// guard. It never touches seats; settle releases them once the status has
// committed.
func (s *Service) transition(
	ctx context.Context,
	repo repository.BookingRepository,
	b *domain.Booking,
	next domain.BookingStatus,
	after func(uow.AfterCommit),
) error {
	b.Status = next

	if err := repo.Update(ctx, b); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return ErrConcurrentWrite
		}
		return err
	}

	if t, ok := eventFor(next); ok {
		after(s.publish(domain.NewBookingEvent(t, b, s.cfg.Clock().UTC())))
	}

	return nil
}

// settle releases the seats a committed booking in a releasing status
// still holds and then clears their lock flags. The flags stay set when
// the release fails.
func (s *Service) settle(ctx context.Context, b *domain.Booking) error {
	if b == nil || !b.Status.ReleasesSeats() {
		return nil
	}

	ids := b.LockedSeatIDs()
	if len(ids) == 0 {
		return nil
	}

	ctx = context.WithoutCancel(ctx)

	if _, err := s.inventory.ReleaseSeats(ctx, b.JourneyID, ids, b.ID); err != nil && !errors.Is(err, gateway.ErrNotFound) {
		return fmt.Errorf("release seats: %w", err)
	}

	if err := s.store.Bookings().UnlockSeats(ctx, b.ID); err != nil {
		return fmt.Errorf("unlock booking seats: %w", err)
	}

	for i := range b.Seats {
		b.Seats[i].IsLocked = false
	}

	return nil
}

func (s *Service) settleOrDefer(ctx context.Context, b *domain.Booking) {
	if err := s.settle(ctx, b); err != nil {
		s.logger.Warn("seat release left to the expiry sweep",
			slog.String("booking_id", b.ID.String()),
			slog.String("status", string(b.Status)),
			slog.Any("error", err),
		)
	}
}

func (s *Service) lockBooking(ctx context.Context, repo repository.BookingRepository, id uuid.UUID) (*domain.Booking, error) {
	b, err := repo.GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

// persist stores a new booking, drawing a fresh code when the current one
// collides with an existing booking.
func (s *Service) persist(ctx context.Context, b *domain.Booking) error {
	var err error
	for range s.cfg.CodeAttempts {
		if b.Code, err = NewCode(b.BookingTime); err != nil {
			return err
		}

		err = s.uow.Do(ctx, func(ctx context.Context, repo repository.BookingRepository, after func(uow.AfterCommit)) error {
			if err := repo.Create(ctx, b); err != nil {
				return err
			}
			after(s.publish(domain.NewBookingEvent(domain.EventBookingInitiated, b, b.BookingTime)))
			return nil
		})
		if !errors.Is(err, repository.ErrConflict) {
			return err
		}
	}

	return fmt.Errorf("booking code collision after %d attempts: %w", s.cfg.CodeAttempts, err)
}

// compensate releases seats locked for an initiate that did not persist.
// It runs detached from the request so a cancelled caller cannot leak the
// hold.
func (s *Service) compensate(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID, bookingID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)

	if _, err := s.inventory.ReleaseSeats(ctx, journeyID, seatIDs, bookingID); err != nil {
		s.logger.Error("release seats after failed initiate",
			slog.String("journey_id", journeyID.String()),
			slog.Any("error", err),
		)
	}
}

func (s *Service) publish(evt domain.BookingEvent) uow.AfterCommit {
	return func(ctx context.Context) {
		if s.events == nil {
			return
		}
		if err := s.events.Publish(ctx, evt); err != nil {
			s.logger.Warn("publish booking event",
				slog.String("type", string(evt.Type)),
				slog.String("booking_id", evt.BookingID.String()),
				slog.Any("error", err),
			)
		}
	}
}

func eventFor(status domain.BookingStatus) (domain.BookingEventType, bool) {
	switch status {
	case domain.StatusConfirmed:
		return domain.EventBookingConfirmed, true
	case domain.StatusFailed:
		return domain.EventBookingFailed, true
	case domain.StatusCancelled:
		return domain.EventBookingCancelled, true
	case domain.StatusExpired:
		return domain.EventBookingExpired, true
	}
	return "", false
}

func lockErr(err error) error {
	var unavailable gateway.SeatsUnavailableError
	switch {
	case errors.As(err, &unavailable):
		if len(unavailable.SeatNumbers) == 0 {
			return ErrSeatUnavailable
		}
		return fmt.Errorf("%w: %s", ErrSeatUnavailable, strings.Join(unavailable.SeatNumbers, ", "))
	case errors.Is(err, gateway.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrSeatNotFound, err)
	case errors.Is(err, gateway.ErrBadRequest):
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return err
}

// newBooking builds the aggregate from the request and the lock snapshot.
// Fares always come from the snapshot.
func newBooking(req InitiateRequest, locked []domain.LockedSeat, now time.Time) (*domain.Booking, error) {
	if len(locked) != len(req.Seats) {
		return nil, fmt.Errorf("locked %d of %d seats: %w", len(locked), len(req.Seats), ErrBusinessRule)
	}

	byID := make(map[uuid.UUID]domain.LockedSeat, len(locked))
	for _, seat := range locked {
		byID[seat.ID] = seat
	}

	b := &domain.Booking{
		ID:               uuid.New(),
		UserID:           req.UserID,
		JourneyID:        req.JourneyID,
		BoardingPointRef: req.BoardingPointRef,
		DroppingPointRef: req.DroppingPointRef,
		SeatCount:        len(req.Seats),
		Status:           domain.StatusSeatsBlocked,
		PaymentStatus:    domain.PaymentPending,
		BookingTime:      now,
		ExpiryTime:       now.Add(domain.HoldWindow),
		Contact: domain.Contact{
			Email: strings.TrimSpace(req.ContactEmail),
			Phone: req.ContactPhone,
		},
		Passengers: make([]domain.Passenger, len(req.Passengers)),
		Seats:      make([]domain.BookingSeat, 0, len(req.Seats)),
	}

	for i, p := range req.Passengers {
		b.Passengers[i] = domain.Passenger{
			ID:        uuid.New(),
			Name:      strings.TrimSpace(p.Name),
			Age:       p.Age,
			Gender:    p.Gender,
			IDType:    p.IDType,
			IDNumber:  p.IDNumber,
			IsPrimary: p.IsPrimary,
		}
	}

	for _, sel := range req.Seats {
		seat, ok := byID[sel.SeatID]
		if !ok {
			return nil, fmt.Errorf("seat %s missing from lock result: %w", sel.SeatID, ErrBusinessRule)
		}
		if sel.SeatNumber != "" && sel.SeatNumber != seat.SeatNumber {
			return nil, fmt.Errorf("seat %s is %s, not %s: %w", sel.SeatID, seat.SeatNumber, sel.SeatNumber, ErrBusinessRule)
		}

		passenger := &b.Passengers[sel.PassengerIndex]
		passenger.SeatNumber = seat.SeatNumber

		b.Seats = append(b.Seats, domain.BookingSeat{
			ID:              uuid.New(),
			SeatInventoryID: seat.ID,
			SeatNumber:      seat.SeatNumber,
			PassengerID:     passenger.ID,
			FareCents:       seat.CalculatedFareCents,
			IsLocked:        true,
		})
		b.TotalAmountCents += seat.CalculatedFareCents
	}

	b.FinalAmountCents = b.TotalAmountCents - b.DiscountCents

	return b, nil
}
