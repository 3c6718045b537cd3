package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/repository"
)

const bookingColumns = `reference_id, booking_code, user_id, journey_id, boarding_point_ref,
	dropping_point_ref, seat_count, total_amount_cents, discount_cents, final_amount_cents,
	booking_status, payment_status, payment_reference, payment_method, transaction_id,
	booking_time, expiry_time, cancelled_at, cancellation_reason, refund_cents,
	contact_email, contact_phone, version, created_at, updated_at`

type BookingRepo struct {
	pool Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts the booking together with its passengers and seats. It
// must run inside a transaction so the aggregate is written atomically.
//
// Returns:
//   - error: repository.ErrConflict if the booking code is already taken.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Create"

	db := r.handle()

	if err := db.QueryRow(ctx,
		`INSERT INTO bookings(reference_id, booking_code, user_id, journey_id, boarding_point_ref,
			dropping_point_ref, seat_count, total_amount_cents, discount_cents, final_amount_cents,
			booking_status, payment_status, booking_time, expiry_time, contact_email, contact_phone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING version, created_at, updated_at`,
		b.ID, b.Code, b.UserID, b.JourneyID, b.BoardingPointRef,
		b.DroppingPointRef, b.SeatCount, b.TotalAmountCents, b.DiscountCents, b.FinalAmountCents,
		string(b.Status), string(b.PaymentStatus), b.BookingTime, b.ExpiryTime, b.Contact.Email, b.Contact.Phone,
	).Scan(&b.Version, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return wrapDBErr(op, err)
	}

	batch := &pgx.Batch{}
	for i, p := range b.Passengers {
		batch.Queue(
			`INSERT INTO booking_passengers(reference_id, booking_id, ordinal, name, age, gender,
				id_type, id_number, seat_number, is_primary)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.ID, b.ID, i, p.Name, p.Age, string(p.Gender), p.IDType, p.IDNumber, p.SeatNumber, p.IsPrimary,
		)
	}
	for i, s := range b.Seats {
		batch.Queue(
			`INSERT INTO booking_seats(reference_id, booking_id, ordinal, seat_inventory_id,
				seat_number, passenger_id, fare_cents, is_locked)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			s.ID, b.ID, i, s.SeatInventoryID, s.SeatNumber, s.PassengerID, s.FareCents, s.IsLocked,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Get"

	return r.getOne(ctx, op,
		`SELECT `+bookingColumns+` FROM bookings WHERE reference_id = $1`, id)
}

func (r *BookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.GetForUpdate"

	return r.getOne(ctx, op,
		`SELECT `+bookingColumns+` FROM bookings WHERE reference_id = $1 FOR UPDATE`, id)
}

func (r *BookingRepo) GetByCode(ctx context.Context, code string) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.GetByCode"

	return r.getOne(ctx, op,
		`SELECT `+bookingColumns+` FROM bookings WHERE booking_code = $1`, code)
}

func (r *BookingRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListByUser"

	return r.list(ctx, op,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY booking_time DESC`, userID)
}

func (r *BookingRepo) ListByJourney(ctx context.Context, journeyID uuid.UUID) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListByJourney"

	return r.list(ctx, op,
		`SELECT `+bookingColumns+` FROM bookings WHERE journey_id = $1 ORDER BY booking_time DESC`, journeyID)
}

// ListExpired returns ids of bookings in one of the given statuses whose
// hold lapsed before now, oldest first.
func (r *BookingRepo) ListExpired(
	ctx context.Context,
	statuses []domain.BookingStatus,
	now time.Time,
	limit int,
) ([]uuid.UUID, error) {
	const op = "postgres.BookingRepo.ListExpired"

	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}

	return r.ids(ctx, op,
		`SELECT reference_id FROM bookings
		 WHERE booking_status = ANY($1) AND expiry_time < $2
		 ORDER BY expiry_time
		 LIMIT $3`,
		names, now, limit,
	)
}

// ListUnreleased returns ids of bookings in one of the given statuses that
// still have a locked seat, least recently updated first.
func (r *BookingRepo) ListUnreleased(
	ctx context.Context,
	statuses []domain.BookingStatus,
	limit int,
) ([]uuid.UUID, error) {
	const op = "postgres.BookingRepo.ListUnreleased"

	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}

	return r.ids(ctx, op,
		`SELECT b.reference_id FROM bookings b
		 WHERE b.booking_status = ANY($1)
		   AND EXISTS (SELECT 1 FROM booking_seats s WHERE s.booking_id = b.reference_id AND s.is_locked)
		 ORDER BY b.updated_at
		 LIMIT $2`,
		names, limit,
	)
}

func (r *BookingRepo) ids(ctx context.Context, op, sql string, args ...any) ([]uuid.UUID, error) {
	rows, err := r.handle().Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBErr(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ids, nil
}

// Update writes the mutable columns of a booking guarded by its version.
//
// Returns:
//   - error: repository.ErrVersionConflict if the stored version moved on.
func (r *BookingRepo) Update(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Update"

	err := r.handle().QueryRow(ctx,
		`UPDATE bookings
		 SET booking_status = $3, payment_status = $4, payment_reference = $5, payment_method = $6,
		     transaction_id = $7, cancelled_at = $8, cancellation_reason = $9, refund_cents = $10,
		     version = version + 1, updated_at = now()
		 WHERE reference_id = $1 AND version = $2
		 RETURNING version, updated_at`,
		b.ID, b.Version, string(b.Status), string(b.PaymentStatus), b.PaymentReference, b.PaymentMethod,
		b.TransactionID, b.CancelledAt, b.CancellationReason, b.RefundCents,
	).Scan(&b.Version, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s:%w", op, repository.ErrVersionConflict)
		}
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *BookingRepo) UnlockSeats(ctx context.Context, bookingID uuid.UUID) error {
	const op = "postgres.BookingRepo.UnlockSeats"

	if _, err := r.handle().Exec(ctx,
		`UPDATE booking_seats SET is_locked = FALSE WHERE booking_id = $1`,
		bookingID,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *BookingRepo) getOne(ctx context.Context, op, sql string, arg any) (*domain.Booking, error) {
	db := r.handle()

	b, err := scanBooking(db.QueryRow(ctx, sql, arg))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if err := loadChildren(ctx, db, b); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

func (r *BookingRepo) list(ctx context.Context, op, sql string, arg any) ([]domain.Booking, error) {
	db := r.handle()

	rows, err := db.Query(ctx, sql, arg)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	for i := range out {
		if err := loadChildren(ctx, db, &out[i]); err != nil {
			return nil, wrapDBErr(op, err)
		}
	}

	return out, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b             domain.Booking
		status        string
		paymentStatus string
	)
	if err := row.Scan(
		&b.ID, &b.Code, &b.UserID, &b.JourneyID, &b.BoardingPointRef,
		&b.DroppingPointRef, &b.SeatCount, &b.TotalAmountCents, &b.DiscountCents, &b.FinalAmountCents,
		&status, &paymentStatus, &b.PaymentReference, &b.PaymentMethod, &b.TransactionID,
		&b.BookingTime, &b.ExpiryTime, &b.CancelledAt, &b.CancellationReason, &b.RefundCents,
		&b.Contact.Email, &b.Contact.Phone, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Status = domain.BookingStatus(status)
	b.PaymentStatus = domain.PaymentStatus(paymentStatus)
	return &b, nil
}

func loadChildren(ctx context.Context, db DB, b *domain.Booking) error {
	rows, err := db.Query(ctx,
		`SELECT reference_id, name, age, gender, id_type, id_number, seat_number, is_primary
		 FROM booking_passengers WHERE booking_id = $1 ORDER BY ordinal`,
		b.ID,
	)
	if err != nil {
		return err
	}
	b.Passengers = nil
	for rows.Next() {
		var (
			p      domain.Passenger
			gender string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Age, &gender, &p.IDType, &p.IDNumber, &p.SeatNumber, &p.IsPrimary); err != nil {
			rows.Close()
			return err
		}
		p.Gender = domain.Gender(gender)
		b.Passengers = append(b.Passengers, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = db.Query(ctx,
		`SELECT reference_id, seat_inventory_id, seat_number, passenger_id, fare_cents, is_locked
		 FROM booking_seats WHERE booking_id = $1 ORDER BY ordinal`,
		b.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	b.Seats = nil
	for rows.Next() {
		var s domain.BookingSeat
		if err := rows.Scan(&s.ID, &s.SeatInventoryID, &s.SeatNumber, &s.PassengerID, &s.FareCents, &s.IsLocked); err != nil {
			return err
		}
		b.Seats = append(b.Seats, s)
	}

	return rows.Err()
}
