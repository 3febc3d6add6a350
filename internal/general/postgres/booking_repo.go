package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BookingRepo persists bookings using pgx and plain SQL.
type BookingRepo struct{}

// NewBookingRepo constructs a new BookingRepo.
func NewBookingRepo() ports.BookingRepository {
	return &BookingRepo{}
}

const bookingColumns = `
	id, created_at, updated_at, rider_id, vehicle_category,
	pickup_lat, pickup_lng, drop_lat, drop_lng, total_price::float8,
	status, driver_id, confirmed_at, cancelled_at, cancellation_reason`

// GetByID fetches a booking by primary key (uuid). Unknown or malformed ids
// return booking.ErrNotFound.
func (repo *BookingRepo) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	return repo.selectOne(ctx, id, "")
}

// LockByID is GetByID plus a row lock held until the transaction ends.
func (repo *BookingRepo) LockByID(ctx context.Context, id string) (*booking.Booking, error) {
	return repo.selectOne(ctx, id, "FOR UPDATE")
}

func (repo *BookingRepo) selectOne(ctx context.Context, id, lock string) (*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", booking.ErrNotFound, id)
	}

	row := tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 `+lock, id)
	out, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", booking.ErrNotFound, id)
		}
		return nil, fmt.Errorf("select booking: %w", err)
	}
	return out, nil
}

// ListByRider returns the rider's bookings, newest first.
func (repo *BookingRepo) ListByRider(ctx context.Context, riderID string, limit int) ([]*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE rider_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, riderID, limit)
	if err != nil {
		return nil, fmt.Errorf("list rider bookings: %w", err)
	}
	defer rows.Close()

	var out []*booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rider bookings: %w", err)
	}
	return out, nil
}

func scanBooking(row pgx.Row) (*booking.Booking, error) {
	var (
		out      booking.Booking
		category string
		status   string
	)
	err := row.Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &out.RiderID, &category,
		&out.Pickup.Lat, &out.Pickup.Lng, &out.Drop.Lat, &out.Drop.Lng, &out.TotalPrice,
		&status, &out.DriverID, &out.ConfirmedAt, &out.CancelledAt, &out.CancellationReason,
	)
	if err != nil {
		return nil, err
	}
	out.Category = booking.VehicleCategory(category)
	out.Status = booking.Status(status)
	return &out, nil
}

// UpdateMatch writes the outcome of matching onto a booking that is still
// SEARCHING. A booking that already left SEARCHING is not touched and
// booking.ErrInvalidStatusMove is returned.
func (repo *BookingRepo) UpdateMatch(ctx context.Context, b *booking.Booking) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var updatedAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE bookings
		SET status              = $2,
		    driver_id           = $3,
		    confirmed_at        = $4,
		    cancelled_at        = $5,
		    cancellation_reason = $6,
		    updated_at          = now()
		WHERE id = $1
		  AND status = 'SEARCHING'
		RETURNING updated_at
	`,
		b.ID,
		b.Status.String(),
		b.DriverID,
		b.ConfirmedAt,
		b.CancelledAt,
		b.CancellationReason,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: booking %s is no longer searching", booking.ErrInvalidStatusMove, b.ID)
		}
		return fmt.Errorf("update booking: %w", err)
	}

	b.UpdatedAt = updatedAt
	return nil
}
