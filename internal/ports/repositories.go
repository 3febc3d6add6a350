package ports

import (
	"context"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/domain/driver"
	"shipease/internal/domain/geo"
	"shipease/internal/matching"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// BookingRepository reads bookings and records how matching ended for them.
type BookingRepository interface {
	GetByID(ctx context.Context, id string) (*booking.Booking, error)
	// LockByID reads the booking and holds its row lock until the transaction ends.
	LockByID(ctx context.Context, id string) (*booking.Booking, error)
	ListByRider(ctx context.Context, riderID string, limit int) ([]*booking.Booking, error)
	// UpdateMatch persists the status, driver and cancellation fields of b.
	// It only touches bookings that are still SEARCHING.
	UpdateMatch(ctx context.Context, b *booking.Booking) error
	CountByStatusSince(ctx context.Context, since time.Time) (map[booking.Status]int, error)
}

// MatchEventRepository is the append-only audit trail of matching attempts.
type MatchEventRepository interface {
	Append(ctx context.Context, event *booking.Event) error
	ListByBooking(ctx context.Context, bookingID string, limit int) ([]*booking.Event, error)
	CountByTypeSince(ctx context.Context, since time.Time) (map[booking.EventType]int, error)
}

// DriverIndex keeps the live position and availability of online drivers.
type DriverIndex interface {
	matching.CandidateFeed
	SetAvailable(ctx context.Context, driverID string, category booking.VehicleCategory, at geo.Point) error
	UpdateLocation(ctx context.Context, driverID string, at geo.Point) error
	SetStatus(ctx context.Context, driverID string, status driver.Status, category booking.VehicleCategory) error
	Remove(ctx context.Context, driverID string) error
	LastSeen(ctx context.Context, driverID string) (time.Time, bool, error)
}
