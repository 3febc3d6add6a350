package booking

import (
	"errors"
	"math"
	"strings"
	"time"

	"shipease/internal/domain/geo"
)

// Booking is the domain entity corresponding to the `bookings` table.
// Bookings are created by the booking backend; this service only moves them
// out of SEARCHING once matching ends.
type Booking struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	RiderID    string
	Category   VehicleCategory
	Pickup     geo.Point
	Drop       geo.Point
	TotalPrice float64

	Status             Status
	DriverID           *string
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
}

var (
	ErrRiderIDRequired   = errors.New("rider id is required")
	ErrDriverIDRequired  = errors.New("driver id is required")
	ErrInvalidPrice      = errors.New("total price must be a finite, non-negative number")
	ErrInvalidStatusMove = errors.New("invalid booking status transition")
	ErrNotFound          = errors.New("booking not found")
	ErrNotOwner          = errors.New("booking belongs to another rider")
)

// Validate checks the invariants the matching service relies on.
func (booking *Booking) Validate() error {
	if strings.TrimSpace(booking.ID) == "" {
		return ErrBookingIDRequired
	}
	if strings.TrimSpace(booking.RiderID) == "" {
		return ErrRiderIDRequired
	}
	if !booking.Category.Valid() {
		return ErrInvalidVehicleCategory
	}
	if err := booking.Pickup.Validate(); err != nil {
		return err
	}
	if err := booking.Drop.Validate(); err != nil {
		return err
	}
	if math.IsNaN(booking.TotalPrice) || math.IsInf(booking.TotalPrice, 0) || booking.TotalPrice < 0 {
		return ErrInvalidPrice
	}
	if !booking.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Confirm assigns the driver and moves SEARCHING -> CONFIRMED.
func (booking *Booking) Confirm(driverID string) error {
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return ErrDriverIDRequired
	}
	if !booking.Status.CanTransitionTo(StatusConfirmed) {
		return ErrInvalidStatusMove
	}
	now := time.Now().UTC()
	booking.DriverID = &driverID
	booking.ConfirmedAt = &now
	booking.setStatus(StatusConfirmed)
	return nil
}

// Cancel moves the booking to CANCELLED with a reason.
func (booking *Booking) Cancel(reason string) error {
	if !booking.Status.CanTransitionTo(StatusCancelled) {
		return ErrInvalidStatusMove
	}
	now := time.Now().UTC()
	reason = strings.TrimSpace(reason)
	booking.CancelledAt = &now
	booking.CancellationReason = &reason
	booking.setStatus(StatusCancelled)
	return nil
}

func (booking *Booking) setStatus(status Status) {
	booking.Status = status
	booking.UpdatedAt = time.Now().UTC()
}
