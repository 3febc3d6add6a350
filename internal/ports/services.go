package ports

import (
	"context"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/domain/geo"
	"shipease/internal/general/contracts"
	"shipease/internal/matching"
)

// DispatchService drives matching attempts for bookings.
type DispatchService interface {
	StartMatching(ctx context.Context, bookingID, riderID string) (*StartMatchingResult, error)
	CancelMatching(ctx context.Context, bookingID, riderID, reason string) (*CancelMatchingResult, error)
	MatchStatus(ctx context.Context, bookingID, riderID string) (*MatchStatusResult, error)
	HandleDriverResponse(ctx context.Context, msg contracts.DriverMatchResponse) error
	RunResponseConsumer(ctx context.Context) error
	MatchEvents(ctx context.Context, bookingID, riderID string, limit int) (*MatchEventsResult, error)
	Overview(ctx context.Context) (*OverviewResult, error)
	// RiderBookings lists riderID's bookings, newest first. A non-blank
	// callerRiderID must equal riderID.
	RiderBookings(ctx context.Context, riderID, callerRiderID string, limit int) (*RiderBookingsResult, error)
	// Shutdown cancels every live attempt and waits for them to finish.
	Shutdown(ctx context.Context) error
}

type StartMatchingResult struct {
	BookingID string         `json:"booking_id"`
	State     matching.State `json:"state"`
	Deadline  time.Time      `json:"deadline"`
	Message   string         `json:"message"`
}

type CancelMatchingResult struct {
	BookingID   string    `json:"booking_id"`
	Status      string    `json:"status"`
	CancelledAt time.Time `json:"cancelled_at"`
	Message     string    `json:"message"`
}

// MatchStatusResult merges the live attempt (when one is running) with the
// persisted booking.
type MatchStatusResult struct {
	BookingID     string            `json:"booking_id"`
	BookingStatus booking.Status    `json:"booking_status"`
	Active        bool              `json:"active"`
	State         matching.State    `json:"state,omitempty"`
	QueueLen      int               `json:"queue_length,omitempty"`
	OffersSent    int               `json:"offers_sent,omitempty"`
	Outstanding   string            `json:"outstanding_driver_id,omitempty"`
	Deadline      *time.Time        `json:"deadline,omitempty"`
	DriverID      *string           `json:"driver_id,omitempty"`
	Outcome       *matching.Outcome `json:"outcome,omitempty"`
}

// MatchEventView is one audit entry of a booking's matching history.
type MatchEventView struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

type MatchEventsResult struct {
	BookingID string           `json:"booking_id"`
	Events    []MatchEventView `json:"events"`
}

// OverviewResult aggregates matching activity since the start of the UTC day.
type OverviewResult struct {
	Timestamp      time.Time      `json:"timestamp"`
	ActiveAttempts int            `json:"active_attempts"`
	BookingsToday  map[string]int `json:"bookings_today"`
	EventsToday    map[string]int `json:"events_today"`
	// ConfirmRate is confirmed outcomes over all outcomes recorded today.
	ConfirmRate float64 `json:"confirm_rate"`
}

// BookingView is one entry of a rider's booking history.
type BookingView struct {
	ID                 string                  `json:"id"`
	Status             booking.Status          `json:"status"`
	Category           booking.VehicleCategory `json:"vehicle_category"`
	Pickup             geo.Point               `json:"pickup"`
	Drop               geo.Point               `json:"drop"`
	TotalPrice         float64                 `json:"total_price"`
	DriverID           *string                 `json:"driver_id,omitempty"`
	Matching           bool                    `json:"matching"`
	CreatedAt          time.Time               `json:"created_at"`
	ConfirmedAt        *time.Time              `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time              `json:"cancelled_at,omitempty"`
	CancellationReason *string                 `json:"cancellation_reason,omitempty"`
}

type RiderBookingsResult struct {
	RiderID  string        `json:"rider_id"`
	Bookings []BookingView `json:"bookings"`
}

// MessagePublisher publishes JSON messages to the broker.
type MessagePublisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, v any) error
}

// RiderNotifier pushes match updates to a rider's live connection.
type RiderNotifier interface {
	NotifyRider(ctx context.Context, riderID string, update contracts.WSRiderMatchUpdate) error
}
