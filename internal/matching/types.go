package matching

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/domain/geo"
)

var (
	ErrInvalidRequest   = errors.New("invalid ride request")
	ErrInvalidCandidate = errors.New("invalid candidate")
	ErrInvalidResponse  = errors.New("invalid offer response")
	ErrInvalidConfig    = errors.New("invalid matching config")
	ErrNotStarted       = errors.New("matching attempt not started")
	ErrAlreadyStarted   = errors.New("matching attempt already started")
	ErrAttemptFinished  = errors.New("matching attempt already finished")
)

// RideRequest is the immutable input of one matching attempt.
type RideRequest struct {
	BookingID string
	RiderID   string
	Category  booking.VehicleCategory
	Pickup    geo.Point
	Drop      geo.Point
	Price     float64
}

// Validate fails fast on anything the sequencer cannot work with.
func (r RideRequest) Validate() error {
	if strings.TrimSpace(r.BookingID) == "" {
		return fmt.Errorf("%w: booking id is required", ErrInvalidRequest)
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: vehicle category %q", ErrInvalidRequest, r.Category)
	}
	if err := r.Pickup.Validate(); err != nil {
		return fmt.Errorf("%w: pickup: %w", ErrInvalidRequest, err)
	}
	if err := r.Drop.Validate(); err != nil {
		return fmt.Errorf("%w: drop: %w", ErrInvalidRequest, err)
	}
	if math.IsNaN(r.Price) || math.IsInf(r.Price, 0) || r.Price < 0 {
		return fmt.Errorf("%w: price %v", ErrInvalidRequest, r.Price)
	}
	return nil
}

// Candidate is a driver supplied by the candidate feed.
type Candidate struct {
	DriverID string
	Category booking.VehicleCategory
	Location geo.Point
}

// Validate checks the required fields. A category that is present but differs
// from the request is not an error; such candidates are simply not eligible.
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.DriverID) == "" {
		return fmt.Errorf("%w: driver id is required", ErrInvalidCandidate)
	}
	if strings.TrimSpace(string(c.Category)) == "" {
		return fmt.Errorf("%w: driver %s has no vehicle category", ErrInvalidCandidate, c.DriverID)
	}
	if err := c.Location.Validate(); err != nil {
		return fmt.Errorf("%w: driver %s location: %w", ErrInvalidCandidate, c.DriverID, err)
	}
	return nil
}

// Offer is a single proposal addressed to exactly one driver.
type Offer struct {
	OfferID   string
	BookingID string
	RiderID   string
	DriverID  string
	Pickup    geo.Point
	Drop      geo.Point
	Price     float64
	Category  booking.VehicleCategory
	Seq       int
	SentAt    time.Time
	ExpiresAt time.Time
}

// Response is a driver's answer to an offer. OfferID may be empty when the
// transport cannot correlate it; the driver id is then authoritative.
type Response struct {
	BookingID string
	DriverID  string
	OfferID   string
	Accepted  bool
}

func (r Response) Validate() error {
	if strings.TrimSpace(r.BookingID) == "" {
		return fmt.Errorf("%w: booking id is required", ErrInvalidResponse)
	}
	if strings.TrimSpace(r.DriverID) == "" {
		return fmt.Errorf("%w: driver id is required", ErrInvalidResponse)
	}
	return nil
}

// OutcomeKind is the terminal result of an attempt.
type OutcomeKind string

const (
	OutcomeConfirmed OutcomeKind = "confirmed"
	OutcomeExhausted OutcomeKind = "exhausted"
	OutcomeTimedOut  OutcomeKind = "timed_out"
	OutcomeCancelled OutcomeKind = "cancelled"
)

func (k OutcomeKind) String() string { return string(k) }

// Outcome reasons reported alongside non-confirmed kinds.
const (
	ReasonNoEligibleCandidates = "no_eligible_candidates"
	ReasonAllDeclined          = "all_candidates_declined"
	ReasonCandidateFeedFailed  = "candidate_feed_failed"
	ReasonDeadlineElapsed      = "deadline_elapsed"
	ReasonRiderCancelled       = "rider_cancelled"
	ReasonServiceShutdown      = "service_shutdown"
)

type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	BookingID  string      `json:"booking_id"`
	DriverID   string      `json:"driver_id,omitempty"`
	OffersSent int         `json:"offers_sent"`
	DecidedAt  time.Time   `json:"decided_at"`
	Reason     string      `json:"reason,omitempty"`
}

// Snapshot is a point-in-time, read-only view of an attempt.
type Snapshot struct {
	BookingID   string    `json:"booking_id"`
	State       State     `json:"state"`
	Index       int       `json:"index"`
	QueueLen    int       `json:"queue_len"`
	Outstanding string    `json:"outstanding_driver_id,omitempty"`
	OffersSent  int       `json:"offers_sent"`
	Deadline    time.Time `json:"deadline,omitempty"`
	Outcome     *Outcome  `json:"outcome,omitempty"`
}
