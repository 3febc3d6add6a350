package matching

import (
	"context"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/domain/geo"
)

// CandidateFeed supplies nearby drivers for a category around the pickup point.
type CandidateFeed interface {
	NearbyCandidates(ctx context.Context, category booking.VehicleCategory, pickup geo.Point) ([]Candidate, error)
}

// OfferTransport delivers an offer to one driver. A returned error means the
// offer did not reach the driver and is handled like a decline.
type OfferTransport interface {
	SendOffer(ctx context.Context, offer Offer) error
}

// OutcomeSink receives the terminal outcome of an attempt exactly once.
type OutcomeSink interface {
	Report(ctx context.Context, outcome Outcome)
}

// OutcomeSinkFunc adapts a function to OutcomeSink.
type OutcomeSinkFunc func(ctx context.Context, outcome Outcome)

func (f OutcomeSinkFunc) Report(ctx context.Context, outcome Outcome) { f(ctx, outcome) }

// Timer is a cancelable pending callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so attempts can be driven deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// SystemClock is backed by the time package.
func SystemClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
