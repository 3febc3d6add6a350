package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/matching"
	"shipease/internal/ports"
)

// CancelMatching stops matching for a rider's booking. A live attempt is
// cancelled through the dispatcher, which persists the outcome; a SEARCHING
// booking without a live attempt is cancelled directly.
func (service *dispatchService) CancelMatching(ctx context.Context, bookingID, riderID, reason string) (*ports.CancelMatchingResult, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, booking.ErrBookingIDRequired
	}
	ctx = service.logger.WithBookingID(ctx, bookingID)
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = matching.ReasonRiderCancelled
	}

	var b *booking.Booking
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		b, err = service.loadOwned(txCtx, bookingID, riderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = service.dispatcher.Cancel(ctx, bookingID, reason)
	switch {
	case err == nil:
	case errors.Is(err, matching.ErrAttemptFinished):
		return nil, fmt.Errorf("%w: matching already finished", booking.ErrInvalidStatusMove)
	case errors.Is(err, matching.ErrAttemptNotFound):
		if err := service.cancelIdle(ctx, b, reason); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	service.logger.Info(ctx, "match_cancel_requested", "Matching cancelled by rider", map[string]any{
		"rider_id": b.RiderID,
		"reason":   reason,
	})

	return &ports.CancelMatchingResult{
		BookingID:   bookingID,
		Status:      booking.StatusCancelled.String(),
		CancelledAt: time.Now().UTC(),
		Message:     "Matching cancelled successfully",
	}, nil
}

// cancelIdle cancels a booking that has no running attempt, e.g. after a restart.
func (service *dispatchService) cancelIdle(ctx context.Context, b *booking.Booking, reason string) error {
	if b.Status != booking.StatusSearching {
		return fmt.Errorf("%w: booking is %s", booking.ErrInvalidStatusMove, b.Status)
	}
	out := matching.Outcome{
		Kind:      matching.OutcomeCancelled,
		BookingID: b.ID,
		DecidedAt: time.Now().UTC(),
		Reason:    reason,
	}
	if _, err := service.persistOutcome(ctx, out); err != nil {
		return err
	}
	service.announceOutcome(ctx, b.RiderID, out)
	return nil
}
