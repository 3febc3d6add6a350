package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shipease/internal/domain/booking"
	"shipease/internal/matching"
	"shipease/internal/ports"
)

// StartMatching begins sequential offering for a SEARCHING booking owned by riderID.
func (service *dispatchService) StartMatching(ctx context.Context, bookingID, riderID string) (*ports.StartMatchingResult, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, booking.ErrBookingIDRequired
	}
	ctx = service.logger.WithBookingID(ctx, bookingID)

	if _, err := service.dispatcher.Snapshot(bookingID); err == nil {
		return nil, fmt.Errorf("%w: %s", matching.ErrAttemptExists, bookingID)
	}

	var req matching.RideRequest
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		// the row lock orders this start after any outcome still being written
		b, err := service.lockOwned(txCtx, bookingID, riderID)
		if err != nil {
			return err
		}
		if b.Status != booking.StatusSearching {
			return fmt.Errorf("%w: booking is %s", booking.ErrInvalidStatusMove, b.Status)
		}
		if _, err := service.dispatcher.Snapshot(bookingID); err == nil {
			return fmt.Errorf("%w: %s", matching.ErrAttemptExists, bookingID)
		}

		req = matching.RideRequest{
			BookingID: b.ID,
			RiderID:   b.RiderID,
			Category:  b.Category,
			Pickup:    b.Pickup,
			Drop:      b.Drop,
			Price:     b.TotalPrice,
		}
		if err := req.Validate(); err != nil {
			return err
		}

		return service.appendEvent(txCtx, b.ID, booking.EventMatchStarted, map[string]any{
			"rider_id": b.RiderID,
			"category": b.Category.String(),
		})
	})
	if err != nil {
		service.logger.Error(ctx, "match_start_failed", "Failed to start matching", err, map[string]any{
			"rider_id": riderID,
		})
		return nil, err
	}

	snap, err := service.dispatcher.Begin(ctx, req)
	if err != nil {
		service.logger.Error(ctx, "match_begin_failed", "Dispatcher refused the attempt", err, nil)
		return nil, err
	}

	service.logger.Info(ctx, "match_started", "Matching started", map[string]any{
		"rider_id": req.RiderID,
		"category": req.Category.String(),
		"deadline": snap.Deadline,
	})

	return &ports.StartMatchingResult{
		BookingID: bookingID,
		State:     snap.State,
		Deadline:  snap.Deadline,
		Message:   "Searching for a driver",
	}, nil
}

// loadOwned fetches a booking and checks that riderID owns it. A blank
// riderID skips the ownership check (admin callers).
func (service *dispatchService) loadOwned(ctx context.Context, bookingID, riderID string) (*booking.Booking, error) {
	b, err := service.bookings.GetByID(ctx, bookingID)
	return checkOwner(b, err, bookingID, riderID)
}

// lockOwned is loadOwned holding the booking's row lock.
func (service *dispatchService) lockOwned(ctx context.Context, bookingID, riderID string) (*booking.Booking, error) {
	b, err := service.bookings.LockByID(ctx, bookingID)
	return checkOwner(b, err, bookingID, riderID)
}

func checkOwner(b *booking.Booking, err error, bookingID, riderID string) (*booking.Booking, error) {
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %s", booking.ErrNotFound, bookingID)
	}
	if riderID = strings.TrimSpace(riderID); riderID != "" && b.RiderID != riderID {
		return nil, booking.ErrNotOwner
	}
	return b, nil
}

func (service *dispatchService) appendEvent(ctx context.Context, bookingID string, eventType booking.EventType, data map[string]any) error {
	ev, err := booking.NewEvent(bookingID, eventType, data)
	if err != nil {
		return err
	}
	if err := service.events.Append(ctx, ev); err != nil {
		return fmt.Errorf("append %s event: %w", eventType, err)
	}
	return nil
}

// isClientError reports whether err is caused by the caller rather than by
// infrastructure.
func isClientError(err error) bool {
	return errors.Is(err, booking.ErrNotFound) ||
		errors.Is(err, booking.ErrNotOwner) ||
		errors.Is(err, booking.ErrInvalidStatusMove) ||
		errors.Is(err, matching.ErrAttemptExists) ||
		errors.Is(err, matching.ErrAttemptNotFound) ||
		errors.Is(err, matching.ErrAttemptFinished) ||
		errors.Is(err, matching.ErrInvalidRequest) ||
		errors.Is(err, matching.ErrInvalidResponse)
}
