package service

import (
	"context"
	"strings"

	"shipease/internal/domain/booking"
	"shipease/internal/ports"
)

// MatchStatus reports the live attempt when there is one, and the stored booking.
func (service *dispatchService) MatchStatus(ctx context.Context, bookingID, riderID string) (*ports.MatchStatusResult, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, booking.ErrBookingIDRequired
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

	res := &ports.MatchStatusResult{
		BookingID:     b.ID,
		BookingStatus: b.Status,
		DriverID:      b.DriverID,
	}

	if snap, err := service.dispatcher.Snapshot(bookingID); err == nil {
		deadline := snap.Deadline
		res.Active = true
		res.State = snap.State
		res.QueueLen = snap.QueueLen
		res.OffersSent = snap.OffersSent
		res.Outstanding = snap.Outstanding
		res.Deadline = &deadline
		res.Outcome = snap.Outcome
	}

	return res, nil
}
