package service

import (
	"context"
	"strings"

	"shipease/internal/domain/booking"
	"shipease/internal/ports"
)

const maxBookingsPerRider = 200

// RiderBookings returns a rider's booking history, newest first. Bookings with
// a live attempt are flagged as matching.
func (service *dispatchService) RiderBookings(ctx context.Context, riderID, callerRiderID string, limit int) (*ports.RiderBookingsResult, error) {
	riderID = strings.TrimSpace(riderID)
	if riderID == "" {
		return nil, booking.ErrRiderIDRequired
	}
	if caller := strings.TrimSpace(callerRiderID); caller != "" && caller != riderID {
		return nil, booking.ErrNotOwner
	}
	if limit <= 0 || limit > maxBookingsPerRider {
		limit = maxBookingsPerRider
	}

	var list []*booking.Booking
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		list, err = service.bookings.ListByRider(txCtx, riderID, limit)
		return err
	})
	if err != nil {
		service.logger.Error(ctx, "rider_bookings_failed", "Failed to list rider bookings", err, map[string]any{
			"rider_id": riderID,
		})
		return nil, err
	}

	res := &ports.RiderBookingsResult{RiderID: riderID, Bookings: make([]ports.BookingView, 0, len(list))}
	for _, b := range list {
		_, err := service.dispatcher.Snapshot(b.ID)
		res.Bookings = append(res.Bookings, ports.BookingView{
			ID:                 b.ID,
			Status:             b.Status,
			Category:           b.Category,
			Pickup:             b.Pickup,
			Drop:               b.Drop,
			TotalPrice:         b.TotalPrice,
			DriverID:           b.DriverID,
			Matching:           err == nil,
			CreatedAt:          b.CreatedAt,
			ConfirmedAt:        b.ConfirmedAt,
			CancelledAt:        b.CancelledAt,
			CancellationReason: b.CancellationReason,
		})
	}
	return res, nil
}
