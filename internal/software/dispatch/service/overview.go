package service

import (
	"context"
	"math"
	"strings"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/ports"
)

const maxEventsPerBooking = 500

// MatchEvents returns the audit trail of a booking, oldest first.
func (service *dispatchService) MatchEvents(ctx context.Context, bookingID, riderID string, limit int) (*ports.MatchEventsResult, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, booking.ErrBookingIDRequired
	}
	if limit <= 0 || limit > maxEventsPerBooking {
		limit = maxEventsPerBooking
	}

	var events []*booking.Event
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		if _, err := service.loadOwned(txCtx, bookingID, riderID); err != nil {
			return err
		}
		var err error
		events, err = service.events.ListByBooking(txCtx, bookingID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := &ports.MatchEventsResult{BookingID: bookingID, Events: make([]ports.MatchEventView, 0, len(events))}
	for _, ev := range events {
		res.Events = append(res.Events, ports.MatchEventView{
			ID:        ev.ID,
			Type:      ev.Type.String(),
			Data:      ev.Data,
			CreatedAt: ev.CreatedAt,
		})
	}
	return res, nil
}

// Overview collects today's matching activity together with the live attempt count.
func (service *dispatchService) Overview(ctx context.Context) (*ports.OverviewResult, error) {
	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	res := &ports.OverviewResult{
		Timestamp:      now,
		ActiveAttempts: service.dispatcher.Active(),
		BookingsToday:  map[string]int{},
		EventsToday:    map[string]int{},
	}

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		byStatus, err := service.bookings.CountByStatusSince(txCtx, startOfDay)
		if err != nil {
			return err
		}
		for status, n := range byStatus {
			res.BookingsToday[status.String()] = n
		}

		byType, err := service.events.CountByTypeSince(txCtx, startOfDay)
		if err != nil {
			return err
		}
		for eventType, n := range byType {
			res.EventsToday[eventType.String()] = n
		}
		res.ConfirmRate = confirmRate(byType)
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "overview_failed", "Failed to collect dispatch overview", err, nil)
		return nil, err
	}

	return res, nil
}

func confirmRate(byType map[booking.EventType]int) float64 {
	confirmed := byType[booking.EventMatchConfirmed]
	decided := confirmed +
		byType[booking.EventMatchExhausted] +
		byType[booking.EventMatchTimedOut] +
		byType[booking.EventMatchCancelled]
	if decided == 0 {
		return 0
	}
	return math.Round(float64(confirmed)/float64(decided)*1000) / 1000
}
