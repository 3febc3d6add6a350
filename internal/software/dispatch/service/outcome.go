package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/general/contracts"
	"shipease/internal/matching"
)

const outcomeWriteTimeout = 10 * time.Second

// outcomeRetryBackoff spaces the retries of a failed outcome write.
var outcomeRetryBackoff = []time.Duration{200 * time.Millisecond, time.Second, 3 * time.Second}

// reportOutcome is the dispatcher's outcome sink. It runs once per attempt.
// The outcome is announced only once the booking row holds it.
func (service *dispatchService) reportOutcome(ctx context.Context, out matching.Outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
	defer cancel()
	ctx = service.logger.WithBookingID(ctx, out.BookingID)

	riderID, err := service.persistOutcome(ctx, out)
	for i := 0; err != nil && !isClientError(err) && i < len(service.retryBackoff); i++ {
		service.logger.Info(ctx, "match_outcome_persist_retry", "Retrying matching outcome write", map[string]any{
			"outcome": out.Kind,
			"attempt": i + 1,
			"error":   err.Error(),
		})
		select {
		case <-time.After(service.retryBackoff[i]):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		riderID, err = service.persistOutcome(ctx, out)
	}
	if err != nil {
		service.logger.Error(ctx, "match_outcome_persist_failed", "Failed to persist matching outcome, nothing announced", err, map[string]any{
			"outcome":              out.Kind,
			"driver_id":            out.DriverID,
			"reason":               out.Reason,
			"decided_at":           out.DecidedAt.UTC().Format(time.RFC3339Nano),
			"needs_reconciliation": !isClientError(err),
		})
		return
	}

	service.announceOutcome(ctx, riderID, out)
}

// persistOutcome loads the booking and applies out inside one transaction. It
// returns the booking's rider.
func (service *dispatchService) persistOutcome(ctx context.Context, out matching.Outcome) (string, error) {
	var riderID string
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		b, err := service.bookings.LockByID(txCtx, out.BookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("%w: %s", booking.ErrNotFound, out.BookingID)
		}
		riderID = b.RiderID
		return service.applyOutcome(txCtx, b, out)
	})
	return riderID, err
}

// applyOutcome moves the booking out of SEARCHING and appends the matching
// MATCH_* event. Must run inside a transaction.
func (service *dispatchService) applyOutcome(ctx context.Context, b *booking.Booking, out matching.Outcome) error {
	var err error
	if out.Kind == matching.OutcomeConfirmed {
		err = b.Confirm(out.DriverID)
	} else {
		err = b.Cancel(cancellationReason(out))
	}
	if err != nil {
		return fmt.Errorf("apply %s outcome: %w", out.Kind, err)
	}

	if err := service.bookings.UpdateMatch(ctx, b); err != nil {
		return err
	}

	data := map[string]any{
		"offers_sent": out.OffersSent,
		"decided_at":  out.DecidedAt.UTC().Format(time.RFC3339Nano),
	}
	if out.DriverID != "" {
		data["driver_id"] = out.DriverID
	}
	if out.Reason != "" {
		data["reason"] = out.Reason
	}
	return service.appendEvent(ctx, b.ID, outcomeEvent(out.Kind), data)
}

// announceOutcome publishes booking.status.{STATUS} and tells the rider.
// Both are best effort.
func (service *dispatchService) announceOutcome(ctx context.Context, riderID string, out matching.Outcome) {
	status := bookingStatusFor(out.Kind)
	now := time.Now().UTC()

	msg := contracts.BookingStatusMessage{
		BookingID:  out.BookingID,
		RiderID:    riderID,
		Status:     status.String(),
		Outcome:    string(out.Kind),
		DriverID:   out.DriverID,
		Reason:     out.Reason,
		OffersSent: out.OffersSent,
		Timestamp:  out.DecidedAt.UTC(),
		Envelope: contracts.Envelope{
			CorrelationID: out.BookingID,
			Producer:      contracts.ProducerDispatchService,
			SentAt:        now,
		},
	}
	if err := service.pub.PublishJSON(ctx, contracts.ExchangeBookingTopic, msg.RoutingKey(), msg); err != nil {
		service.logger.Error(ctx, "booking_status_publish_failed", "Failed to publish booking status", err, map[string]any{
			"routing_key": msg.RoutingKey(),
		})
	} else {
		service.logger.Info(ctx, "booking_status_published", "Published booking status", map[string]any{
			"routing_key": msg.RoutingKey(),
			"outcome":     out.Kind,
		})
	}

	if service.notifier == nil || riderID == "" {
		return
	}
	update := contracts.WSRiderMatchUpdate{
		Type:      contracts.WSTypeMatchUpdate,
		BookingID: out.BookingID,
		Status:    status.String(),
		Outcome:   string(out.Kind),
		DriverID:  out.DriverID,
		Reason:    out.Reason,
		Timestamp: out.DecidedAt.UTC(),
		Envelope: contracts.Envelope{
			CorrelationID: out.BookingID,
			Producer:      contracts.ProducerDispatchService,
			SentAt:        now,
		},
	}
	if err := service.notifier.NotifyRider(ctx, riderID, update); err != nil {
		service.logger.Debug(ctx, "rider_notify_skipped", "Rider was not notified", map[string]any{
			"rider_id": riderID,
			"error":    err.Error(),
		})
	}
}

func bookingStatusFor(kind matching.OutcomeKind) booking.Status {
	if kind == matching.OutcomeConfirmed {
		return booking.StatusConfirmed
	}
	return booking.StatusCancelled
}

func outcomeEvent(kind matching.OutcomeKind) booking.EventType {
	switch kind {
	case matching.OutcomeConfirmed:
		return booking.EventMatchConfirmed
	case matching.OutcomeExhausted:
		return booking.EventMatchExhausted
	case matching.OutcomeTimedOut:
		return booking.EventMatchTimedOut
	default:
		return booking.EventMatchCancelled
	}
}

// cancellationReason is what a cancelled booking stores; it falls back to the
// outcome kind when the attempt gave no reason.
func cancellationReason(out matching.Outcome) string {
	if r := strings.TrimSpace(out.Reason); r != "" {
		return r
	}
	return string(out.Kind)
}
