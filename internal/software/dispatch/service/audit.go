package service

import (
	"context"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/matching"
)

const auditWriteTimeout = 3 * time.Second

// auditedTransport records every delivered offer as an OFFER_SENT event.
type auditedTransport struct {
	next matching.OfferTransport
	svc  *dispatchService
}

func (t *auditedTransport) SendOffer(ctx context.Context, offer matching.Offer) error {
	if err := t.next.SendOffer(ctx, offer); err != nil {
		return err
	}

	// audit failures never turn a delivered offer into a decline
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	err := t.svc.uow.WithinTx(writeCtx, func(txCtx context.Context) error {
		return t.svc.appendEvent(txCtx, offer.BookingID, booking.EventOfferSent, map[string]any{
			"offer_id":   offer.OfferID,
			"driver_id":  offer.DriverID,
			"sequence":   offer.Seq,
			"expires_at": offer.ExpiresAt.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		t.svc.logger.Error(ctx, "offer_audit_failed", "Failed to record offer", err, map[string]any{
			"offer_id":  offer.OfferID,
			"driver_id": offer.DriverID,
		})
	}
	return nil
}
