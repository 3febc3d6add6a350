package websocket

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"shipease/internal/domain/geo"
	"shipease/internal/general/contracts"
	"shipease/internal/matching"
)

var ErrDriverNotConnected = errors.New("driver is not connected")

// SendOffer pushes a booking request to exactly one driver socket.
func (ws *WebSocket) SendOffer(ctx context.Context, offer matching.Offer) error {
	sess, ok := ws.driverSession(offer.DriverID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDriverNotConnected, offer.DriverID)
	}

	msg := buildDriverOffer(offer, sess.lastLocation())
	if err := ws.writeJSON(sess.conn, msg); err != nil {
		return fmt.Errorf("write offer to driver %s: %w", offer.DriverID, err)
	}

	ws.logger.Debug(ctx, "offer_delivered", "Offer written to driver socket", map[string]any{
		"driver_id": offer.DriverID,
		"offer_id":  offer.OfferID,
		"sequence":  offer.Seq,
	})
	return nil
}

func buildDriverOffer(offer matching.Offer, driverAt *geo.Point) contracts.WSDriverOffer {
	msg := contracts.WSDriverOffer{
		Type:          contracts.WSTypeBookingOffer,
		OfferID:       offer.OfferID,
		BookingID:     offer.BookingID,
		RiderID:       offer.RiderID,
		DriverID:      offer.DriverID,
		Pickup:        contracts.FromPoint(offer.Pickup),
		Dropoff:       contracts.FromPoint(offer.Drop),
		TotalPrice:    offer.Price,
		VehicleType:   offer.Category.String(),
		Sequence:      offer.Seq,
		ExpiresAt:     offer.ExpiresAt.UTC().Format(time.RFC3339),
		ExpiresInSecs: int(math.Round(offer.ExpiresAt.Sub(offer.SentAt).Seconds())),
		Envelope: contracts.Envelope{
			CorrelationID: offer.BookingID,
			Producer:      contracts.ProducerDispatchService,
			SentAt:        offer.SentAt.UTC(),
		},
	}
	if driverAt != nil {
		msg.DistanceKM = math.Round(geo.HaversineKM(*driverAt, offer.Pickup)*100) / 100
	}
	return msg
}
