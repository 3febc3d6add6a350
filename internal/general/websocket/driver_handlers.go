package websocket

import (
	"context"
	"errors"
	"time"

	"shipease/internal/general/contracts"
	"shipease/internal/general/redis"
)

// handleRideResponse forwards a driver's accept/decline to the dispatch
// service on driver_topic with routing key "driver.response.{booking_id}".
func (ws *WebSocket) handleRideResponse(ctx context.Context, sess *driverSession, in contracts.RideResponse) error {
	now := time.Now().UTC()
	msg := contracts.DriverMatchResponse{
		BookingID: in.BookingID,
		DriverID:  sess.driverID,
		OfferID:   in.OfferID,
		Accepted:  in.Accepted,
		Envelope: contracts.Envelope{
			CorrelationID: in.BookingID,
			Producer:      contracts.ProducerDriverGateway,
			SentAt:        now,
		},
	}
	if loc := sess.lastLocation(); loc != nil {
		gp := contracts.FromPoint(*loc)
		msg.DriverLocation = &gp
	}
	if err := msg.Validate(); err != nil {
		ws.writeError(sess.conn, err.Error())
		return err
	}

	if err := ws.pub.PublishJSON(ctx, contracts.ExchangeDriverTopic, msg.RoutingKey(), msg); err != nil {
		ws.writeError(sess.conn, "failed to publish response")
		return err
	}

	ws.logger.Info(ctx, "driver_response_published", "Published driver response", map[string]any{
		"driver_id":   sess.driverID,
		"booking_id":  in.BookingID,
		"offer_id":    in.OfferID,
		"accepted":    in.Accepted,
		"routing_key": msg.RoutingKey(),
	})

	_ = ws.writeJSON(sess.conn, map[string]any{
		"type":       contracts.WSTypeResponseAck,
		"booking_id": in.BookingID,
		"accepted":   in.Accepted,
		"published":  true,
		"sent_at":    now,
	})
	return nil
}

// handleLocationUpdate moves the driver on the candidate map, at most once
// per locationInterval.
func (ws *WebSocket) handleLocationUpdate(ctx context.Context, sess *driverSession, in contracts.LocationUpdate) error {
	if !sess.acceptLocation(in.Location, time.Now()) {
		ws.logger.Debug(ctx, "location_update_throttled", "Location update throttled", map[string]any{
			"driver_id": sess.driverID,
		})
		return nil
	}

	indexed := true
	if err := ws.drivers.UpdateLocation(ctx, sess.driverID, in.Location); err != nil {
		if !errors.Is(err, redis.ErrDriverNotAvailable) {
			ws.writeError(sess.conn, "failed to save location")
			return err
		}
		indexed = false
	}

	_ = ws.writeJSON(sess.conn, map[string]any{
		"type":      contracts.WSTypeLocationSaved,
		"latitude":  in.Location.Lat,
		"longitude": in.Location.Lng,
		"indexed":   indexed,
	})
	return nil
}

// handleDriverStatus switches availability in the driver index and
// announces the change on driver_topic.
func (ws *WebSocket) handleDriverStatus(ctx context.Context, sess *driverSession, in contracts.DriverStatusChange) error {
	sess.setCategory(in.VehicleType)
	category := sess.vehicleCategory()

	var err error
	if loc := sess.lastLocation(); loc != nil && in.Status.Matchable() {
		err = ws.drivers.SetAvailable(ctx, sess.driverID, category, *loc)
	} else {
		err = ws.drivers.SetStatus(ctx, sess.driverID, in.Status, category)
	}
	if err != nil {
		ws.writeError(sess.conn, "failed to update driver status")
		return err
	}

	now := time.Now().UTC()
	msg := contracts.DriverStatusMessage{
		DriverID:    sess.driverID,
		Status:      in.Status.String(),
		VehicleType: category.String(),
		Timestamp:   now,
		Envelope: contracts.Envelope{
			Producer: contracts.ProducerDriverGateway,
			SentAt:   now,
		},
	}
	routingKey := contracts.RouteDriverStatusPrefix + sess.driverID
	published := true
	if err := ws.pub.PublishJSON(ctx, contracts.ExchangeDriverTopic, routingKey, msg); err != nil {
		published = false
		ws.logger.Error(ctx, "driver_status_publish_failed", "Failed to publish driver status", err, map[string]any{
			"driver_id": sess.driverID, "status": in.Status.String(), "routing_key": routingKey,
		})
	}

	ws.logger.Info(ctx, "driver_status_changed", "Driver status changed", map[string]any{
		"driver_id":    sess.driverID,
		"status":       in.Status.String(),
		"vehicle_type": category.String(),
	})

	_ = ws.writeJSON(sess.conn, map[string]any{
		"type":         contracts.WSTypeStatusAck,
		"status":       in.Status.String(),
		"vehicle_type": category.String(),
		"published":    published,
		"sent_at":      now,
	})
	return nil
}
