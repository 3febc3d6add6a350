package websocket

import (
	"context"
	"errors"
	"fmt"

	"shipease/internal/general/contracts"

	"github.com/gorilla/websocket"
)

var ErrRiderNotConnected = errors.New("rider is not connected")

// handleCancelRequest stops matching for one of the rider's bookings.
func (ws *WebSocket) handleCancelRequest(ctx context.Context, conn *websocket.Conn, riderID string, in contracts.CancelRequest) error {
	if ws.canceller == nil {
		ws.writeError(conn, "cancellation is not available")
		return errors.New("no match canceller attached")
	}

	res, err := ws.canceller.CancelMatching(ctx, in.BookingID, riderID, in.Reason)
	if err != nil {
		ws.writeError(conn, err.Error())
		return err
	}

	return ws.writeJSON(conn, map[string]any{
		"type":         contracts.WSTypeCancelAck,
		"booking_id":   res.BookingID,
		"status":       res.Status,
		"cancelled_at": res.CancelledAt,
		"message":      res.Message,
	})
}

// NotifyRider pushes a match update to the rider's socket.
func (ws *WebSocket) NotifyRider(ctx context.Context, riderID string, update contracts.WSRiderMatchUpdate) error {
	v, ok := ws.riders.Load(riderID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRiderNotConnected, riderID)
	}
	conn := v.(*websocket.Conn)

	if update.Type == "" {
		update.Type = contracts.WSTypeMatchUpdate
	}
	if err := ws.writeJSON(conn, update); err != nil {
		return fmt.Errorf("write match update to rider %s: %w", riderID, err)
	}

	ws.logger.Debug(ctx, "rider_notified", "Match update written to rider socket", map[string]any{
		"rider_id":   riderID,
		"booking_id": update.BookingID,
		"outcome":    update.Outcome,
	})
	return nil
}
