package websocket

import (
	"context"
	"sync"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/domain/geo"

	"github.com/gorilla/websocket"
)

// driverSession is the per-connection state of one driver.
type driverSession struct {
	driverID string
	conn     *websocket.Conn

	mu        sync.RWMutex
	location  *geo.Point
	lastLocAt time.Time
	category  booking.VehicleCategory
}

func (s *driverSession) lastLocation() *geo.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.location == nil {
		return nil
	}
	p := *s.location
	return &p
}

// acceptLocation stores p unless the previous update is younger than
// locationInterval; it reports whether p was stored.
func (s *driverSession) acceptLocation(p geo.Point, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastLocAt.IsZero() && now.Sub(s.lastLocAt) < locationInterval {
		return false
	}
	s.location = &p
	s.lastLocAt = now
	return true
}

func (s *driverSession) setCategory(c booking.VehicleCategory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c != "" {
		s.category = c
	}
}

func (s *driverSession) vehicleCategory() booking.VehicleCategory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.category
}

// registerDriver makes conn the driver's offer channel, replacing any older one.
func (ws *WebSocket) registerDriver(driverID string, conn *websocket.Conn) *driverSession {
	sess := &driverSession{driverID: driverID, conn: conn}
	if old, loaded := ws.driverConns.Swap(driverID, sess); loaded {
		prev := old.(*driverSession)
		ws.logger.Info(context.Background(), "driver_ws_replaced", "Driver reconnected; closing previous socket",
			map[string]any{"driver_id": driverID})
		ws.wsWriteClose(prev.conn, websocket.ClosePolicyViolation, "replaced by a newer connection")
		_ = prev.conn.Close()
	}
	return sess
}

// unregisterDriver forgets the session and takes the driver off the map,
// unless a newer connection already took its place.
func (ws *WebSocket) unregisterDriver(ctx context.Context, sess *driverSession) {
	if !ws.driverConns.CompareAndDelete(sess.driverID, sess) {
		return
	}
	if err := ws.drivers.Remove(context.WithoutCancel(ctx), sess.driverID); err != nil {
		ws.logger.Error(ctx, "driver_index_remove_failed", "Failed to remove disconnected driver", err,
			map[string]any{"driver_id": sess.driverID})
	}
	ws.logger.Info(ctx, "driver_ws_removed", "Driver WebSocket connection removed",
		map[string]any{"driver_id": sess.driverID})
}

func (ws *WebSocket) driverSession(driverID string) (*driverSession, bool) {
	v, ok := ws.driverConns.Load(driverID)
	if !ok {
		return nil, false
	}
	return v.(*driverSession), true
}

// IsDriverConnected checks if a driver is currently connected via WebSocket.
func (ws *WebSocket) IsDriverConnected(driverID string) bool {
	_, ok := ws.driverSession(driverID)
	return ok
}
