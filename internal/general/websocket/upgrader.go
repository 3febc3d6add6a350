package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"shipease/internal/domain/user"
	"shipease/internal/general/contracts"
	"shipease/internal/general/jwt"
	"shipease/internal/general/logger"
	"shipease/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	authTimeout      = 5 * time.Second
	readIdleTimeout  = 60 * time.Second
	readLimitBytes   = 1 << 20
	locationInterval = 3 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var errAuthFailed = errors.New("websocket authentication failed")

// MatchCanceller stops matching on a rider's behalf.
type MatchCanceller interface {
	CancelMatching(ctx context.Context, bookingID, riderID, reason string) (*ports.CancelMatchingResult, error)
}

// WebSocket is the real-time gateway for drivers and riders. Drivers receive
// offers and answer them; riders receive match updates and may cancel.
type WebSocket struct {
	logger       *logger.Logger
	jwtMgr       *jwt.Manager
	pub          ports.MessagePublisher
	drivers      ports.DriverIndex
	canceller    MatchCanceller
	pingInterval time.Duration

	writeLocks  sync.Map // *websocket.Conn -> *sync.Mutex
	driverConns sync.Map // driverID -> *driverSession
	riders      sync.Map // riderID -> *websocket.Conn
}

// NewWebSocket creates the gateway. The canceller is attached later with
// AttachCanceller since the dispatch service itself depends on the gateway.
func NewWebSocket(logger *logger.Logger, jwtMgr *jwt.Manager, pub ports.MessagePublisher, drivers ports.DriverIndex) *WebSocket {
	return &WebSocket{
		logger:       logger,
		jwtMgr:       jwtMgr,
		pub:          pub,
		drivers:      drivers,
		pingInterval: 30 * time.Second,
	}
}

func (ws *WebSocket) AttachCanceller(c MatchCanceller) {
	ws.canceller = c
}

// authenticate upgrades the request and reads the first frame, which must be
// {"type":"auth","token":"Bearer <jwt>"} for the given role. The subject must
// match the path parameter when one is present.
func (ws *WebSocket) authenticate(w http.ResponseWriter, r *http.Request, role user.Role, pathParam string) (*websocket.Conn, string, error) {
	ctx := r.Context()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error(ctx, "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return nil, "", err
	}

	fail := func(message string, err error, details map[string]any) (*websocket.Conn, string, error) {
		ws.logger.Error(ctx, "ws_auth_failed", message, err, details)
		ws.sendAuthError(conn, message)
		ws.writeLocks.Delete(conn)
		_ = conn.Close()
		if err == nil {
			err = errAuthFailed
		}
		return nil, "", err
	}

	conn.SetReadLimit(readLimitBytes)
	_ = conn.SetReadDeadline(time.Now().Add(authTimeout))

	msgType, first, err := conn.ReadMessage()
	if err != nil {
		return fail("authentication timeout: send the auth message first", err, nil)
	}
	if msgType != websocket.TextMessage {
		return fail("auth message must be in text format", nil, nil)
	}

	pathID := r.PathValue(pathParam)
	claims, err := jwt.ValidateWSAuth(first, ws.jwtMgr, pathID, role)
	if errors.Is(err, jwt.ErrSubjectMismatch) {
		return fail("identity mismatch", err, map[string]any{"path_" + pathParam: pathID})
	}
	if err != nil {
		return fail("authentication failed: invalid token", err, nil)
	}
	subject := claims.Subject

	if err := ws.sendAuthSuccess(conn, pathParam, subject); err != nil {
		ws.logger.Error(ctx, "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		ws.writeLocks.Delete(conn)
		_ = conn.Close()
		return nil, "", err
	}

	_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	})

	return conn, subject, nil
}

// ConnectDriver serves GET /ws/drivers/{driver_id}.
func (ws *WebSocket) ConnectDriver(w http.ResponseWriter, r *http.Request) {
	conn, driverID, err := ws.authenticate(w, r, user.RoleDriver, "driver_id")
	if err != nil {
		return
	}
	ctx := r.Context()
	details := map[string]any{"driver_id": driverID}

	defer conn.Close()
	defer ws.writeLocks.Delete(conn)

	done := make(chan struct{})
	defer close(done)
	go ws.pingLoop(ctx, conn, done, details)

	sess := ws.registerDriver(driverID, conn)
	defer ws.unregisterDriver(ctx, sess)

	ws.logger.Info(ctx, "ws_connected", "Driver WebSocket connected", details)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			ws.logClose(ctx, conn, err, details)
			return
		}

		msg, err := contracts.DecodeDriverMessage(payload)
		if err != nil {
			ws.logger.Debug(ctx, "driver_ws_message_rejected", "Rejected driver message", map[string]any{
				"driver_id": driverID,
				"error":     err.Error(),
			})
			ws.writeError(conn, err.Error())
			continue
		}

		switch m := msg.(type) {
		case contracts.RideResponse:
			err = ws.handleRideResponse(ctx, sess, m)
		case contracts.LocationUpdate:
			err = ws.handleLocationUpdate(ctx, sess, m)
		case contracts.DriverStatusChange:
			err = ws.handleDriverStatus(ctx, sess, m)
		}
		if err != nil {
			ws.logger.Error(ctx, "driver_ws_message_failed", "Failed to handle driver message", err, details)
		}
	}
}

// ConnectRider serves GET /ws/riders/{rider_id}.
func (ws *WebSocket) ConnectRider(w http.ResponseWriter, r *http.Request) {
	conn, riderID, err := ws.authenticate(w, r, user.RoleRider, "rider_id")
	if err != nil {
		return
	}
	ctx := r.Context()
	details := map[string]any{"rider_id": riderID}

	defer conn.Close()
	defer ws.writeLocks.Delete(conn)

	done := make(chan struct{})
	defer close(done)
	go ws.pingLoop(ctx, conn, done, details)

	ws.riders.Store(riderID, conn)
	defer ws.riders.CompareAndDelete(riderID, conn)

	ws.logger.Info(ctx, "ws_connected", "Rider WebSocket connected", details)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			ws.logClose(ctx, conn, err, details)
			return
		}

		msg, err := contracts.DecodeRiderMessage(payload)
		if err != nil {
			ws.writeError(conn, err.Error())
			continue
		}

		switch m := msg.(type) {
		case contracts.CancelRequest:
			if err := ws.handleCancelRequest(ctx, conn, riderID, m); err != nil {
				ws.logger.Error(ctx, "rider_ws_message_failed", "Failed to cancel matching", err, details)
			}
		}
	}
}
