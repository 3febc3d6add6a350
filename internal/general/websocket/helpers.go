package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"shipease/internal/general/contracts"

	"github.com/gorilla/websocket"
)

// wsWriteClose sends a close control frame with the given code and reason.
func (ws *WebSocket) wsWriteClose(conn *websocket.Conn, code int, reason string) {
	mu := ws.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
}

// lockOf returns the write mutex of a specific connection.
func (ws *WebSocket) lockOf(conn *websocket.Conn) *sync.Mutex {
	if v, ok := ws.writeLocks.Load(conn); ok {
		if mu, ok := v.(*sync.Mutex); ok && mu != nil {
			return mu
		}
	}
	mu := &sync.Mutex{}
	actual, _ := ws.writeLocks.LoadOrStore(conn, mu)
	return actual.(*sync.Mutex)
}

// writeJSON marshals v and writes a single TextMessage to the given connection.
func (ws *WebSocket) writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	mu := ws.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// writeError sends a best-effort error frame.
func (ws *WebSocket) writeError(conn *websocket.Conn, message string) {
	_ = ws.writeJSON(conn, contracts.WSError{Type: contracts.WSTypeError, Error: message})
}

func (ws *WebSocket) sendAuthError(conn *websocket.Conn, message string) {
	_ = ws.writeJSON(conn, map[string]any{
		"type":    contracts.WSTypeAuthError,
		"error":   message,
		"success": false,
	})
}

func (ws *WebSocket) sendAuthSuccess(conn *websocket.Conn, idField, id string) error {
	return ws.writeJSON(conn, map[string]any{
		"type":      contracts.WSTypeAuthSuccess,
		"message":   "Authentication successful",
		"success":   true,
		idField:     id,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// pingLoop keeps the connection alive until done is closed. A failed ping
// closes the socket so the read loop returns.
func (ws *WebSocket) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}, details map[string]any) {
	ticker := time.NewTicker(ws.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			mu := ws.lockOf(conn)
			mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
			mu.Unlock()
			if err != nil {
				_ = conn.Close()
				ws.logger.Error(ctx, "ws_ping_failed", "Failed to send ping", err, details)
				return
			}
		}
	}
}

// logClose records why a read loop ended and answers with a close frame.
func (ws *WebSocket) logClose(ctx context.Context, conn *websocket.Conn, err error, details map[string]any) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		ws.logger.Error(ctx, "ws_unexpected_close", "Connection closed unexpectedly", err, details)
		ws.wsWriteClose(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}
	ws.logger.Info(ctx, "ws_connection_closed", "Connection closed", details)
	ws.wsWriteClose(conn, websocket.CloseNormalClosure, "bye")
}
