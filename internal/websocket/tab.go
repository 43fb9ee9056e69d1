package websocket

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 512
)

// Tab is one open browser tab of a browser context. The connection is
// push-only: the gateway never acts on frames a tab sends, the read side
// exists to drive pong handling and to notice the tab going away.
type Tab struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	contextID string
	writeMu   sync.Mutex
	closed    atomic.Bool
}

// NewTab wraps an upgraded connection for the given browser context.
func NewTab(hub *Hub, conn *websocket.Conn, contextID string) *Tab {
	return &Tab{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		contextID: contextID,
	}
}

// ReadPump drains and discards inbound frames until the tab disconnects.
func (t *Tab) ReadPump() {
	defer func() {
		t.hub.Unregister(t)
		t.closeConnection()
	}()

	t.conn.SetReadLimit(maxMessageSize)
	if err := t.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline",
			slog.String("error", err.Error()),
			slog.String("context_id", t.contextID))
		return
	}
	t.conn.SetPongHandler(func(string) error {
		if err := t.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			slog.Warn("failed to set read deadline in pong handler",
				slog.String("error", err.Error()),
				slog.String("context_id", t.contextID))
			return err
		}
		return nil
	})

	for {
		if _, _, err := t.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error",
					slog.String("error", err.Error()),
					slog.String("context_id", t.contextID))
			}
			break
		}
	}
}

// WritePump pumps events from the hub to the WebSocket connection
func (t *Tab) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		t.closeConnection()
	}()

	for {
		select {
		case message, ok := <-t.send:
			if !ok {
				// Hub closed the channel
				_ = t.writeMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := t.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := t.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (t *Tab) writeMessage(messageType int, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Warn("failed to set write deadline",
			slog.String("error", err.Error()),
			slog.String("context_id", t.contextID))
		return err
	}
	return t.conn.WriteMessage(messageType, data)
}

// closeConnection safely closes the WebSocket connection
func (t *Tab) closeConnection() {
	if t.closed.CompareAndSwap(false, true) {
		t.writeMu.Lock()
		t.conn.Close()
		t.writeMu.Unlock()
	}
}
