package handler

import (
	"log/slog"
	"net/http"

	"shopfront/internal/badge"
	"shopfront/internal/middleware"
	ws "shopfront/internal/websocket"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		// In production, check against allowed origins
		return true
	},
}

// WebSocketHandler upgrades tabs onto the push event stream.
type WebSocketHandler struct {
	hub    *ws.Hub
	badges *badge.Registry
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *ws.Hub, badges *badge.Registry) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, badges: badges}
}

// HandleConnection handles WebSocket upgrade and connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.GetStore(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "No browser context")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed",
			slog.String("context_id", store.ID()),
			slog.String("error", err.Error()))
		return
	}

	tab := ws.NewTab(h.hub, conn, store.ID())
	h.hub.Register(tab)

	go tab.WritePump()
	go tab.ReadPump()

	// catch the new tab up with the state its siblings already show
	current := store.Snapshot()
	authenticated := !current.Anonymous()
	h.hub.Push(store.ID(), ws.ServerEvent{
		Type:          "session_changed",
		Authenticated: &authenticated,
		Role:          string(current.Role),
	})
	count := h.badges.For(store).Count()
	h.hub.Push(store.ID(), ws.ServerEvent{Type: "badge_count", Count: &count})
}
