package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"shopfront/internal/observability"
)

// ServerEvent is the wire shape of a push update delivered to every tab
// of a browser context.
type ServerEvent struct {
	Type          string `json:"type"`
	Authenticated *bool  `json:"authenticated,omitempty"`
	Role          string `json:"role,omitempty"`
	Count         *int   `json:"count,omitempty"`
	Message       string `json:"message,omitempty"`
}

type pushMessage struct {
	contextID string
	data      []byte
	eventType string
}

// Hub maintains the active tabs of each browser context and fans push
// updates out to them.
type Hub struct {
	// Registered tabs by browser context
	tabs map[string]map[*Tab]bool

	// Push channel
	push chan *pushMessage

	// Register tab
	register chan *Tab

	// Unregister tab
	unregister chan *Tab

	// Shutdown signal
	done chan struct{}
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		tabs:       make(map[string]map[*Tab]bool),
		push:       make(chan *pushMessage, 256),
		register:   make(chan *Tab),
		unregister: make(chan *Tab),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case tab := <-h.register:
			if h.tabs[tab.contextID] == nil {
				h.tabs[tab.contextID] = make(map[*Tab]bool)
			}
			h.tabs[tab.contextID][tab] = true
			observability.WebSocketTabsActive.Inc()
			slog.Info("tab registered",
				slog.String("context_id", tab.contextID))

		case tab := <-h.unregister:
			h.unregisterTab(tab)

		case message := <-h.push:
			// Send to every tab of the browser context
			if tabs, ok := h.tabs[message.contextID]; ok {
				for tab := range tabs {
					select {
					case tab.send <- message.data:
						observability.WebSocketEventsSent.WithLabelValues(message.eventType).Inc()
					default:
						// Tab's send buffer is full, close connection
						h.closeTabSend(tab)
						delete(tabs, tab)
						observability.WebSocketTabsActive.Dec()
					}
				}
			}
		}
	}
}

// Push queues an event for every tab of one browser context.
func (h *Hub) Push(contextID string, event ServerEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal push event",
			slog.String("error", err.Error()),
			slog.String("type", event.Type))
		return
	}

	select {
	case h.push <- &pushMessage{contextID: contextID, data: data, eventType: event.Type}:
	default:
		slog.Warn("push queue full, dropping event",
			slog.String("type", event.Type),
			slog.String("context_id", contextID))
	}
}

// unregisterTab safely removes a tab from the hub
func (h *Hub) unregisterTab(tab *Tab) {
	if tabs, ok := h.tabs[tab.contextID]; ok {
		if _, ok := tabs[tab]; ok {
			delete(tabs, tab)
			h.closeTabSend(tab)
			observability.WebSocketTabsActive.Dec()
			slog.Info("tab unregistered",
				slog.String("context_id", tab.contextID))

			// Clean up contexts with no remaining tabs
			if len(tabs) == 0 {
				delete(h.tabs, tab.contextID)
			}
		}
	}
}

// closeTabSend safely closes a tab's send channel
func (h *Hub) closeTabSend(tab *Tab) {
	select {
	case <-tab.send:
		// Channel already closed
	default:
		close(tab.send)
	}
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)

	for contextID, tabs := range h.tabs {
		for tab := range tabs {
			h.closeTabSend(tab)
			slog.Info("closed tab connection",
				slog.String("context_id", contextID))
		}
	}

	slog.Info("hub shutdown complete")
}

// Register registers a tab with the hub
func (h *Hub) Register(tab *Tab) {
	h.register <- tab
}

// Unregister removes a tab from the hub
func (h *Hub) Unregister(tab *Tab) {
	h.unregister <- tab
}
