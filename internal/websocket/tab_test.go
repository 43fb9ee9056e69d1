package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dialTab spins up a server that upgrades the connection and runs both
// pumps for a registered tab, then dials it.
func dialTab(t *testing.T, hub *Hub, contextID string) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		tab := NewTab(hub, conn, contextID)
		hub.Register(tab)
		go tab.WritePump()
		go tab.ReadPump()
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestTab_ReceivesPushedEvents(t *testing.T) {
	hub, cancel := startHub(t)
	defer cancel()

	conn := dialTab(t, hub, "ctx-1")
	time.Sleep(50 * time.Millisecond)

	authenticated := true
	hub.Push("ctx-1", ServerEvent{Type: "session_changed", Authenticated: &authenticated, Role: "user"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var event ServerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if event.Type != "session_changed" {
		t.Errorf("type = %q", event.Type)
	}
	if event.Authenticated == nil || !*event.Authenticated {
		t.Error("expected authenticated=true")
	}
	if event.Role != "user" {
		t.Errorf("role = %q", event.Role)
	}
}

func TestTab_InboundFramesAreIgnored(t *testing.T) {
	hub, cancel := startHub(t)
	defer cancel()

	conn := dialTab(t, hub, "ctx-1")
	time.Sleep(50 * time.Millisecond)

	// A tab sending data must not disturb the push stream.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ignored"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	count := 1
	hub.Push("ctx-1", ServerEvent{Type: "badge_count", Count: &count})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(data), "badge_count") {
		t.Errorf("unexpected frame: %s", data)
	}
}

func TestTab_DisconnectUnregisters(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = hub.Run(ctx)
	}()
	time.Sleep(20 * time.Millisecond)

	conn := dialTab(t, hub, "ctx-1")
	time.Sleep(50 * time.Millisecond)

	conn.Close()
	time.Sleep(100 * time.Millisecond)

	// Pushing after disconnect must not panic; the tab map entry is gone.
	hub.Push("ctx-1", ServerEvent{Type: "auth_prompt"})
	time.Sleep(50 * time.Millisecond)
}
