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

	"github.com/vntrieu/steamcord/internal/store"
)

func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients, have %d", want, hub.ClientCount())
}

func newBridgeServer(t *testing.T) (*Hub, *memStore, *httptest.Server) {
	t.Helper()
	e := newTestEnv(acceptAll, nil)
	hub := NewHub(e.disp)
	go hub.Run()

	handler := NewWSHandler(hub)
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleBridge))
	t.Cleanup(srv.Close)
	return hub, e.store, srv
}

func dialBridge(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial bridge: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub, _, srv := newBridgeServer(t)

	conn := dialBridge(t, srv)
	waitForCount(t, hub, 1)

	conn2 := dialBridge(t, srv)
	waitForCount(t, hub, 2)

	conn.Close()
	waitForCount(t, hub, 1)
	conn2.Close()
	waitForCount(t, hub, 0)
}

func TestClientSendAfterDisconnectIsDropped(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	c := &Client{hub: hub, send: make(chan *OutboundMessage, 1), RemoteAddr: "late-peer"}
	hub.register <- c
	waitForCount(t, hub, 1)
	hub.unregister <- c
	waitForCount(t, hub, 0)

	// A dispatch goroutine finishing after the disconnect drops its
	// response instead of crashing the process.
	c.Send(&OutboundMessage{Type: "fetch_profile_response", CorrelationID: "late"})

	select {
	case out, ok := <-c.send:
		if ok {
			t.Fatalf("dropped response must not be queued, got %+v", out)
		}
	default:
	}
}

func TestBridge_RequestResponseRoundTrip(t *testing.T) {
	hub, _, srv := newBridgeServer(t)
	conn := dialBridge(t, srv)
	waitForCount(t, hub, 1)

	req := msgJSON(TypeFetchProfile, "S1", "tok", "Nova", "rt-1")
	if err := conn.WriteMessage(websocket.TextMessage, []byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	var out OutboundMessage
	if err := json.Unmarshal(frame, &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Type != "fetch_profile_response" || out.CorrelationID != "rt-1" || !out.Success {
		t.Fatalf("unexpected response envelope: %+v", out)
	}
	var p store.Profile
	if err := json.Unmarshal([]byte(out.Content), &p); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if p.DisplayName != "Nova" {
		t.Errorf("expected profile Nova, got %+v", p)
	}
}

func TestBridge_SilentDropProducesNoFrame(t *testing.T) {
	hub, st, srv := newBridgeServer(t)
	conn := dialBridge(t, srv)
	waitForCount(t, hub, 1)

	identity := store.Identity{Platform: store.PlatformSteam, PlatformID: "S1"}
	st.CreateProfile(context.Background(), identity, "Nova")

	// Missing token: dropped with no response
	drop := msgJSON(TypeFetchProfile, "S1", "", "Nova", "d-1")
	if err := conn.WriteMessage(websocket.TextMessage, []byte(drop)); err != nil {
		t.Fatalf("write dropped message: %v", err)
	}
	// Followed by a valid one; the first frame we read must answer it
	valid := msgJSON(TypePlayerJoin, "S1", "tok", "joined", "d-2")
	if err := conn.WriteMessage(websocket.TextMessage, []byte(valid)); err != nil {
		t.Fatalf("write valid message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var out OutboundMessage
	if err := json.Unmarshal(frame, &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.CorrelationID != "d-2" {
		t.Errorf("expected response for d-2 only, got %+v", out)
	}
}
