package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPNotifier_SendDirectMessage(t *testing.T) {
	var gotPath string
	var gotBody directMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL)
	if err := n.SendDirectMessage(context.Background(), "discord-123", "hello"); err != nil {
		t.Fatalf("send direct message: %v", err)
	}
	if gotPath != "/dm" {
		t.Errorf("expected POST /dm, got %s", gotPath)
	}
	if gotBody.UserID != "discord-123" || gotBody.Text != "hello" {
		t.Errorf("unexpected body: %+v", gotBody)
	}
}

func TestHTTPNotifier_AnnounceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL)
	if err := n.Announce(context.Background(), "level up"); err == nil {
		t.Error("expected error on non-2xx response")
	}
}

func TestHTTPNotifier_TransportFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Closed server: connection refused

	n := NewHTTPNotifier(srv.URL)
	if err := n.SendDirectMessage(context.Background(), "u", "t"); err == nil {
		t.Error("expected error on transport fault")
	}
}
