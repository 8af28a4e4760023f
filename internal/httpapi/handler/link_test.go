package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vntrieu/steamcord/internal/store"
)

type fakeLinkStore struct {
	lastIdentity store.Identity
	lastTTL      time.Duration
	err          error
}

func (f *fakeLinkStore) CreateLinkCode(ctx context.Context, id store.Identity, ttl time.Duration) (*store.LinkCode, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastIdentity = id
	f.lastTTL = ttl
	return &store.LinkCode{
		Code:      "ABCD2345",
		Identity:  id,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(ttl),
	}, nil
}

func TestCreateLink(t *testing.T) {
	st := &fakeLinkStore{}
	h := NewLinkHandler(st, 10*time.Minute)
	srv := httptest.NewServer(http.HandlerFunc(h.CreateLink))
	defer srv.Close()

	resp := postJSON(t, srv.URL, `{"platform":"discord","platformId":"D1"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var body CreateLinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Code != "ABCD2345" || body.Platform != "discord" || body.PlatformID != "D1" {
		t.Errorf("unexpected response: %+v", body)
	}
	if st.lastTTL != 10*time.Minute {
		t.Errorf("expected configured ttl, got %v", st.lastTTL)
	}
}

func TestCreateLink_DefaultTTL(t *testing.T) {
	st := &fakeLinkStore{}
	h := NewLinkHandler(st, 0)
	srv := httptest.NewServer(http.HandlerFunc(h.CreateLink))
	defer srv.Close()

	resp := postJSON(t, srv.URL, `{"platform":"steam","platformId":"S1"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if st.lastTTL != store.DefaultLinkCodeTTL {
		t.Errorf("expected default ttl, got %v", st.lastTTL)
	}
}

func TestCreateLink_Validation(t *testing.T) {
	h := NewLinkHandler(&fakeLinkStore{}, 0)
	srv := httptest.NewServer(http.HandlerFunc(h.CreateLink))
	defer srv.Close()

	cases := []struct {
		name string
		body string
	}{
		{"unknown platform", `{"platform":"twitch","platformId":"T1"}`},
		{"missing platform id", `{"platform":"discord","platformId":"  "}`},
		{"bad body", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL, tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}
