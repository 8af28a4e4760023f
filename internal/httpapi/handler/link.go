package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/vntrieu/steamcord/internal/store"
)

// LinkStore is the subset of the profile store the link handler needs.
type LinkStore interface {
	CreateLinkCode(ctx context.Context, id store.Identity, ttl time.Duration) (*store.LinkCode, error)
}

// LinkHandler mints pairing codes for chat-platform identities. The chat bot
// calls this on behalf of a user who asked to link their game account; the
// code is then typed into the game and arrives over the bridge.
type LinkHandler struct {
	store LinkStore
	ttl   time.Duration
}

// NewLinkHandler creates a new LinkHandler. ttl <= 0 falls back to the store
// default.
func NewLinkHandler(linkStore LinkStore, ttl time.Duration) *LinkHandler {
	if ttl <= 0 {
		ttl = store.DefaultLinkCodeTTL
	}
	return &LinkHandler{store: linkStore, ttl: ttl}
}

// CreateLinkRequest is the JSON body for POST /api/links.
type CreateLinkRequest struct {
	Platform   string `json:"platform"`
	PlatformID string `json:"platformId"`
}

// CreateLinkResponse is the JSON body returned for a minted pairing code.
type CreateLinkResponse struct {
	Code       string    `json:"code"`
	Platform   string    `json:"platform"`
	PlatformID string    `json:"platformId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// CreateLink handles POST /api/links.
func (h *LinkHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	platform := store.Platform(strings.TrimSpace(req.Platform))
	if platform != store.PlatformSteam && platform != store.PlatformDiscord {
		http.Error(w, "platform must be steam or discord", http.StatusBadRequest)
		return
	}
	platformID := strings.TrimSpace(req.PlatformID)
	if platformID == "" {
		http.Error(w, "platformId is required", http.StatusBadRequest)
		return
	}

	code, err := h.store.CreateLinkCode(r.Context(), store.Identity{Platform: platform, PlatformID: platformID}, h.ttl)
	if err != nil {
		log.Printf("[%s] create link code error: %v", requestID(r), err)
		http.Error(w, "failed to create link code", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, http.StatusCreated, CreateLinkResponse{
		Code:       code.Code,
		Platform:   string(code.Identity.Platform),
		PlatformID: code.Identity.PlatformID,
		ExpiresAt:  code.ExpiresAt,
	})
}
