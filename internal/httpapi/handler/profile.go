package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vntrieu/steamcord/internal/progression"
	"github.com/vntrieu/steamcord/internal/registry"
	"github.com/vntrieu/steamcord/internal/store"
)

// Leaderboard limits.
const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// ProfileStore is the subset of the profile store the profile handler needs.
type ProfileStore interface {
	GetProfileByID(ctx context.Context, id int64) (*store.Profile, error)
	IdentitiesForProfile(ctx context.Context, profileID int64) ([]store.Identity, error)
	CountProfiles(ctx context.Context) (int64, error)
	TopProfiles(ctx context.Context, limit int) ([]*store.Profile, error)
}

// Progression is the subset of the progression engine the profile handler
// needs.
type Progression interface {
	GiveExperience(ctx context.Context, profileID int64, amount int64, roles []string) (*store.Profile, error)
	ClaimDaily(ctx context.Context, profileID int64) (*store.Profile, int64, error)
}

// ProfileHandler serves the bot-facing profile endpoints. The chat bot uses
// these to show stats, award chat experience, and run daily claims; the
// presence registry is refreshed after mutations so an online player sees
// fresh state.
type ProfileHandler struct {
	store    ProfileStore
	engine   Progression
	registry *registry.Registry
}

// NewProfileHandler creates a new ProfileHandler. reg may be nil when no
// presence cache is wired.
func NewProfileHandler(profileStore ProfileStore, engine Progression, reg *registry.Registry) *ProfileHandler {
	return &ProfileHandler{store: profileStore, engine: engine, registry: reg}
}

func profileIDFromRequest(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ProfileResponse is the JSON body for GET /api/profiles/{id}.
type ProfileResponse struct {
	Profile    *store.Profile   `json:"profile"`
	Identities []store.Identity `json:"identities"`
}

// GetProfile handles GET /api/profiles/{id}.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := profileIDFromRequest(r)
	if !ok {
		http.Error(w, "invalid profile id", http.StatusBadRequest)
		return
	}

	p, err := h.store.GetProfileByID(r.Context(), id)
	if err != nil {
		log.Printf("[%s] get profile error: %v", requestID(r), err)
		http.Error(w, "failed to load profile", http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}

	identities, err := h.store.IdentitiesForProfile(r.Context(), id)
	if err != nil {
		log.Printf("[%s] load identities error: %v", requestID(r), err)
		http.Error(w, "failed to load profile", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, http.StatusOK, ProfileResponse{Profile: p, Identities: identities})
}

// GrantXPRequest is the JSON body for POST /api/profiles/{id}/xp.
type GrantXPRequest struct {
	Amount int64    `json:"amount"`
	Roles  []string `json:"roles,omitempty"`
}

// GrantXP handles POST /api/profiles/{id}/xp.
func (h *ProfileHandler) GrantXP(w http.ResponseWriter, r *http.Request) {
	id, ok := profileIDFromRequest(r)
	if !ok {
		http.Error(w, "invalid profile id", http.StatusBadRequest)
		return
	}

	var req GrantXPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	p, err := h.engine.GiveExperience(r.Context(), id, req.Amount, req.Roles)
	if err != nil {
		log.Printf("[%s] grant xp error: %v", requestID(r), err)
		http.Error(w, "failed to grant experience", http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}

	if h.registry != nil {
		h.registry.Refresh(p)
	}
	writeJSON(w, r, http.StatusOK, p)
}

// DailyClaimResponse is the JSON body for a successful daily claim.
type DailyClaimResponse struct {
	Profile *store.Profile `json:"profile"`
	Reward  int64          `json:"reward"`
}

// ClaimDaily handles POST /api/profiles/{id}/daily.
func (h *ProfileHandler) ClaimDaily(w http.ResponseWriter, r *http.Request) {
	id, ok := profileIDFromRequest(r)
	if !ok {
		http.Error(w, "invalid profile id", http.StatusBadRequest)
		return
	}

	p, reward, err := h.engine.ClaimDaily(r.Context(), id)
	if errors.Is(err, progression.ErrAlreadyClaimed) {
		http.Error(w, "daily reward already claimed today", http.StatusConflict)
		return
	}
	if err != nil {
		log.Printf("[%s] daily claim error: %v", requestID(r), err)
		http.Error(w, "failed to claim daily reward", http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}

	if h.registry != nil {
		h.registry.Refresh(p)
	}
	writeJSON(w, r, http.StatusOK, DailyClaimResponse{Profile: p, Reward: reward})
}

// LeaderboardResponse is the JSON body for GET /api/leaderboard.
type LeaderboardResponse struct {
	Total    int64            `json:"total"`
	Profiles []*store.Profile `json:"profiles"`
}

// Leaderboard handles GET /api/leaderboard.
func (h *ProfileHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n > MaxLeaderboardLimit {
			n = MaxLeaderboardLimit
		}
		limit = n
	}

	total, err := h.store.CountProfiles(r.Context())
	if err != nil {
		log.Printf("[%s] count profiles error: %v", requestID(r), err)
		http.Error(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}
	profiles, err := h.store.TopProfiles(r.Context(), limit)
	if err != nil {
		log.Printf("[%s] top profiles error: %v", requestID(r), err)
		http.Error(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}
	if profiles == nil {
		profiles = []*store.Profile{}
	}

	writeJSON(w, r, http.StatusOK, LeaderboardResponse{Total: total, Profiles: profiles})
}
