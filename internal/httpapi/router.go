package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vntrieu/steamcord/internal/auth"
	"github.com/vntrieu/steamcord/internal/httpapi/handler"
	"github.com/vntrieu/steamcord/internal/keylock"
	"github.com/vntrieu/steamcord/internal/linking"
	"github.com/vntrieu/steamcord/internal/notify"
	"github.com/vntrieu/steamcord/internal/progression"
	"github.com/vntrieu/steamcord/internal/ratelimit"
	"github.com/vntrieu/steamcord/internal/registry"
	"github.com/vntrieu/steamcord/internal/store"
	"github.com/vntrieu/steamcord/internal/websocket"
)

// Config carries the router's collaborators and policy knobs.
type Config struct {
	// Validator authenticates each bridge message. Required.
	Validator auth.Validator

	// Notifier delivers level-up announcements and merge confirmations to
	// the chat platform. nil disables notifications.
	Notifier notify.Notifier

	// AdminKeyHash is the bcrypt hash guarding POST /api/links. Empty
	// closes the endpoint.
	AdminKeyHash []byte

	// Progression holds role boosts and daily reward policy.
	Progression progression.Config

	// RateLimiter limits the bot-facing HTTP endpoints by IP. nil disables.
	RateLimiter ratelimit.Limiter

	// MessageLimiter limits bridge messages per identity. nil disables.
	MessageLimiter ratelimit.Limiter

	// LinkCodeTTL is the pairing code lifetime. <= 0 uses the store default.
	LinkCodeTTL time.Duration
}

// NewRouter builds the root HTTP router: health check, the /ws bridge
// endpoint, and the bot-facing REST API.
func NewRouter(pool *pgxpool.Pool, cfg Config) http.Handler {
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimiter = ratelimit.Noop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", AdminKeyHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", handler.Healthz)

	// Shared collaborators: one store, one presence registry, one lock
	// table serializing profile mutations across the bridge and the API.
	profileStore := store.NewProfileStore(pool)
	reg := registry.New()
	locks := keylock.New()
	engine := progression.NewEngine(profileStore, cfg.Notifier, locks, cfg.Progression)
	linker := linking.NewLinker(profileStore, cfg.Notifier, locks)

	dispatcher := websocket.NewDispatcher(profileStore, reg, engine, linker, cfg.Validator, cfg.MessageLimiter)
	hub := websocket.NewHub(dispatcher)
	go hub.Run()

	wsHandler := websocket.NewWSHandler(hub)
	r.Get("/ws", wsHandler.HandleBridge)

	rateLimitByIP := RateLimitMiddleware(rateLimiter, RateLimitKeyByIP)

	profileHandler := handler.NewProfileHandler(profileStore, engine, reg)
	r.Route("/api", func(r chi.Router) {
		r.Use(LimitRequestBody(DefaultMaxBodyBytes))

		r.Get("/leaderboard", profileHandler.Leaderboard)
		r.Route("/profiles/{id}", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.With(rateLimitByIP).Post("/xp", profileHandler.GrantXP)
			r.With(rateLimitByIP).Post("/daily", profileHandler.ClaimDaily)
		})

		linkHandler := handler.NewLinkHandler(profileStore, cfg.LinkCodeTTL)
		r.With(RequireAdminKey(cfg.AdminKeyHash), rateLimitByIP).Post("/links", linkHandler.CreateLink)
	})

	return r
}

// DefaultRateLimiter returns an in-memory limiter for the bot-facing
// endpoints: 60 requests per minute per IP. For multi-instance deployments,
// replace with a shared backend.
func DefaultRateLimiter() ratelimit.Limiter {
	return ratelimit.NewInMemory(60, time.Minute)
}
