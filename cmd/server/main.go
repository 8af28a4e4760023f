package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vntrieu/steamcord/internal/auth"
	"github.com/vntrieu/steamcord/internal/database"
	"github.com/vntrieu/steamcord/internal/httpapi"
	"github.com/vntrieu/steamcord/internal/notify"
	"github.com/vntrieu/steamcord/internal/progression"
	"github.com/vntrieu/steamcord/internal/ratelimit"
)

func main() {
	_ = godotenv.Load()

	addr := getenv("STEAMCORD_HTTP_ADDR", ":8080")
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	migrationsDir := getenv("MIGRATIONS_DIR", "migrations")

	validatorURL := os.Getenv("TOKEN_VALIDATOR_URL")
	if validatorURL == "" {
		log.Fatal("TOKEN_VALIDATOR_URL environment variable is required")
	}

	// Connect to PostgreSQL.
	ctx := context.Background()
	dbPool, err := database.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer dbPool.Close()
	log.Println("connected to database")

	// Run pending migrations.
	if err := database.Migrate(ctx, dbPool, migrationsDir); err != nil {
		log.Fatalf("database migrate: %v", err)
	}
	log.Println("migrations up to date")

	var notifier notify.Notifier
	if url := os.Getenv("NOTIFIER_URL"); url != "" {
		notifier = notify.NewHTTPNotifier(url)
	}

	progressionConfig := progression.DefaultConfig()
	progressionConfig.RoleBoosts = parseRoleBoosts(os.Getenv("ROLE_BOOSTS"))

	// Bridge messages are limited per steam id; 120/min covers a busy
	// game server with headroom.
	messageRate := getenvInt("WS_MESSAGE_RATE_LIMIT", 120)
	var messageLimiter ratelimit.Limiter
	if messageRate > 0 {
		messageLimiter = ratelimit.NewInMemory(messageRate, time.Minute)
	}

	router := httpapi.NewRouter(dbPool, httpapi.Config{
		Validator:      auth.NewHTTPValidator(validatorURL),
		Notifier:       notifier,
		AdminKeyHash:   []byte(os.Getenv("ADMIN_API_KEY_HASH")),
		Progression:    progressionConfig,
		RateLimiter:    httpapi.DefaultRateLimiter(),
		MessageLimiter: messageLimiter,
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("steamcord bridge listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// parseRoleBoosts reads "role=factor" pairs separated by commas, e.g.
// "booster=1.25,mvp=1.5". Malformed pairs are logged and skipped.
func parseRoleBoosts(raw string) map[string]float64 {
	if raw == "" {
		return nil
	}
	boosts := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		role, value, ok := strings.Cut(pair, "=")
		if !ok {
			log.Printf("skipping malformed role boost %q", pair)
			continue
		}
		factor, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			log.Printf("skipping role boost %q: %v", pair, err)
			continue
		}
		boosts[strings.TrimSpace(role)] = factor
	}
	return boosts
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}
