package store

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// LinkCode is a short-lived, single-use pairing code that authorizes a merge
// between the identity that generated it and one counterpart identity.
type LinkCode struct {
	Code       string     `json:"code"`
	Identity   Identity   `json:"identity"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// DefaultLinkCodeTTL is the lifetime of a freshly minted pairing code.
const DefaultLinkCodeTTL = 15 * time.Minute

// generateLinkCode produces a short human-typable code seeded with uuid entropy.
func generateLinkCode() string {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // Exclude confusing chars like 0, O, I, 1
	const codeLength = 8
	seed := uuid.New()
	r := rand.New(rand.NewSource(int64(seed.ID())<<32 | time.Now().UnixNano()&0xffffffff))
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = charset[r.Intn(len(charset))]
	}
	return string(code)
}

// CreateLinkCode mints a new pairing code for the given identity.
func (s *ProfileStore) CreateLinkCode(ctx context.Context, id Identity, ttl time.Duration) (*LinkCode, error) {
	if ttl <= 0 {
		ttl = DefaultLinkCodeTTL
	}

	expiresAt := time.Now().UTC().Add(ttl)

	// Retry on the (unlikely) collision with an existing code.
	for attempt := 0; attempt < 5; attempt++ {
		code := generateLinkCode()
		row := s.pool.QueryRow(ctx, `
			INSERT INTO link_codes (code, platform, platform_id, expires_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (code) DO NOTHING
			RETURNING code, platform, platform_id, created_at, expires_at`,
			code, string(id.Platform), id.PlatformID, expiresAt)
		lc, err := scanLinkCode(row)
		if err != nil {
			if err == pgx.ErrNoRows {
				continue
			}
			return nil, fmt.Errorf("insert link code: %w", err)
		}
		return lc, nil
	}
	return nil, fmt.Errorf("insert link code: could not generate a unique code")
}

func scanLinkCode(row pgx.Row) (*LinkCode, error) {
	var lc LinkCode
	var platform, platformID string
	if err := row.Scan(&lc.Code, &platform, &platformID, &lc.CreatedAt, &lc.ExpiresAt); err != nil {
		return nil, err
	}
	lc.Identity = Identity{Platform: Platform(platform), PlatformID: platformID}
	return &lc, nil
}

// ResolveLinkCode returns the identity behind an active (unconsumed,
// unexpired) pairing code. Returns nil, nil when the code does not resolve.
func (s *ProfileStore) ResolveLinkCode(ctx context.Context, code string) (*Identity, error) {
	var platform, platformID string
	var consumedAt pgtype.Timestamptz
	err := s.pool.QueryRow(ctx, `
		SELECT platform, platform_id, consumed_at
		FROM link_codes
		WHERE code = $1 AND expires_at > now()`,
		code).Scan(&platform, &platformID, &consumedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve link code: %w", err)
	}
	if consumedAt.Valid {
		return nil, nil
	}
	return &Identity{Platform: Platform(platform), PlatformID: platformID}, nil
}
