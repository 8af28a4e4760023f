package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Platform identifies an external account provider.
type Platform string

const (
	PlatformSteam   Platform = "steam"
	PlatformDiscord Platform = "discord"
)

// Identity names one external account: a platform plus its platform-specific id.
type Identity struct {
	Platform   Platform `json:"platform"`
	PlatformID string   `json:"platform_id"`
}

// Profile is the durable record of a player's progression and economy state.
// A profile owns one or more identities; each identity belongs to exactly one profile.
type Profile struct {
	ID          int64      `json:"id"`
	DisplayName string     `json:"display_name"`
	XP          int64      `json:"xp"`
	Level       int        `json:"level"`
	Balance     int64      `json:"balance"`
	Streak      int        `json:"streak"`
	LastClaimAt *time.Time `json:"last_claim_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ProfileStore handles database operations for profiles and their identities.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a new ProfileStore.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

const profileColumns = `id, display_name, xp, level, balance, streak, last_claim_at, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var lastClaim pgtype.Timestamptz
	err := row.Scan(&p.ID, &p.DisplayName, &p.XP, &p.Level, &p.Balance, &p.Streak, &lastClaim, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastClaim.Valid {
		t := lastClaim.Time
		p.LastClaimAt = &t
	}
	return &p, nil
}

// FindProfileByIdentity returns the profile owning the given identity.
// Returns nil, nil when no profile owns it.
func (s *ProfileStore) FindProfileByIdentity(ctx context.Context, id Identity) (*Profile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+profileColumnsPrefixed("p")+`
		FROM profiles p
		JOIN identities i ON i.profile_id = p.id
		WHERE i.platform = $1 AND i.platform_id = $2`,
		string(id.Platform), id.PlatformID)
	p, err := scanProfile(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find profile by identity: %w", err)
	}
	return p, nil
}

// profileColumnsPrefixed returns the profile column list qualified with the given alias.
func profileColumnsPrefixed(alias string) string {
	return alias + `.id, ` + alias + `.display_name, ` + alias + `.xp, ` + alias + `.level, ` + alias + `.balance, ` + alias + `.streak, ` + alias + `.last_claim_at, ` + alias + `.created_at, ` + alias + `.updated_at`
}

// CreateProfile creates a fresh profile (level 1, zero experience) owned by the
// given identity. Profile and identity rows are inserted in one transaction.
func (s *ProfileStore) CreateProfile(ctx context.Context, id Identity, displayName string) (*Profile, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO profiles (display_name, xp, level, balance, streak)
		VALUES ($1, 0, 1, 0, 0)
		RETURNING `+profileColumns, displayName)
	p, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO identities (platform, platform_id, profile_id)
		VALUES ($1, $2, $3)`,
		string(id.Platform), id.PlatformID, p.ID)
	if err != nil {
		return nil, fmt.Errorf("insert identity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return p, nil
}

// GetProfileByID returns the profile with the given id. Returns nil, nil when not found.
func (s *ProfileStore) GetProfileByID(ctx context.Context, id int64) (*Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile by id: %w", err)
	}
	return p, nil
}

// UpdateProfile persists the mutable fields of the profile.
func (s *ProfileStore) UpdateProfile(ctx context.Context, p *Profile) error {
	lastClaim := pgtype.Timestamptz{Valid: false}
	if p.LastClaimAt != nil {
		lastClaim = pgtype.Timestamptz{Time: *p.LastClaimAt, Valid: true}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET display_name = $2, xp = $3, level = $4, balance = $5, streak = $6,
		    last_claim_at = $7, updated_at = now()
		WHERE id = $1`,
		p.ID, p.DisplayName, p.XP, p.Level, p.Balance, p.Streak, lastClaim)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update profile: id %d not found", p.ID)
	}
	return nil
}

// FindProfilesByIdentities returns the distinct profiles owning any of the
// given identities. The result length is the observed profile cardinality for
// a merge precondition check.
func (s *ProfileStore) FindProfilesByIdentities(ctx context.Context, ids []Identity) ([]*Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	platforms := make([]string, len(ids))
	platformIDs := make([]string, len(ids))
	for i, id := range ids {
		platforms[i] = string(id.Platform)
		platformIDs[i] = id.PlatformID
	}
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT `+profileColumnsPrefixed("p")+`
		FROM profiles p
		JOIN identities i ON i.profile_id = p.id
		JOIN unnest($1::text[], $2::text[]) AS want(platform, platform_id)
		  ON i.platform = want.platform AND i.platform_id = want.platform_id`,
		platforms, platformIDs)
	if err != nil {
		return nil, fmt.Errorf("find profiles by identities: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find profiles by identities: %w", err)
	}
	return profiles, nil
}

// CountProfiles returns the total number of profiles.
func (s *ProfileStore) CountProfiles(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM profiles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return count, nil
}

// TopProfiles returns up to limit profiles ordered by level then experience, descending.
func (s *ProfileStore) TopProfiles(ctx context.Context, limit int) ([]*Profile, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+profileColumns+` FROM profiles
		ORDER BY level DESC, xp DESC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top profiles: %w", err)
	}
	return profiles, nil
}

// IdentitiesForProfile returns every identity owned by the profile.
func (s *ProfileStore) IdentitiesForProfile(ctx context.Context, profileID int64) ([]Identity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT platform, platform_id FROM identities WHERE profile_id = $1
		ORDER BY platform, platform_id`, profileID)
	if err != nil {
		return nil, fmt.Errorf("identities for profile: %w", err)
	}
	defer rows.Close()

	var ids []Identity
	for rows.Next() {
		var platform, platformID string
		if err := rows.Scan(&platform, &platformID); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		ids = append(ids, Identity{Platform: Platform(platform), PlatformID: platformID})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identities for profile: %w", err)
	}
	return ids, nil
}
