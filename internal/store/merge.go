package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// MergeRequest describes the consolidation of a donor profile into a retained
// one. The caller has already computed the combined numeric state.
type MergeRequest struct {
	RetainedID int64
	DonorID    int64

	// Combined state written to the retained profile.
	XP          int64
	Level       int
	Balance     int64
	Streak      int
	LastClaimAt *time.Time

	// ConsumeCode is the pairing code that authorized the merge; it is marked
	// consumed in the same transaction so a successful merge can never be replayed.
	ConsumeCode string
}

// MergeProfiles atomically consolidates the donor profile into the retained
// one: the retained row takes the combined state, every donor identity is
// reassigned to the retained profile, the donor row is deleted, and the
// authorizing code is consumed. Either all of it happens or none of it does.
func (s *ProfileStore) MergeProfiles(ctx context.Context, req MergeRequest) error {
	if req.RetainedID == req.DonorID {
		return fmt.Errorf("merge profiles: retained and donor are the same profile %d", req.RetainedID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lastClaim := pgtype.Timestamptz{Valid: false}
	if req.LastClaimAt != nil {
		lastClaim = pgtype.Timestamptz{Time: *req.LastClaimAt, Valid: true}
	}
	tag, err := tx.Exec(ctx, `
		UPDATE profiles
		SET xp = $2, level = $3, balance = $4, streak = $5, last_claim_at = $6, updated_at = now()
		WHERE id = $1`,
		req.RetainedID, req.XP, req.Level, req.Balance, req.Streak, lastClaim)
	if err != nil {
		return fmt.Errorf("update retained profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update retained profile: id %d not found", req.RetainedID)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE identities SET profile_id = $1 WHERE profile_id = $2`,
		req.RetainedID, req.DonorID); err != nil {
		return fmt.Errorf("reassign donor identities: %w", err)
	}

	tag, err = tx.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, req.DonorID)
	if err != nil {
		return fmt.Errorf("delete donor profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete donor profile: id %d not found", req.DonorID)
	}

	if req.ConsumeCode != "" {
		tag, err = tx.Exec(ctx, `
			UPDATE link_codes SET consumed_at = now()
			WHERE code = $1 AND consumed_at IS NULL`,
			req.ConsumeCode)
		if err != nil {
			return fmt.Errorf("consume link code: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("consume link code: code already consumed or unknown")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
