package linking

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/vntrieu/steamcord/internal/keylock"
	"github.com/vntrieu/steamcord/internal/notify"
	"github.com/vntrieu/steamcord/internal/progression"
	"github.com/vntrieu/steamcord/internal/store"
)

// Store is the slice of the store the linker needs (implemented by
// store.ProfileStore; MergeProfiles must be atomic).
type Store interface {
	ResolveLinkCode(ctx context.Context, code string) (*store.Identity, error)
	FindProfileByIdentity(ctx context.Context, id store.Identity) (*store.Profile, error)
	FindProfilesByIdentities(ctx context.Context, ids []store.Identity) ([]*store.Profile, error)
	MergeProfiles(ctx context.Context, req store.MergeRequest) error
}

// Result is the caller-visible outcome of a link attempt. A failed link has
// changed nothing: no code consumed, no notification sent, no store writes.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// MergeCardinalityError reports that the union of the two identities selected
// a profile count other than exactly two. Non-retryable.
type MergeCardinalityError struct {
	Count int
}

func (e *MergeCardinalityError) Error() string {
	return fmt.Sprintf("expected exactly 2 profiles to merge, found %d", e.Count)
}

// Linker performs the atomic two-party account merge.
type Linker struct {
	store    Store
	notifier notify.Notifier
	locks    *keylock.KeyLock
}

// NewLinker creates a Linker. notifier may be nil to disable merge
// confirmations; locks may be nil when the caller owns serialization.
func NewLinker(st Store, notifier notify.Notifier, locks *keylock.KeyLock) *Linker {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if locks == nil {
		locks = keylock.New()
	}
	return &Linker{store: st, notifier: notifier, locks: locks}
}

// LinkAccounts consolidates the profiles behind the game-platform identity
// and the identity that minted the pairing code into one. The profile owned
// by the game-platform identity is retained; the counterpart profile donates
// its state and is deleted. Numeric policy: balance and experience are
// summed, level is recomputed from the combined experience, streak takes the
// maximum, last claim takes the later timestamp. Never panics past its
// boundary; every failure comes back as a Result.
func (l *Linker) LinkAccounts(ctx context.Context, gameIdentity store.Identity, code string) Result {
	counterpart, err := l.store.ResolveLinkCode(ctx, code)
	if err != nil {
		log.Printf("link accounts: resolve code failed: %v", err)
		return Result{Success: false, Message: "could not resolve link code"}
	}
	if counterpart == nil {
		return Result{Success: false, Message: "invalid or expired link code"}
	}

	retained, err := l.store.FindProfileByIdentity(ctx, gameIdentity)
	if err != nil {
		log.Printf("link accounts: find retained profile failed: %v", err)
		return Result{Success: false, Message: "could not load profiles"}
	}

	profiles, err := l.store.FindProfilesByIdentities(ctx, []store.Identity{gameIdentity, *counterpart})
	if err != nil {
		log.Printf("link accounts: find profiles failed: %v", err)
		return Result{Success: false, Message: "could not load profiles"}
	}
	if len(profiles) != 2 {
		cardErr := &MergeCardinalityError{Count: len(profiles)}
		log.Printf("link accounts: %v (game=%s counterpart=%s)", cardErr, gameIdentity.PlatformID, counterpart.PlatformID)
		return Result{Success: false, Message: cardErr.Error()}
	}
	if retained == nil {
		// Two profiles matched but neither belongs to the game identity; the
		// union must have double-counted the counterpart. Treat as precondition failure.
		return Result{Success: false, Message: (&MergeCardinalityError{Count: len(profiles)}).Error()}
	}

	var donor *store.Profile
	for _, p := range profiles {
		if p.ID != retained.ID {
			donor = p
		}
	}
	if donor == nil {
		return Result{Success: false, Message: (&MergeCardinalityError{Count: 1}).Error()}
	}

	unlock := l.locks.LockPair(retained.ID, donor.ID)
	defer unlock()

	// Re-read under the pair lock so a concurrent grant cannot slip between
	// the cardinality check and the merge write.
	retained, err = l.store.FindProfileByIdentity(ctx, gameIdentity)
	if err != nil || retained == nil {
		log.Printf("link accounts: reload retained profile failed: %v", err)
		return Result{Success: false, Message: "could not load profiles"}
	}
	donor, err = l.store.FindProfileByIdentity(ctx, *counterpart)
	if err != nil || donor == nil || donor.ID == retained.ID {
		log.Printf("link accounts: reload donor profile failed: %v", err)
		return Result{Success: false, Message: "could not load profiles"}
	}

	// A profile's XP field is residual within its level, so both sides are
	// converted to lifetime experience before summing; recomputing the level
	// from the combined total then preserves every threshold already passed.
	combinedXP := progression.TotalExperience(retained.Level, retained.XP) +
		progression.TotalExperience(donor.Level, donor.XP)
	level, remaining := progression.LevelFromExperience(combinedXP)

	req := store.MergeRequest{
		RetainedID:  retained.ID,
		DonorID:     donor.ID,
		XP:          remaining,
		Level:       level,
		Balance:     retained.Balance + donor.Balance,
		Streak:      maxInt(retained.Streak, donor.Streak),
		LastClaimAt: laterTime(retained.LastClaimAt, donor.LastClaimAt),
		ConsumeCode: code,
	}
	if err := l.store.MergeProfiles(ctx, req); err != nil {
		log.Printf("link accounts: merge failed retained=%d donor=%d: %v", retained.ID, donor.ID, err)
		return Result{Success: false, Message: "merge failed"}
	}

	// Post-commit effect: confirmation delivery never influences the result.
	userID := counterpart.PlatformID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notify.DefaultTimeout)
		defer cancel()
		text := fmt.Sprintf("Your accounts are now linked. Profile %q kept your combined progress.", retained.DisplayName)
		if err := l.notifier.SendDirectMessage(ctx, userID, text); err != nil {
			log.Printf("link accounts: confirmation dm failed user=%s: %v", userID, err)
		}
	}()

	log.Printf("link accounts: merged donor=%d into retained=%d code=%s", donor.ID, retained.ID, code)
	return Result{Success: true, Message: fmt.Sprintf("accounts linked; profile %d retained", retained.ID)}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func laterTime(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.After(*b) {
		return a
	}
	return b
}
