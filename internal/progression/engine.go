package progression

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/vntrieu/steamcord/internal/keylock"
	"github.com/vntrieu/steamcord/internal/notify"
	"github.com/vntrieu/steamcord/internal/store"
)

// ProfileStore is the slice of the store the engine needs (implemented by
// store.ProfileStore; declared here to keep the engine testable without a database).
type ProfileStore interface {
	GetProfileByID(ctx context.Context, id int64) (*store.Profile, error)
	UpdateProfile(ctx context.Context, p *store.Profile) error
}

// Boost is one role's experience multiplier, kept for display purposes.
type Boost struct {
	Role   string  `json:"role"`
	Factor float64 `json:"factor"`
}

// Multiplier is the resolved experience multiplier for a set of role grants.
type Multiplier struct {
	Factor float64 `json:"factor"`
	Boosts []Boost `json:"boosts"`
}

// Config holds progression policy knobs.
type Config struct {
	// RoleBoosts maps a chat-platform role id to its experience factor.
	// Only factors above 1 boost; others are ignored.
	RoleBoosts map[string]float64

	// DailyBaseReward and DailyStreakBonus shape the daily claim payout:
	// reward = base + bonus*min(streak, DailyStreakCap).
	DailyBaseReward  int64
	DailyStreakBonus int64
	DailyStreakCap   int
}

// DefaultConfig returns the reference progression policy.
func DefaultConfig() Config {
	return Config{
		DailyBaseReward:  50,
		DailyStreakBonus: 10,
		DailyStreakCap:   30,
	}
}

// ErrAlreadyClaimed is returned when a profile claims its daily reward twice
// on the same UTC day.
var ErrAlreadyClaimed = errors.New("daily reward already claimed today")

// Engine computes experience thresholds and applies progression state changes.
type Engine struct {
	store    ProfileStore
	notifier notify.Notifier
	locks    *keylock.KeyLock
	config   Config
}

// NewEngine creates an engine. notifier may be nil to disable level-up
// announcements; locks may be nil when the caller owns serialization.
func NewEngine(st ProfileStore, notifier notify.Notifier, locks *keylock.KeyLock, config Config) *Engine {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if locks == nil {
		locks = keylock.New()
	}
	if config.DailyBaseReward == 0 {
		config.DailyBaseReward = DefaultConfig().DailyBaseReward
	}
	if config.DailyStreakBonus == 0 {
		config.DailyStreakBonus = DefaultConfig().DailyStreakBonus
	}
	if config.DailyStreakCap == 0 {
		config.DailyStreakCap = DefaultConfig().DailyStreakCap
	}
	return &Engine{store: st, notifier: notifier, locks: locks, config: config}
}

// ExperienceForLevel returns the experience required to advance past the given
// level. The curve is linear in the level, which keeps it strictly increasing
// and cheap to recompute: 100 for level 1, 200 for level 2, and so on.
func ExperienceForLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(level) * 100
}

// LevelFromExperience folds total accumulated experience into (level,
// remaining xp) by walking the threshold curve from level 1. Used after a
// merge so levels are recomputed, never summed.
func LevelFromExperience(totalXP int64) (level int, remaining int64) {
	level = 1
	remaining = totalXP
	for remaining >= ExperienceForLevel(level) {
		remaining -= ExperienceForLevel(level)
		level++
	}
	return level, remaining
}

// TotalExperience converts a (level, residual xp) pair back into lifetime
// experience: the thresholds consumed reaching the level plus the residual.
// Inverse of LevelFromExperience.
func TotalExperience(level int, residual int64) int64 {
	total := residual
	for l := 1; l < level; l++ {
		total += ExperienceForLevel(l)
	}
	return total
}

// ResolveMultiplier scans the role grants and returns the maximum single
// boosting factor (factors are never summed) plus the boosting roles sorted
// descending by factor. No boosting role yields factor 1.0 and no roles.
func (e *Engine) ResolveMultiplier(roles []string) Multiplier {
	m := Multiplier{Factor: 1.0}
	for _, role := range roles {
		factor, ok := e.config.RoleBoosts[role]
		if !ok || factor <= 1.0 {
			continue
		}
		m.Boosts = append(m.Boosts, Boost{Role: role, Factor: factor})
		if factor > m.Factor {
			m.Factor = factor
		}
	}
	sort.Slice(m.Boosts, func(i, j int) bool {
		if m.Boosts[i].Factor != m.Boosts[j].Factor {
			return m.Boosts[i].Factor > m.Boosts[j].Factor
		}
		return m.Boosts[i].Role < m.Boosts[j].Role
	})
	return m
}

// GiveExperience applies an experience grant to the stored profile. The
// effective gain is amount scaled by the resolved multiplier for roles (pass
// nil for no scaling). Accumulated experience is folded into level-ups,
// supporting multi-level jumps from a single grant. Returns nil, nil when the
// profile does not exist. Level-up announcements are fired after the update
// commits and never fail the grant.
func (e *Engine) GiveExperience(ctx context.Context, profileID int64, amount int64, roles []string) (*store.Profile, error) {
	unlock := e.locks.Lock(profileID)
	defer unlock()

	p, err := e.store.GetProfileByID(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if p == nil {
		return nil, nil
	}

	gain := amount
	if len(roles) > 0 {
		m := e.ResolveMultiplier(roles)
		gain = int64(math.Round(float64(amount) * m.Factor))
	}

	p.XP += gain
	levelsGained := 0
	for p.XP >= ExperienceForLevel(p.Level) {
		p.XP -= ExperienceForLevel(p.Level)
		p.Level++
		levelsGained++
	}

	if err := e.store.UpdateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("persist profile: %w", err)
	}

	if levelsGained > 0 {
		// Post-commit effect: the grant result never depends on delivery.
		name, level := p.DisplayName, p.Level
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), notify.DefaultTimeout)
			defer cancel()
			for l := level - levelsGained + 1; l <= level; l++ {
				if err := e.notifier.Announce(ctx, fmt.Sprintf("%s reached level %d!", name, l)); err != nil {
					log.Printf("level-up announce failed profile=%d level=%d: %v", profileID, l, err)
				}
			}
		}()
	}

	return p, nil
}

// ClaimDaily claims the once-per-UTC-day currency reward. Consecutive-day
// claims grow the streak; a missed day resets it to 1. Returns nil, 0, nil
// when the profile does not exist and ErrAlreadyClaimed on a same-day re-claim.
func (e *Engine) ClaimDaily(ctx context.Context, profileID int64) (*store.Profile, int64, error) {
	unlock := e.locks.Lock(profileID)
	defer unlock()

	p, err := e.store.GetProfileByID(ctx, profileID)
	if err != nil {
		return nil, 0, fmt.Errorf("load profile: %w", err)
	}
	if p == nil {
		return nil, 0, nil
	}

	now := time.Now().UTC()
	today := now.Truncate(24 * time.Hour)
	if p.LastClaimAt != nil {
		lastDay := p.LastClaimAt.UTC().Truncate(24 * time.Hour)
		switch {
		case lastDay.Equal(today):
			return nil, 0, ErrAlreadyClaimed
		case lastDay.Equal(today.AddDate(0, 0, -1)):
			p.Streak++
		default:
			p.Streak = 1
		}
	} else {
		p.Streak = 1
	}

	streak := p.Streak
	if streak > e.config.DailyStreakCap {
		streak = e.config.DailyStreakCap
	}
	reward := e.config.DailyBaseReward + e.config.DailyStreakBonus*int64(streak)
	p.Balance += reward
	p.LastClaimAt = &now

	if err := e.store.UpdateProfile(ctx, p); err != nil {
		return nil, 0, fmt.Errorf("persist profile: %w", err)
	}
	return p, reward, nil
}
