package progression

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vntrieu/steamcord/internal/store"
)

// fakeStore keeps profiles in a map and records updates.
type fakeStore struct {
	profiles map[int64]*store.Profile
	updates  int
	failNext error
}

func newFakeStore(profiles ...*store.Profile) *fakeStore {
	m := make(map[int64]*store.Profile)
	for _, p := range profiles {
		m[p.ID] = p
	}
	return &fakeStore{profiles: m}
}

func (f *fakeStore) GetProfileByID(ctx context.Context, id int64) (*store.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) UpdateProfile(ctx context.Context, p *store.Profile) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	cp := *p
	f.profiles[p.ID] = &cp
	f.updates++
	return nil
}

// fakeNotifier records announcements on a channel.
type fakeNotifier struct {
	announced chan string
}

func (f *fakeNotifier) SendDirectMessage(ctx context.Context, userID, text string) error { return nil }
func (f *fakeNotifier) Announce(ctx context.Context, text string) error {
	f.announced <- text
	return nil
}

func TestExperienceForLevel_StrictlyIncreasing(t *testing.T) {
	prev := int64(0)
	for level := 1; level <= 100; level++ {
		req := ExperienceForLevel(level)
		if req <= prev {
			t.Fatalf("curve not strictly increasing at level %d: %d <= %d", level, req, prev)
		}
		prev = req
	}
	if got := ExperienceForLevel(1); got != 100 {
		t.Errorf("expected level 1 threshold 100, got %d", got)
	}
}

func TestLevelFromExperience(t *testing.T) {
	cases := []struct {
		totalXP   int64
		wantLevel int
		wantRem   int64
	}{
		{0, 1, 0},
		{99, 1, 99},
		{100, 2, 0},
		{120, 2, 20},
		{300, 3, 0},
		{350, 3, 50},
	}
	for _, c := range cases {
		level, rem := LevelFromExperience(c.totalXP)
		if level != c.wantLevel || rem != c.wantRem {
			t.Errorf("LevelFromExperience(%d) = (%d, %d), want (%d, %d)", c.totalXP, level, rem, c.wantLevel, c.wantRem)
		}
	}
}

func TestTotalExperience(t *testing.T) {
	cases := []struct {
		level    int
		residual int64
		want     int64
	}{
		{1, 0, 0},
		{1, 99, 99},
		{2, 0, 100},
		{3, 50, 350},
		{4, 10, 610},
	}
	for _, c := range cases {
		if got := TotalExperience(c.level, c.residual); got != c.want {
			t.Errorf("TotalExperience(%d, %d) = %d, want %d", c.level, c.residual, got, c.want)
		}
	}

	// Round trip: folding lifetime xp and unfolding it must agree
	for _, totalXP := range []int64{0, 99, 100, 350, 1234} {
		level, rem := LevelFromExperience(totalXP)
		if back := TotalExperience(level, rem); back != totalXP {
			t.Errorf("TotalExperience(LevelFromExperience(%d)) = %d", totalXP, back)
		}
	}
}

func TestResolveMultiplier(t *testing.T) {
	e := NewEngine(newFakeStore(), nil, nil, Config{
		RoleBoosts: map[string]float64{
			"supporter": 1.10,
			"booster":   1.25,
			"member":    1.0,
		},
	})

	m := e.ResolveMultiplier([]string{"member", "supporter", "booster"})
	if m.Factor != 1.25 {
		t.Errorf("expected max factor 1.25, got %v", m.Factor)
	}
	if len(m.Boosts) != 2 {
		t.Fatalf("expected 2 boosting roles, got %d", len(m.Boosts))
	}
	if m.Boosts[0].Role != "booster" || m.Boosts[1].Role != "supporter" {
		t.Errorf("expected boosts sorted descending by factor, got %+v", m.Boosts)
	}

	m = e.ResolveMultiplier([]string{"member", "stranger"})
	if m.Factor != 1.0 || len(m.Boosts) != 0 {
		t.Errorf("expected factor 1.0 and no boosts, got %+v", m)
	}

	m = e.ResolveMultiplier(nil)
	if m.Factor != 1.0 || len(m.Boosts) != 0 {
		t.Errorf("expected factor 1.0 for nil roles, got %+v", m)
	}
}

func TestGiveExperience_MultiLevelJump(t *testing.T) {
	st := newFakeStore(&store.Profile{ID: 1, DisplayName: "Nova", Level: 1, XP: 0})
	e := NewEngine(st, nil, nil, Config{})

	// 320 xp crosses the level 1 (100) and level 2 (200) thresholds exactly twice
	p, err := e.GiveExperience(context.Background(), 1, 320, nil)
	if err != nil {
		t.Fatalf("give experience: %v", err)
	}
	if p.Level != 3 {
		t.Errorf("expected level 3 after crossing two thresholds, got %d", p.Level)
	}
	if p.XP != 20 {
		t.Errorf("expected 20 remaining xp, got %d", p.XP)
	}
}

func TestGiveExperience_AppliesMultiplier(t *testing.T) {
	st := newFakeStore(&store.Profile{ID: 1, DisplayName: "Nova", Level: 1, XP: 0})
	e := NewEngine(st, nil, nil, Config{RoleBoosts: map[string]float64{"booster": 1.25}})

	p, err := e.GiveExperience(context.Background(), 1, 40, []string{"booster"})
	if err != nil {
		t.Fatalf("give experience: %v", err)
	}
	if p.XP != 50 {
		t.Errorf("expected 40*1.25=50 xp, got %d", p.XP)
	}
}

func TestGiveExperience_AbsentProfile(t *testing.T) {
	e := NewEngine(newFakeStore(), nil, nil, Config{})
	p, err := e.GiveExperience(context.Background(), 99, 10, nil)
	if err != nil {
		t.Fatalf("give experience: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil profile for unknown id, got %+v", p)
	}
}

func TestGiveExperience_AnnouncesLevelUps(t *testing.T) {
	st := newFakeStore(&store.Profile{ID: 1, DisplayName: "Nova", Level: 1, XP: 0})
	n := &fakeNotifier{announced: make(chan string, 4)}
	e := NewEngine(st, n, nil, Config{})

	if _, err := e.GiveExperience(context.Background(), 1, 320, nil); err != nil {
		t.Fatalf("give experience: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-n.announced:
		case <-time.After(time.Second):
			t.Fatalf("expected 2 level-up announcements, got %d", i)
		}
	}
}

func TestGiveExperience_StoreFailure(t *testing.T) {
	st := newFakeStore(&store.Profile{ID: 1, DisplayName: "Nova", Level: 1, XP: 0})
	st.failNext = errors.New("boom")
	e := NewEngine(st, nil, nil, Config{})

	if _, err := e.GiveExperience(context.Background(), 1, 10, nil); err == nil {
		t.Error("expected error when the store update fails")
	}
}

func TestClaimDaily(t *testing.T) {
	st := newFakeStore(&store.Profile{ID: 1, DisplayName: "Nova", Level: 1})
	e := NewEngine(st, nil, nil, Config{})

	p, reward, err := e.ClaimDaily(context.Background(), 1)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if p.Streak != 1 {
		t.Errorf("expected streak 1 on first claim, got %d", p.Streak)
	}
	if reward != 60 { // 50 base + 10*1
		t.Errorf("expected reward 60, got %d", reward)
	}
	if p.Balance != 60 {
		t.Errorf("expected balance 60, got %d", p.Balance)
	}

	// Same-day re-claim is rejected
	if _, _, err := e.ClaimDaily(context.Background(), 1); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestClaimDaily_StreakContinuesAndResets(t *testing.T) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	st := newFakeStore(&store.Profile{ID: 1, DisplayName: "Nova", Level: 1, Streak: 3, LastClaimAt: &yesterday})
	e := NewEngine(st, nil, nil, Config{})

	p, _, err := e.ClaimDaily(context.Background(), 1)
	if err != nil {
		t.Fatalf("consecutive claim: %v", err)
	}
	if p.Streak != 4 {
		t.Errorf("expected streak 4 after consecutive-day claim, got %d", p.Streak)
	}

	lastWeek := time.Now().UTC().AddDate(0, 0, -7)
	st = newFakeStore(&store.Profile{ID: 2, DisplayName: "Vega", Level: 1, Streak: 9, LastClaimAt: &lastWeek})
	e = NewEngine(st, nil, nil, Config{})

	p, _, err = e.ClaimDaily(context.Background(), 2)
	if err != nil {
		t.Fatalf("claim after gap: %v", err)
	}
	if p.Streak != 1 {
		t.Errorf("expected streak reset to 1 after a gap, got %d", p.Streak)
	}
}

func TestClaimDaily_AbsentProfile(t *testing.T) {
	e := NewEngine(newFakeStore(), nil, nil, Config{})
	p, reward, err := e.ClaimDaily(context.Background(), 42)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if p != nil || reward != 0 {
		t.Errorf("expected nil result for unknown profile, got %+v reward=%d", p, reward)
	}
}
