package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSetUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if res, _ := env.profiles.SetUsername(ctx, "p1", "  Wanderer "); !res.Applied || res.Username != "Wanderer" {
		t.Fatalf("SetUsername() = %+v, want Wanderer applied", res)
	}

	tests := []struct {
		name   string
		player string
		input  string
		msg    string
	}{
		{"too short", "p2", " ab ", "Identity too short"},
		{"reserved ignoring case", "p2", "WANDERER", "Identity already reserved"},
		{"reserved after normalisation", "p2", "wanderer", "Identity already reserved"},
		{"unchanged", "p1", "Wanderer", "Identity unchanged"},
		{"cooldown", "p1", "Nomad", "Identity locked for another 168h0m0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.profiles.SetUsername(ctx, tt.player, tt.input)
			if err != nil {
				t.Fatalf("SetUsername() error: %v", err)
			}
			if res.Applied || res.Message != tt.msg {
				t.Errorf("SetUsername(%q) = %+v, want rejected %q", tt.input, res.Outcome, tt.msg)
			}
		})
	}

	env.clock.Advance(168 * time.Hour)
	if res, _ := env.profiles.SetUsername(ctx, "p1", "Nomad"); !res.Applied {
		t.Errorf("after cooldown = %+v, want applied", res)
	}
	// the old name is free again
	if res, _ := env.profiles.SetUsername(ctx, "p2", "wanderer"); !res.Applied {
		t.Errorf("released name = %+v, want applied", res)
	}
}

func TestNormalizeUsername(t *testing.T) {
	env := newTestEnv(t)

	// "e" + combining acute composes to the single rune é under NFC
	name, key := env.profiles.NormalizeUsername(" Cafe\u0301 ")
	if name != "Caf\u00e9" {
		t.Errorf("name = %q, want NFC form", name)
	}
	_, other := env.profiles.NormalizeUsername("CAF\u00c9")
	if key != other {
		t.Errorf("keys %q and %q differ, want case-insensitive match", key, other)
	}
}

func TestProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.addNode(t, "Harbor", 5, 100)

	env.claim(t, "p1", ByNode(id))
	env.profiles.SetUsername(ctx, "p1", "Wanderer")

	sum, err := env.profiles.Progress(ctx, "p1")
	if err != nil {
		t.Fatalf("Progress() error: %v", err)
	}
	if sum.TotalPoints != 100 || sum.ActivityStreak != 1 || sum.Username != "Wanderer" {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.Nodes) != 1 || !sum.Nodes[0].ClaimedToday || sum.Nodes[0].Streak != 1 {
		t.Errorf("Nodes = %+v, want one node claimed today", sum.Nodes)
	}
	if sum.UsernameChangeFrom == nil || !sum.UsernameChangeFrom.Equal(testStart.Add(168*time.Hour)) {
		t.Errorf("UsernameChangeFrom = %v, want one week out", sum.UsernameChangeFrom)
	}
	if sum.Radii != (Radii{Detection: 250, Claim: 20}) {
		t.Errorf("Radii = %+v", sum.Radii)
	}

	if _, err := env.profiles.Progress(ctx, ""); !errors.Is(err, ErrMissingPlayer) {
		t.Errorf("Progress(\"\") = %v, want ErrMissingPlayer", err)
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.addNode(t, "Harbor", 5, 100)

	for i := 0; i < 5; i++ {
		env.claim(t, "p1", ByNode(id))
		env.nextDay()
	}

	h, err := env.profiles.History(ctx, "p1", 2, 2)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if h.Total != 5 || len(h.Events) != 2 || h.Page != 2 || h.Size != 2 {
		t.Errorf("History(2, 2) = total %d, %d events, page %d size %d", h.Total, len(h.Events), h.Page, h.Size)
	}

	h, _ = env.profiles.History(ctx, "nobody", 0, 500)
	if h.Events == nil || h.Page != 1 || h.Size != 20 {
		t.Errorf("History(defaults) = %+v", h)
	}
}

func TestProgress_UsesEnginePolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.addNode(t, "Harbor", 5, 100)

	policy := MustMultiplierPolicy([]MultiplierTier{{MinStreak: 2, Factor: 2.0}})
	engine := NewClaimEngine(env.store, env.catalog, env.settings, env.inbox, ClaimEngineConfig{
		Location: time.UTC,
		Policy:   policy,
		Clock:    env.clock,
	})
	profiles := NewProfileService(env.store, env.settings, engine.Policy(), env.clock, time.UTC, time.Hour)

	for day := 0; day < 2; day++ {
		if _, err := engine.Claim(ctx, "p1", ByNode(id)); err != nil {
			t.Fatalf("Claim() error: %v", err)
		}
		env.nextDay()
	}

	sum, err := profiles.Progress(ctx, "p1")
	if err != nil {
		t.Fatalf("Progress() error: %v", err)
	}
	if sum.TotalPoints != 300 {
		t.Errorf("TotalPoints = %d, want 100 + 200", sum.TotalPoints)
	}
	if len(sum.Nodes) != 1 || sum.Nodes[0].Multiplier != 2.0 {
		t.Errorf("Nodes = %+v, want the engine's 2x tier", sum.Nodes)
	}
}
