package services

import (
	"context"
	"testing"
)

type nudgeRecorder struct {
	players []string
}

func (n *nudgeRecorder) Nudge(playerID string) {
	n.players = append(n.players, playerID)
}

func TestSetDetectionRadius(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := &nudgeRecorder{}
	env.settings.Subscribe(rec)

	tests := []struct {
		name    string
		meters  float64
		applied bool
		message string
	}{
		{"widen", 400, true, "Detection radius set to 400m"},
		{"below claim radius", 10, false, "Claim radius (20m) cannot exceed detection radius (10m)"},
		{"above max", 6000, false, "Detection radius cannot exceed 5000m"},
		{"negative", -5, false, "Radii must be positive numbers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.settings.SetDetectionRadius(ctx, "p1", tt.meters)
			if err != nil {
				t.Fatalf("SetDetectionRadius() error: %v", err)
			}
			if res.Applied != tt.applied || res.Message != tt.message {
				t.Errorf("SetDetectionRadius(%v) = %+v, want applied=%v %q", tt.meters, res.Outcome, tt.applied, tt.message)
			}
		})
	}

	got, _ := env.settings.Radii(ctx, "p1")
	if got != (Radii{Detection: 400, Claim: 20}) {
		t.Errorf("Radii() = %+v, want detection 400 claim 20", got)
	}
	if len(rec.players) != 1 || rec.players[0] != "p1" {
		t.Errorf("nudged = %v, want one nudge for p1", rec.players)
	}
}

func TestRadii_DetectionNeverBelowClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if res, _ := env.settings.SetDetectionRadius(ctx, "p1", 30); !res.Applied {
		t.Fatalf("SetDetectionRadius(30) = %+v", res)
	}
	// a later global claim radius above the personal detection radius
	if res, _ := env.settings.SetGlobal(ctx, Radii{Detection: 250, Claim: 60}); !res.Applied {
		t.Fatalf("SetGlobal() = %+v", res)
	}

	got, _ := env.settings.Radii(ctx, "p1")
	if got.Detection != 60 || got.Claim != 60 {
		t.Errorf("Radii() = %+v, want detection widened to the claim radius", got)
	}
}
