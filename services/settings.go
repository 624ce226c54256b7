package services

import (
	"context"
	"fmt"
	"math"
	"sync"

	"landmark-quest/models"
	"landmark-quest/repository"
)

// Outcome is a soft, user-facing result. Applied is false when the change was
// rejected by validation; Message always says what happened.
type Outcome struct {
	Applied bool   `json:"applied"`
	Message string `json:"message"`
}

func applied(format string, args ...interface{}) Outcome {
	return Outcome{Applied: true, Message: fmt.Sprintf(format, args...)}
}

func rejected(format string, args ...interface{}) Outcome {
	return Outcome{Applied: false, Message: fmt.Sprintf(format, args...)}
}

type RadiiResult struct {
	Outcome
	Radii Radii `json:"radii"`
}

// Nudger is told when something a player's proximity depends on changed.
// An empty player id means every player.
type Nudger interface {
	Nudge(playerID string)
}

// SettingsService resolves the detection/claim radii in force for a player:
// the global row, overlaid with the player's own overrides.
type SettingsService struct {
	store     repository.Store
	defaults  Radii
	maxRadius float64

	mu        sync.RWMutex
	listeners []Nudger
}

func NewSettingsService(store repository.Store, defaults Radii, maxRadius float64) *SettingsService {
	return &SettingsService{store: store, defaults: defaults, maxRadius: maxRadius}
}

// Subscribe registers n to be nudged after every radius change.
func (s *SettingsService) Subscribe(n Nudger) {
	s.mu.Lock()
	s.listeners = append(s.listeners, n)
	s.mu.Unlock()
}

func (s *SettingsService) nudge(playerID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.listeners {
		n.Nudge(playerID)
	}
}

// ValidateRadii returns a rejection reason, or "" when r is usable.
func (s *SettingsService) ValidateRadii(r Radii) string {
	switch {
	case !positiveFinite(r.Detection) || !positiveFinite(r.Claim):
		return "Radii must be positive numbers"
	case r.Claim > r.Detection:
		return fmt.Sprintf("Claim radius (%.0fm) cannot exceed detection radius (%.0fm)", r.Claim, r.Detection)
	case r.Detection > s.maxRadius:
		return fmt.Sprintf("Detection radius cannot exceed %.0fm", s.maxRadius)
	}
	return ""
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Global returns the radii applied to players without overrides.
func (s *SettingsService) Global(ctx context.Context) (Radii, error) {
	row, err := s.store.GetGlobalSettings(ctx, models.GlobalSettings{
		DetectionRadius: s.defaults.Detection,
		ClaimRadius:     s.defaults.Claim,
	})
	if err != nil {
		return Radii{}, fmt.Errorf("load global settings: %w", err)
	}
	return Radii{Detection: row.DetectionRadius, Claim: row.ClaimRadius}, nil
}

// Radii returns the effective radii for playerID.
func (s *SettingsService) Radii(ctx context.Context, playerID string) (Radii, error) {
	global, err := s.Global(ctx)
	if err != nil {
		return Radii{}, err
	}
	prog, err := s.store.EnsureProgress(ctx, playerID)
	if err != nil {
		return Radii{}, fmt.Errorf("load progress: %w", err)
	}
	return resolveRadii(global, prog), nil
}

func resolveRadii(global Radii, prog *models.PlayerProgress) Radii {
	r := global
	if prog.DetectionRadius != nil {
		r.Detection = *prog.DetectionRadius
	}
	if prog.ClaimRadius != nil {
		r.Claim = *prog.ClaimRadius
	}
	// a global claim radius raised past an older personal detection radius
	// widens detection rather than hiding claimable nodes
	if r.Detection < r.Claim {
		r.Detection = r.Claim
	}
	return r
}

// SetDetectionRadius is the player-facing control. The claim radius is not
// player-tunable, so the new detection radius may not drop below it.
func (s *SettingsService) SetDetectionRadius(ctx context.Context, playerID string, meters float64) (RadiiResult, error) {
	global, err := s.Global(ctx)
	if err != nil {
		return RadiiResult{}, err
	}
	prog, err := s.store.EnsureProgress(ctx, playerID)
	if err != nil {
		return RadiiResult{}, fmt.Errorf("load progress: %w", err)
	}
	current := resolveRadii(global, prog)

	next := Radii{Detection: meters, Claim: current.Claim}
	if reason := s.ValidateRadii(next); reason != "" {
		return RadiiResult{Outcome: rejected("%s", reason), Radii: current}, nil
	}

	if err := s.store.SetPlayerRadii(ctx, playerID, &meters, prog.ClaimRadius); err != nil {
		return RadiiResult{}, fmt.Errorf("save radius: %w", err)
	}
	s.nudge(playerID)
	return RadiiResult{Outcome: applied("Detection radius set to %.0fm", meters), Radii: next}, nil
}

// SetGlobal replaces the global radii.
func (s *SettingsService) SetGlobal(ctx context.Context, r Radii) (RadiiResult, error) {
	current, err := s.Global(ctx)
	if err != nil {
		return RadiiResult{}, err
	}
	if reason := s.ValidateRadii(r); reason != "" {
		return RadiiResult{Outcome: rejected("%s", reason), Radii: current}, nil
	}
	if err := s.store.SaveGlobalSettings(ctx, &models.GlobalSettings{
		DetectionRadius: r.Detection,
		ClaimRadius:     r.Claim,
	}); err != nil {
		return RadiiResult{}, fmt.Errorf("save global settings: %w", err)
	}
	s.nudge("")
	return RadiiResult{
		Outcome: applied("Global radii set: detection %.0fm, claim %.0fm", r.Detection, r.Claim),
		Radii:   r,
	}, nil
}

// SetPlayer overrides one player's radii. A nil value clears that override.
func (s *SettingsService) SetPlayer(ctx context.Context, playerID string, detection, claim *float64) (RadiiResult, error) {
	global, err := s.Global(ctx)
	if err != nil {
		return RadiiResult{}, err
	}
	prog, err := s.store.EnsureProgress(ctx, playerID)
	if err != nil {
		return RadiiResult{}, fmt.Errorf("load progress: %w", err)
	}
	current := resolveRadii(global, prog)

	next := global
	if detection != nil {
		next.Detection = *detection
	}
	if claim != nil {
		next.Claim = *claim
	}
	if reason := s.ValidateRadii(next); reason != "" {
		return RadiiResult{Outcome: rejected("%s", reason), Radii: current}, nil
	}

	if err := s.store.SetPlayerRadii(ctx, playerID, detection, claim); err != nil {
		return RadiiResult{}, fmt.Errorf("save player radii: %w", err)
	}
	s.nudge(playerID)
	return RadiiResult{
		Outcome: applied("Radii for %s set: detection %.0fm, claim %.0fm", playerID, next.Detection, next.Claim),
		Radii:   next,
	}, nil
}
