package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"landmark-quest/models"
	"landmark-quest/repository"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
)

// NodeProgress is one claimed node as shown to its player.
type NodeProgress struct {
	NodeID       string     `json:"node_id"`
	Streak       int        `json:"streak"`
	Multiplier   float64    `json:"multiplier"`
	LastClaimAt  *time.Time `json:"last_claim_at"`
	ClaimedToday bool       `json:"claimed_today"`
}

// PlayerSummary is the player's own view of their progress.
type PlayerSummary struct {
	PlayerID           string         `json:"player_id"`
	Username           string         `json:"username"`
	TotalPoints        int64          `json:"total_points"`
	ActivityStreak     int            `json:"activity_streak"`
	LastVisitAt        *time.Time     `json:"last_visit_at"`
	Nodes              []NodeProgress `json:"nodes"`
	Radii              Radii          `json:"radii"`
	UsernameChangeFrom *time.Time     `json:"username_change_available_at,omitempty"`
}

type UsernameResult struct {
	Outcome
	Username string `json:"username"`
}

type ProfileService struct {
	store    repository.Store
	settings *SettingsService
	policy   MultiplierPolicy
	clock    clockwork.Clock
	loc      *time.Location
	cooldown time.Duration
}

// NewProfileService shows multipliers from policy, which should be the claim
// engine's so progress matches what claims pay.
func NewProfileService(store repository.Store, settings *SettingsService, policy MultiplierPolicy, clock clockwork.Clock, loc *time.Location, cooldown time.Duration) *ProfileService {
	if policy.tiers == nil {
		policy = DefaultMultiplierPolicy
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ProfileService{
		store:    store,
		settings: settings,
		policy:   policy,
		clock:    clock,
		loc:      loc,
		cooldown: cooldown,
	}
}

// Progress returns the player's totals, streaks and claimed nodes.
func (s *ProfileService) Progress(ctx context.Context, playerID string) (PlayerSummary, error) {
	if playerID == "" {
		return PlayerSummary{}, ErrMissingPlayer
	}
	radii, err := s.settings.Radii(ctx, playerID)
	if err != nil {
		return PlayerSummary{}, err
	}
	prog, err := s.store.EnsureProgress(ctx, playerID)
	if err != nil {
		return PlayerSummary{}, fmt.Errorf("load progress: %w", err)
	}
	records, err := s.store.ListClaimRecords(ctx, playerID)
	if err != nil {
		return PlayerSummary{}, fmt.Errorf("list claims: %w", err)
	}

	now := s.clock.Now()
	out := PlayerSummary{
		PlayerID:       playerID,
		Username:       prog.Username,
		TotalPoints:    prog.TotalPoints,
		ActivityStreak: prog.ActivityStreak,
		LastVisitAt:    prog.LastVisitAt,
		Nodes:          make([]NodeProgress, 0, len(records)),
		Radii:          radii,
	}
	for _, rec := range records {
		out.Nodes = append(out.Nodes, NodeProgress{
			NodeID:       rec.NodeID,
			Streak:       rec.Streak,
			Multiplier:   s.policy.For(rec.Streak),
			LastClaimAt:  rec.LastClaimAt,
			ClaimedToday: rec.LastClaimAt != nil && SameDay(*rec.LastClaimAt, now, s.loc),
		})
	}
	if prog.LastUsernameChange != nil {
		next := prog.LastUsernameChange.Add(s.cooldown)
		if next.After(now) {
			out.UsernameChangeFrom = &next
		}
	}
	return out, nil
}

// NormalizeUsername trims and NFC-normalises raw and returns it with its
// case-folded uniqueness key.
func (s *ProfileService) NormalizeUsername(raw string) (name, key string) {
	name = strings.TrimSpace(norm.NFC.String(raw))
	// a Caser is stateful, so each call gets its own
	return name, cases.Fold().String(name)
}

// SetUsername changes the display name. Short names, names reserved by
// someone else (ignoring case) and changes inside the cooldown are rejected.
func (s *ProfileService) SetUsername(ctx context.Context, playerID, raw string) (UsernameResult, error) {
	if playerID == "" {
		return UsernameResult{}, ErrMissingPlayer
	}
	name, key := s.NormalizeUsername(raw)
	switch n := utf8.RuneCountInString(name); {
	case n < minUsernameLen:
		return UsernameResult{Outcome: rejected("Identity too short")}, nil
	case n > maxUsernameLen:
		return UsernameResult{Outcome: rejected("Identity too long (max %d characters)", maxUsernameLen)}, nil
	}

	prog, err := s.store.EnsureProgress(ctx, playerID)
	if err != nil {
		return UsernameResult{}, fmt.Errorf("load progress: %w", err)
	}
	if name == prog.Username {
		return UsernameResult{Outcome: rejected("Identity unchanged"), Username: prog.Username}, nil
	}

	now := s.clock.Now()
	if prog.LastUsernameChange != nil {
		if wait := prog.LastUsernameChange.Add(s.cooldown).Sub(now); wait > 0 {
			return UsernameResult{
				Outcome:  rejected("Identity locked for another %s", wait.Round(time.Minute)),
				Username: prog.Username,
			}, nil
		}
	}

	owner, err := s.store.FindByUsernameKey(ctx, key)
	switch {
	case err == nil && owner.ExternalUserID != playerID:
		return UsernameResult{Outcome: rejected("Identity already reserved"), Username: prog.Username}, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return UsernameResult{}, fmt.Errorf("check username: %w", err)
	}

	if err := s.store.SetUsername(ctx, playerID, name, key, &now); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return UsernameResult{Outcome: rejected("Identity already reserved"), Username: prog.Username}, nil
		}
		return UsernameResult{}, fmt.Errorf("save username: %w", err)
	}
	return UsernameResult{Outcome: applied("Identity Synchronized"), Username: name}, nil
}

// ResetCooldown lets the player change their name again immediately.
func (s *ProfileService) ResetCooldown(ctx context.Context, playerID string) (Outcome, error) {
	if err := s.store.ClearUsernameChange(ctx, playerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return rejected("Player %s not found", playerID), nil
		}
		return Outcome{}, fmt.Errorf("reset cooldown: %w", err)
	}
	return applied("Cooldown Bypassed"), nil
}

type ClaimHistory struct {
	Events []models.ClaimEvent `json:"events"`
	Total  int64               `json:"total"`
	Page   int                 `json:"page"`
	Size   int                 `json:"size"`
}

// History pages through the player's award ledger, newest first.
func (s *ProfileService) History(ctx context.Context, playerID string, page, size int) (ClaimHistory, error) {
	if playerID == "" {
		return ClaimHistory{}, ErrMissingPlayer
	}
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	events, total, err := s.store.PageClaimEvents(ctx, playerID, (page-1)*size, size)
	if err != nil {
		return ClaimHistory{}, fmt.Errorf("list claim history: %w", err)
	}
	if events == nil {
		events = []models.ClaimEvent{}
	}
	return ClaimHistory{Events: events, Total: total, Page: page, Size: size}, nil
}
