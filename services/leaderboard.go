package services

import (
	"context"
	"fmt"
	"sort"

	"landmark-quest/models"
	"landmark-quest/repository"
)

const anonymousName = "Anonymous"

type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	PlayerID       string `json:"player_id"`
	Username       string `json:"username"`
	TotalPoints    int64  `json:"total_points"`
	NodesClaimed   int    `json:"nodes_claimed"`
	ActivityStreak int    `json:"activity_streak"`
}

// Rank orders players by total points, then distinct nodes claimed, then
// player id. It does not modify its inputs.
func Rank(progress []models.PlayerProgress, claimCounts map[string]int) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(progress))
	for _, p := range progress {
		name := p.Username
		if name == "" {
			name = anonymousName
		}
		entries = append(entries, LeaderboardEntry{
			PlayerID:       p.ExternalUserID,
			Username:       name,
			TotalPoints:    p.TotalPoints,
			NodesClaimed:   claimCounts[p.ExternalUserID],
			ActivityStreak: p.ActivityStreak,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if a.NodesClaimed != b.NodesClaimed {
			return a.NodesClaimed > b.NodesClaimed
		}
		return a.PlayerID < b.PlayerID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

type LeaderboardService struct {
	store repository.Store
	limit int
}

func NewLeaderboardService(store repository.Store, defaultLimit int) *LeaderboardService {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &LeaderboardService{store: store, limit: defaultLimit}
}

// Top ranks every player from durable state and returns the first limit
// entries. limit <= 0 uses the configured default.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = s.limit
	}
	progress, err := s.store.ListProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	counts, err := s.store.CountClaimsByPlayer(ctx)
	if err != nil {
		return nil, fmt.Errorf("count claims: %w", err)
	}

	ranked := Rank(progress, counts)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}
