package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"landmark-quest/logger"
	"landmark-quest/services"
)

const LeaderboardObjectKey = "leaderboard/latest.json"

// Uploader stores a JSON document and returns its public URL.
type Uploader interface {
	UploadJSON(ctx context.Context, key string, v interface{}) (string, error)
}

type LeaderboardSnapshot struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	Entries     []services.LeaderboardEntry `json:"entries"`
}

// LeaderboardExporter publishes the ranked leaderboard as a static JSON object.
type LeaderboardExporter struct {
	board    *services.LeaderboardService
	uploader Uploader
	clock    clockwork.Clock
	limit    int
}

func NewLeaderboardExporter(board *services.LeaderboardService, uploader Uploader, clock clockwork.Clock, limit int) *LeaderboardExporter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LeaderboardExporter{board: board, uploader: uploader, clock: clock, limit: limit}
}

func (e *LeaderboardExporter) Export(ctx context.Context) (string, error) {
	entries, err := e.board.Top(ctx, e.limit)
	if err != nil {
		return "", fmt.Errorf("rank leaderboard: %w", err)
	}

	url, err := e.uploader.UploadJSON(ctx, LeaderboardObjectKey, LeaderboardSnapshot{
		GeneratedAt: e.clock.Now().UTC(),
		Entries:     entries,
	})
	if err != nil {
		return "", fmt.Errorf("upload leaderboard: %w", err)
	}

	logger.Infof("[EXPORT] ✅ leaderboard exported (%d entries) to %s", len(entries), url)
	return url, nil
}
