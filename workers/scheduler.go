package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"landmark-quest/config"
	"landmark-quest/logger"
	"landmark-quest/services"
)

const jobTimeout = 30 * time.Second

// StartScheduler runs the background jobs: a periodic catalog refresh, and
// the leaderboard export when an exporter is configured. Call Shutdown on the
// returned scheduler when the server stops.
func StartScheduler(cfg config.WorkersConfig, clock clockwork.Clock, catalog *services.CatalogService, exporter *LeaderboardExporter) (gocron.Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	// Every few minutes: pick up catalog rows changed outside this process
	if _, err := sched.NewJob(
		gocron.DurationJob(cfg.CatalogRefreshInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if err := catalog.Refresh(ctx); err != nil {
				logger.Errorf("[Scheduler] catalog refresh failed: %v", err)
			}
		}),
		gocron.WithName("catalog-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule catalog refresh: %w", err)
	}

	if exporter != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.LeaderboardExportInterval),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
				defer cancel()
				if _, err := exporter.Export(ctx); err != nil {
					logger.Errorf("[Scheduler] leaderboard export failed: %v", err)
				}
			}),
			gocron.WithName("leaderboard-export"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("schedule leaderboard export: %w", err)
		}
	}

	sched.Start()
	return sched, nil
}
