package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"landmark-quest/handlers"
	"landmark-quest/logger"
	"landmark-quest/utils"
	"landmark-quest/workers"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background workers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.GameServiceToken == "" {
		return errors.New("GAME_SERVICE_TOKEN environment variable not set")
	}
	store, err := openStore(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	svc := newServices(cfg, store, clock)

	if err := svc.Catalog.Refresh(ctx); err != nil {
		logger.Warnf("⚠️  initial catalog load failed, will retry on first read: %v", err)
	}

	var exporter *workers.LeaderboardExporter
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2)
		if err != nil {
			return fmt.Errorf("initialize R2 client: %w", err)
		}
		exporter = workers.NewLeaderboardExporter(svc.Leaderboard, r2, clock, cfg.Game.LeaderboardLimit)
	} else {
		logger.Info("R2 not configured, leaderboard export disabled")
	}

	sched, err := workers.StartScheduler(cfg.Workers, clock, svc.Catalog, exporter)
	if err != nil {
		return err
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Warnf("scheduler shutdown: %v", err)
		}
	}()

	app := handlers.NewApp(handlers.AppConfig{
		GatewayToken:   cfg.GameServiceToken,
		AllowedOrigins: cfg.AllowedOrigins,
	}, svc)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Errorf("Server error: %v", err)
			stop()
		}
	}()

	logger.Infof("✅ Server running on http://localhost:%d", cfg.Port)
	logger.Infof("✅ Claim day boundary in %s", cfg.Game.Location)
	logger.Infof("✅ CORS configured for origins: %v", cfg.AllowedOrigins)

	<-ctx.Done()
	logger.Info("Shutting down server...")
	return app.ShutdownWithTimeout(10 * time.Second)
}
