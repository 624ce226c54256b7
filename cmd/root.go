// Package cmd holds the landmark-quest command line.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"landmark-quest/config"
	"landmark-quest/logger"
	"landmark-quest/repository"
)

var rootCmd = &cobra.Command{
	Use:   "landmark-quest",
	Short: "Proximity and claim engine for the landmark game",
	Long: `landmark-quest serves the node catalog, proximity evaluation, claims,
streaks and leaderboard behind the API gateway. Configuration is read from
the environment (and a .env file when present).`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and applies the logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func openStore(dsn string) (*repository.GormStore, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL environment variable not set")
	}
	db, err := repository.OpenPostgres(dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return repository.NewGormStore(db), nil
}
