package cmd

import (
	"github.com/spf13/cobra"

	"landmark-quest/logger"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := openStore(cfg.DatabaseURL); err != nil {
			return err
		}
		logger.Info("✅ schema up to date")
		return nil
	},
}
