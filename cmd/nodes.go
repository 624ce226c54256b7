package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"landmark-quest/services"
)

func init() {
	rootCmd.AddCommand(nodesCmd)
	nodesCmd.AddCommand(nodesImportCmd)
}

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Manage the node catalog",
}

// ─── nodes import ───────────────────────────────────────────────────────────

var nodesImportCmd = &cobra.Command{
	Use:   "import FILE.toml",
	Short: "Upsert nodes from a TOML catalog file",
	Long: `Upsert every [[node]] table in FILE. Each node needs name, lat, lng and
points; its id is derived from the name. Re-importing a purged node restores it.

  [[node]]
  name   = "Brooklyn Bridge"
  lat    = 40.7061
  lng    = -73.9969
  points = 100`,
	Args: cobra.ExactArgs(1),
	RunE: runNodesImport,
}

func runNodesImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	store, err := openStore(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	catalog := services.NewCatalogService(store)
	n, err := catalog.Import(cmd.Context(), f)
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d node(s) from %s\n", n, args[0])
	if err != nil {
		return fmt.Errorf("some nodes were rejected:\n%w", err)
	}
	return nil
}
