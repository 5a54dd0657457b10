package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgehaul/ticketflow/internal/config"
)

var cfg *config.Config

// exitCode carries the process exit code out of RunE so deferred cleanup
// and PersistentPostRun still fire before main exits.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "ticketflow",
	Short: "Scanned haul-ticket resolution and batch orchestration",
	Long:  "Extracts fields from scanned material-haul tickets, resolves them by source precedence, detects duplicates, enforces manifest compliance, and routes anomalies to a review queue.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}
