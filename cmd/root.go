package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civistat/civistat/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "civistat",
	Short: "Versioned store for daily jurisdictional statistics",
	Long:  "Ingests daily statistics as immutable batches, reconciles partial edits against the latest visible state, and publishes resolved and rolled-up views.",
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
}
