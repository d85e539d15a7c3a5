package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/elite-command/refinery/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "refinery",
	Short: "Business-metric ingestion and confidence pipeline",
	Long:  "Ingests heterogeneous metric reports, normalizes them against business-model templates, scores every data point with an eight-factor confidence model, records lineage, and routes human corrections.",
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
