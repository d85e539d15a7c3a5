package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	processEntryID   string
	processReprocess bool
	processLimit     int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the normalization pipeline over pending entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if processEntryID != "" {
			var entryErr error
			if processReprocess {
				_, entryErr = env.Pipeline.Reprocess(ctx, processEntryID)
			} else {
				_, entryErr = env.Pipeline.ProcessEntry(ctx, processEntryID)
			}
			if entryErr != nil {
				return entryErr
			}
			fmt.Printf("entry %s processed\n", processEntryID)
			return nil
		}

		limit := processLimit
		if limit == 0 {
			limit = cfg.Pipeline.BatchSize
		}

		sum, err := env.Pipeline.ProcessBatch(ctx, limit)
		if err != nil {
			return err
		}

		zap.L().Info("process complete",
			zap.Int("processed", sum.Processed),
			zap.Int("skipped", sum.Skipped),
			zap.Int("failed", sum.Failed))
		fmt.Printf("processed %d, skipped %d, failed %d\n", sum.Processed, sum.Skipped, sum.Failed)
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processEntryID, "entry", "", "process a single entry by id")
	processCmd.Flags().BoolVar(&processReprocess, "reprocess", false, "reset a terminal entry to pending and run it again")
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "max entries per batch (default from config)")
	rootCmd.AddCommand(processCmd)
}
