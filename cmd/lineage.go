package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elite-command/refinery/internal/model"
)

var (
	lineageDirection string
	lineageDepth     int
)

var lineageCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Trace provenance of entries and records",
}

var lineageTraceCmd = &cobra.Command{
	Use:   "trace <event-id>",
	Short: "Walk an event's ancestry back to the source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		events, err := env.Recorder.Trace(ctx, args[0])
		if err != nil {
			return err
		}

		for i, e := range events {
			fmt.Printf("%*s%s  %s (%s -> %s)\n", i*2, "", e.Type, e.ID, e.SourceRef, e.OutputRef)
		}
		return nil
	},
}

var lineageGraphCmd = &cobra.Command{
	Use:   "graph <event-id>",
	Short: "Print the lineage graph around an event as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		depth := lineageDepth
		if depth == 0 {
			depth = cfg.Lineage.DefaultDepth
		}

		g, err := env.Recorder.Graph(ctx, args[0], model.GraphDirection(lineageDirection), depth)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	},
}

func init() {
	lineageGraphCmd.Flags().StringVar(&lineageDirection, "direction", string(model.DirectionFull), "upstream, downstream, or full")
	lineageGraphCmd.Flags().IntVar(&lineageDepth, "depth", 0, "max traversal depth (default from config)")
	lineageCmd.AddCommand(lineageTraceCmd, lineageGraphCmd)
	rootCmd.AddCommand(lineageCmd)
}
