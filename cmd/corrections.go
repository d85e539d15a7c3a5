package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/elite-command/refinery/internal/correction"
	"github.com/elite-command/refinery/internal/model"
)

var (
	correctionField    string
	correctionReason   string
	correctionActor    string
	correctionCompany  string
	correctionStatus   string
	correctionImpact   string
	correctionWindowHr int
)

var correctionsCmd = &cobra.Command{
	Use:   "corrections",
	Short: "Manage the human correction workflow",
}

var correctionSubmitCmd = &cobra.Command{
	Use:   "submit <target-id> <type> <proposed-value>",
	Short: "Submit a correction for review",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := env.Corrections.Submit(ctx, correction.Submission{
			TargetID:      args[0],
			Type:          model.CorrectionType(args[1]),
			ProposedValue: args[2],
			Field:         correctionField,
			Reason:        correctionReason,
			SubmittedBy:   correctionActor,
			CompanyID:     correctionCompany,
		})
		if err != nil {
			return err
		}
		fmt.Printf("correction %s: %s (impact %s)\n", c.ID, c.Status, c.BusinessImpact)
		return nil
	},
}

// correctionLifecycleCmd builds the approve/reject/implement/revert commands,
// which differ only in the service call.
func correctionLifecycleCmd(use, short string, run func(*cobra.Command, string) (*model.Correction, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <correction-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := run(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("correction %s: %s\n", c.ID, c.Status)
			return nil
		},
	}
}

var correctionQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List corrections, most urgent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		items, err := env.Corrections.Queue(ctx, correction.Filter{
			CompanyID: correctionCompany,
			Status:    model.CorrectionStatus(correctionStatus),
			Impact:    model.Impact(correctionImpact),
		})
		if err != nil {
			return err
		}

		for _, c := range items {
			fmt.Printf("%s  %-26s %-12s %-6s %s\n",
				c.CreatedAt.Format("2006-01-02 15:04"), c.Type, c.Status, c.BusinessImpact, c.ID)
		}
		fmt.Printf("%d corrections\n", len(items))
		return nil
	},
}

var correctionImpactCmd = &cobra.Command{
	Use:   "impact <company-id>",
	Short: "Summarize correction activity by type over a window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Corrections.ImpactAnalysis(ctx, args[0],
			time.Duration(correctionWindowHr)*time.Hour)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

var (
	annotateType       string
	annotateTitle      string
	annotateVisibility string
	annotatePriority   int
	annotatePinned     bool
)

var correctionAnnotateCmd = &cobra.Command{
	Use:   "annotate <target-id> <content>",
	Short: "Attach a note to a data point",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		a, err := env.Corrections.Annotate(ctx, correction.AnnotationSpec{
			TargetID:   args[0],
			Content:    args[1],
			Type:       model.AnnotationType(annotateType),
			Title:      annotateTitle,
			Visibility: model.Visibility(annotateVisibility),
			Priority:   annotatePriority,
			Pinned:     annotatePinned,
			CreatedBy:  correctionActor,
		})
		if err != nil {
			return err
		}
		fmt.Printf("annotation %s on %s\n", a.ID, a.TargetID)
		return nil
	},
}

var correctionAnnotationsCmd = &cobra.Command{
	Use:   "annotations <target-id>",
	Short: "List live annotations for a data point",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		items, err := env.Corrections.Annotations(ctx, args[0])
		if err != nil {
			return err
		}
		for _, a := range items {
			pin := " "
			if a.Pinned {
				pin = "*"
			}
			fmt.Printf("%s %-10s %-20s %s\n", pin, a.Type, a.Title, a.Content)
		}
		fmt.Printf("%d annotations\n", len(items))
		return nil
	},
}

func init() {
	correctionSubmitCmd.Flags().StringVar(&correctionField, "field", "", "field the correction targets")
	correctionSubmitCmd.Flags().StringVar(&correctionReason, "reason", "", "why the value is wrong")
	correctionSubmitCmd.Flags().StringVar(&correctionCompany, "company", "", "company scope when the target does not exist yet")
	correctionsCmd.PersistentFlags().StringVar(&correctionActor, "actor", "cli", "acting user")

	approveCmd := correctionLifecycleCmd("approve", "Approve a pending correction",
		func(cmd *cobra.Command, id string) (*model.Correction, error) {
			env, err := initEnv(cmd.Context())
			if err != nil {
				return nil, err
			}
			defer env.Close()
			return env.Corrections.Approve(cmd.Context(), id, correctionActor)
		})
	rejectCmd := correctionLifecycleCmd("reject", "Reject a pending correction",
		func(cmd *cobra.Command, id string) (*model.Correction, error) {
			env, err := initEnv(cmd.Context())
			if err != nil {
				return nil, err
			}
			defer env.Close()
			return env.Corrections.Reject(cmd.Context(), id, correctionActor, correctionReason)
		})
	rejectCmd.Flags().StringVar(&correctionReason, "reason", "", "rejection reason")
	implementCmd := correctionLifecycleCmd("implement", "Apply an approved correction",
		func(cmd *cobra.Command, id string) (*model.Correction, error) {
			env, err := initEnv(cmd.Context())
			if err != nil {
				return nil, err
			}
			defer env.Close()
			return env.Corrections.Implement(cmd.Context(), id, correctionActor)
		})
	revertCmd := correctionLifecycleCmd("revert", "Restore an implemented correction's snapshot",
		func(cmd *cobra.Command, id string) (*model.Correction, error) {
			env, err := initEnv(cmd.Context())
			if err != nil {
				return nil, err
			}
			defer env.Close()
			return env.Corrections.Revert(cmd.Context(), id, correctionActor)
		})

	correctionQueueCmd.Flags().StringVar(&correctionCompany, "company", "", "filter by company id")
	correctionQueueCmd.Flags().StringVar(&correctionStatus, "status", "", "filter by status")
	correctionQueueCmd.Flags().StringVar(&correctionImpact, "impact", "", "filter by business impact")
	correctionImpactCmd.Flags().IntVar(&correctionWindowHr, "window", 24, "analysis window in hours")

	correctionAnnotateCmd.Flags().StringVar(&annotateType, "type", "context", "annotation type")
	correctionAnnotateCmd.Flags().StringVar(&annotateTitle, "title", "", "short title")
	correctionAnnotateCmd.Flags().StringVar(&annotateVisibility, "visibility", "", "private, team, or company")
	correctionAnnotateCmd.Flags().IntVar(&annotatePriority, "priority", 0, "sort priority, higher first")
	correctionAnnotateCmd.Flags().BoolVar(&annotatePinned, "pinned", false, "pin above unpinned annotations")

	correctionsCmd.AddCommand(correctionSubmitCmd, approveCmd, rejectCmd,
		implementCmd, revertCmd, correctionQueueCmd, correctionImpactCmd,
		correctionAnnotateCmd, correctionAnnotationsCmd)
	rootCmd.AddCommand(correctionsCmd)
}
