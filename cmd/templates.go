package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/elite-command/refinery/internal/model"
	"github.com/elite-command/refinery/internal/template"
)

var assignActor string

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage normalization templates",
}

var templatesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install the stock templates for models without one",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := template.Seed(ctx, env.Store)
		if err != nil {
			return err
		}
		zap.L().Info("templates seeded", zap.Int("created", n))
		fmt.Printf("seeded %d templates\n", n)
		return nil
	},
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		templates, err := env.Store.ListTemplates(ctx)
		if err != nil {
			return err
		}

		for _, t := range templates {
			state := "inactive"
			if t.Active {
				state = "active"
			}
			fmt.Printf("%-12s v%-3s %-8s %-28s %s\n", t.BusinessModel, t.Version, state, t.Name, t.ID)
		}
		fmt.Printf("%d templates\n", len(templates))
		return nil
	},
}

var templatesAssignCmd = &cobra.Command{
	Use:   "assign <company-id> <template-id>",
	Short: "Manually assign a template to a company",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		assignment := &model.TemplateAssignment{
			CompanyID:  args[0],
			TemplateID: args[1],
			AssignedBy: assignActor,
			Automatic:  false,
			Confidence: 1.0,
			Active:     true,
		}
		if err := env.Store.SaveAssignment(ctx, assignment); err != nil {
			return err
		}
		env.Resolver.Invalidate(args[0])

		fmt.Printf("assigned template %s to company %s\n", args[1], args[0])
		return nil
	},
}

func init() {
	templatesAssignCmd.Flags().StringVar(&assignActor, "actor", "cli", "acting user")
	templatesCmd.AddCommand(templatesSeedCmd, templatesListCmd, templatesAssignCmd)
	rootCmd.AddCommand(templatesCmd)
}
