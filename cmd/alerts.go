package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elite-command/refinery/internal/model"
	"github.com/elite-command/refinery/internal/store"
)

var (
	alertCompany string
	alertStatus  string
	alertLevel   string
	alertLimit   int
	alertActor   string
	alertNotes   string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and work confidence threshold alerts",
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		alerts, err := env.Store.ListAlerts(ctx, store.AlertFilter{
			CompanyID: alertCompany,
			Status:    model.AlertStatus(alertStatus),
			Level:     model.Level(alertLevel),
			Limit:     alertLimit,
		})
		if err != nil {
			return err
		}

		for _, a := range alerts {
			fmt.Printf("%s  %-8s %-12s %s  %s\n",
				a.CreatedAt.Format("2006-01-02 15:04"), a.Level, a.Status, a.ID, a.Message)
		}
		fmt.Printf("%d alerts\n", len(alerts))
		return nil
	},
}

var alertAckCmd = &cobra.Command{
	Use:   "acknowledge <alert-id>",
	Short: "Acknowledge an active alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		a, err := env.Alerts.Acknowledge(ctx, args[0], alertActor)
		if err != nil {
			return err
		}
		fmt.Printf("alert %s: %s\n", a.ID, a.Status)
		return nil
	},
}

var alertResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Resolve an alert with optional notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		a, err := env.Alerts.Resolve(ctx, args[0], alertActor, alertNotes)
		if err != nil {
			return err
		}
		fmt.Printf("alert %s: %s\n", a.ID, a.Status)
		return nil
	},
}

func init() {
	alertListCmd.Flags().StringVar(&alertCompany, "company", "", "filter by company id")
	alertListCmd.Flags().StringVar(&alertStatus, "status", "", "filter by status")
	alertListCmd.Flags().StringVar(&alertLevel, "level", "", "filter by confidence level")
	alertListCmd.Flags().IntVar(&alertLimit, "limit", 0, "max alerts to return")
	alertsCmd.PersistentFlags().StringVar(&alertActor, "actor", "cli", "acting user")
	alertResolveCmd.Flags().StringVar(&alertNotes, "notes", "", "resolution notes")

	alertsCmd.AddCommand(alertListCmd, alertAckCmd, alertResolveCmd)
	rootCmd.AddCommand(alertsCmd)
}
