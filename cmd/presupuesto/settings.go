package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"presupuesto/internal/cli"
	"presupuesto/internal/core"
)

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change application settings",
	}
	cmd.AddCommand(settingsGetCmd(), settingsSetCmd())
	return cmd
}

func settingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show settings",
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			s, err := app.Budget.Users.Settings(ctx)
			if err != nil {
				return err
			}
			printSettings(cmd, s)
			return nil
		}),
	}
}

func settingsSetCmd() *cobra.Command {
	var (
		currency, dateFormat, language, limit string
		alerts, reminders, reports            bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings",
		Long: `Change settings. Only the flags given are changed.

Examples:
  presupuesto settings set --currency USD --budget-alerts=false`,
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			s, err := app.Budget.Users.Settings(ctx)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("currency") {
				s.Currency = currency
			}
			if flags.Changed("date-format") {
				s.DateFormat = dateFormat
			}
			if flags.Changed("language") {
				s.Language = language
			}
			if flags.Changed("monthly-limit") {
				m, err := core.ParseMoney(limit)
				if err != nil {
					return err
				}
				s.MonthlyBudgetLimit = &m
			}
			if flags.Changed("budget-alerts") {
				s.BudgetAlerts = alerts
			}
			if flags.Changed("transaction-reminders") {
				s.TransactionReminders = reminders
			}
			if flags.Changed("weekly-reports") {
				s.WeeklyReports = reports
			}
			updated, err := app.Budget.Users.UpdateSettings(ctx, *s)
			if err != nil {
				return err
			}
			success(cmd, "Settings saved")
			printSettings(cmd, updated)
			return nil
		}),
	}
	cmd.Flags().StringVar(&currency, "currency", "", "Currency code")
	cmd.Flags().StringVar(&dateFormat, "date-format", "", "Date format")
	cmd.Flags().StringVar(&language, "language", "", "Language")
	cmd.Flags().StringVar(&limit, "monthly-limit", "", "Monthly budget limit")
	cmd.Flags().BoolVar(&alerts, "budget-alerts", true, "Budget alerts")
	cmd.Flags().BoolVar(&reminders, "transaction-reminders", false, "Transaction reminders")
	cmd.Flags().BoolVar(&reports, "weekly-reports", false, "Weekly reports")
	return cmd
}

func printSettings(cmd *cobra.Command, s *core.Settings) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "currency:              %s\n", s.Currency)
	fmt.Fprintf(out, "date format:           %s\n", s.DateFormat)
	fmt.Fprintf(out, "language:              %s\n", s.Language)
	if s.MonthlyBudgetLimit != nil {
		fmt.Fprintf(out, "monthly limit:         %s\n", *s.MonthlyBudgetLimit)
	}
	fmt.Fprintf(out, "budget alerts:         %t\n", s.BudgetAlerts)
	fmt.Fprintf(out, "transaction reminders: %t\n", s.TransactionReminders)
	fmt.Fprintf(out, "weekly reports:        %t\n", s.WeeklyReports)
}
