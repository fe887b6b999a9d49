package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"presupuesto/internal/cli"
	"presupuesto/internal/core"
)

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show totals, recent transactions and spending by category",
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			data, err := app.Budget.Dashboard.Load(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Income:   %s\n", data.Stats.TotalIncome)
			fmt.Fprintf(out, "Expenses: %s\n", data.Stats.TotalExpenses)
			fmt.Fprintf(out, "Balance:  %s\n\n", data.Stats.Balance)

			if shares := core.Shares(data.ExpensesByCategory); len(shares) > 0 {
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "CATEGORY\tAMOUNT\tSHARE")
				for _, s := range shares {
					fmt.Fprintf(w, "%s\t%s\t%.1f%%\n", s.Name, s.Amount, s.Percent)
				}
				w.Flush()
				fmt.Fprintln(out)
			}

			if len(data.RecentTransactions) > 0 {
				fmt.Fprintln(out, "Recent transactions")
				printTransactions(cmd, data.RecentTransactions)
			}
			return nil
		}),
	}
}
