package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"presupuesto/internal/budget"
	"presupuesto/internal/cli"
	"presupuesto/internal/core"
)

func budgetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budgets",
		Short: "Manage budgets",
	}
	cmd.AddCommand(
		budgetsListCmd(),
		budgetsStatusCmd(),
		budgetsCreateCmd(),
		budgetsUpdateCmd(),
		budgetsDeleteCmd(),
	)
	return cmd
}

func budgetsListCmd() *cobra.Command {
	var filters budget.BudgetFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List budgets",
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			budgets, err := app.Budget.Budgets.List(ctx, filters)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPERIOD\tAMOUNT\tCATEGORY")
			for _, b := range budgets {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", b.ID, b.Name, b.Period, b.Amount, b.Category.Name)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVar(&filters.Period, "period", "", "Period, e.g. monthly")
	cmd.Flags().Int64Var(&filters.CategoryID, "category", 0, "Category id")
	return cmd
}

func budgetsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show spent and available amounts",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, args []string, app *cli.App) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			st, err := app.Budget.Budgets.Status(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", st.Name, st.Period)
			fmt.Fprintf(out, "  budget:    %s\n", st.Amount)
			fmt.Fprintf(out, "  spent:     %s\n", st.Spent)
			fmt.Fprintf(out, "  available: %s\n", st.Available)
			return nil
		}),
	}
}

func budgetsCreateCmd() *cobra.Command {
	var (
		amount string
		in     budget.BudgetInput
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a budget",
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			m, err := core.ParseMoney(amount)
			if err != nil {
				return err
			}
			in.Amount = m
			b, err := app.Budget.Budgets.Create(ctx, in)
			if err != nil {
				return err
			}
			success(cmd, "Budget %d created", b.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "Name")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount")
	cmd.Flags().StringVar(&in.Period, "period", "monthly", "Period")
	cmd.Flags().Int64Var(&in.CategoryID, "category", 0, "Category id")
	return cmd
}

func budgetsUpdateCmd() *cobra.Command {
	var (
		name, amount, period string
		categoryID           int64
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a budget",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, args []string, app *cli.App) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var in budget.BudgetUpdate
			if cmd.Flags().Changed("name") {
				in.Name = &name
			}
			if cmd.Flags().Changed("amount") {
				m, err := core.ParseMoney(amount)
				if err != nil {
					return err
				}
				in.Amount = &m
			}
			if cmd.Flags().Changed("period") {
				in.Period = &period
			}
			if cmd.Flags().Changed("category") {
				in.CategoryID = &categoryID
			}
			if _, err := app.Budget.Budgets.Update(ctx, id, in); err != nil {
				return err
			}
			success(cmd, "Budget %d updated", id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&amount, "amount", "", "New amount")
	cmd.Flags().StringVar(&period, "period", "", "New period")
	cmd.Flags().Int64Var(&categoryID, "category", 0, "New category id")
	return cmd
}

func budgetsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a budget",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, args []string, app *cli.App) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := app.Budget.Budgets.Delete(ctx, id); err != nil {
				return err
			}
			success(cmd, "Budget %d deleted", id)
			return nil
		}),
	}
}
