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

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "Manage transactions",
	}
	cmd.AddCommand(
		transactionsListCmd(),
		transactionsCreateCmd(),
		transactionsGetCmd(),
		transactionsUpdateCmd(),
		transactionsDeleteCmd(),
	)
	return cmd
}

func transactionsListCmd() *cobra.Command {
	var (
		txType, start, end string
		filters             budget.TransactionFilters
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			filters.Type = core.TransactionType(txType)
			var err error
			if filters.StartDate, err = optionalDate(start); err != nil {
				return err
			}
			if filters.EndDate, err = optionalDate(end); err != nil {
				return err
			}
			page, err := app.Budget.Transactions.List(ctx, filters)
			if err != nil {
				return err
			}
			printTransactions(cmd, page.Data)
			fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d total)\n", page.Page, page.LastPage, page.Total)
			return nil
		}),
	}
	cmd.Flags().StringVar(&txType, "type", "", "income or expense")
	cmd.Flags().Int64Var(&filters.CategoryID, "category", 0, "Category id")
	cmd.Flags().StringVar(&start, "from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "to", "", "End date (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&filters.Page, "page", 1, "Page number")
	cmd.Flags().Int64Var(&filters.Limit, "limit", 20, "Page size")
	return cmd
}

func transactionsCreateCmd() *cobra.Command {
	var (
		amount, txType string
		in             budget.CreateTransaction
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a transaction",
		Long: `Record a transaction.

Examples:
  presupuesto transactions create --amount 12.50 --description Coffee --type expense --category 3`,
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			m, err := core.ParseMoney(amount)
			if err != nil {
				return err
			}
			in.Amount = m
			in.Type = core.TransactionType(txType)
			tx, err := app.Budget.Transactions.Create(ctx, in)
			if err != nil {
				return err
			}
			success(cmd, "Transaction %d recorded", tx.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&amount, "amount", "", "Amount, e.g. 12.50")
	cmd.Flags().StringVar(&in.Description, "description", "", "Description")
	cmd.Flags().StringVar(&txType, "type", string(core.Expense), "income or expense")
	cmd.Flags().Int64Var(&in.CategoryID, "category", 0, "Category id")
	return cmd
}

func transactionsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, args []string, app *cli.App) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			tx, err := app.Budget.Transactions.Get(ctx, id)
			if err != nil {
				return err
			}
			printTransactions(cmd, []core.Transaction{*tx})
			return nil
		}),
	}
}

func transactionsUpdateCmd() *cobra.Command {
	var (
		amount, description string
		categoryID          int64
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, args []string, app *cli.App) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var in budget.UpdateTransaction
			if cmd.Flags().Changed("amount") {
				m, err := core.ParseMoney(amount)
				if err != nil {
					return err
				}
				in.Amount = &m
			}
			if cmd.Flags().Changed("description") {
				in.Description = &description
			}
			if cmd.Flags().Changed("category") {
				in.CategoryID = &categoryID
			}
			if _, err := app.Budget.Transactions.Update(ctx, id, in); err != nil {
				return err
			}
			success(cmd, "Transaction %d updated", id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&amount, "amount", "", "New amount")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().Int64Var(&categoryID, "category", 0, "New category id")
	return cmd
}

func transactionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, args []string, app *cli.App) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := app.Budget.Transactions.Delete(ctx, id); err != nil {
				return err
			}
			success(cmd, "Transaction %d deleted", id)
			return nil
		}),
	}
}

func printTransactions(cmd *cobra.Command, txs []core.Transaction) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTYPE\tAMOUNT\tCATEGORY\tDESCRIPTION")
	for _, tx := range txs {
		date := ""
		if !tx.CreatedAt.IsZero() {
			date = tx.CreatedAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", tx.ID, date, tx.Type, tx.Amount, tx.Category.Name, tx.Description)
	}
	w.Flush()
}

func optionalDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}
