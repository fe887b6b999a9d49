package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"presupuesto/internal/budget"
	"presupuesto/internal/cli"
	"presupuesto/internal/core"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage categories",
	}
	cmd.AddCommand(
		categoriesListCmd(),
		categoriesCreateCmd(),
		categoriesUpdateCmd(),
		categoriesDeleteCmd(),
		categoriesReactivateCmd(),
	)
	return cmd
}

func categoriesListCmd() *cobra.Command {
	var (
		txType, active string
		filters        budget.CategoryFilters
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			filters.Type = core.TransactionType(txType)
			if active != "" {
				b, err := strconv.ParseBool(active)
				if err != nil {
					return fmt.Errorf("invalid --active value %q", active)
				}
				filters.IsActive = &b
			}
			page, err := app.Budget.Categories.List(ctx, filters)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tACTIVE")
			for _, c := range page.Data {
				fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", c.ID, c.Name, c.Type, c.IsActive)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVar(&txType, "type", "", "income or expense")
	cmd.Flags().StringVar(&active, "active", "", "true or false; both when empty")
	cmd.Flags().StringVar(&filters.Name, "name", "", "Name contains")
	cmd.Flags().Int64Var(&filters.Page, "page", 1, "Page number")
	cmd.Flags().Int64Var(&filters.Limit, "limit", 50, "Page size")
	return cmd
}

func categoriesCreateCmd() *cobra.Command {
	var (
		txType string
		in     budget.CreateCategory
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a category",
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, _ []string, app *cli.App) error {
			in.Type = core.TransactionType(txType)
			c, err := app.Budget.Categories.Create(ctx, in)
			if err != nil {
				return err
			}
			success(cmd, "Category %d created", c.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "Name")
	cmd.Flags().StringVar(&in.Description, "description", "", "Description")
	cmd.Flags().StringVar(&txType, "type", string(core.Expense), "income or expense")
	return cmd
}

func categoriesUpdateCmd() *cobra.Command {
	var name, description, txType string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a category",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, args []string, app *cli.App) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var in budget.UpdateCategory
			if cmd.Flags().Changed("name") {
				in.Name = &name
			}
			if cmd.Flags().Changed("description") {
				in.Description = &description
			}
			if cmd.Flags().Changed("type") {
				t := core.TransactionType(txType)
				if err := t.Validate(); err != nil {
					return err
				}
				in.Type = &t
			}
			if _, err := app.Budget.Categories.Update(ctx, id, in); err != nil {
				return err
			}
			success(cmd, "Category %d updated", id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&txType, "type", "", "New type")
	return cmd
}

func categoriesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Deactivate a category",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, args []string, app *cli.App) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := app.Budget.Categories.Delete(ctx, id); err != nil {
				return err
			}
			success(cmd, "Category %d deactivated", id)
			return nil
		}),
	}
}

func categoriesReactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate <id>",
		Short: "Reactivate a category",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(ctx context.Context, cmd *cobra.Command, args []string, app *cli.App) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := app.Budget.Categories.Reactivate(ctx, id); err != nil {
				return err
			}
			success(cmd, "Category %d reactivated", id)
			return nil
		}),
	}
}
