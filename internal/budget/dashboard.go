package budget

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"presupuesto/internal/api"
	"presupuesto/internal/core"
)

const dashboardPath = "/transactions/dashboard"

// Dashboard wraps the dashboard summary endpoints
type Dashboard struct {
	client *api.Client
}

// DashboardData is everything the dashboard shows
type DashboardData struct {
	Stats              core.DashboardStats
	RecentTransactions []core.Transaction
	ExpensesByCategory []core.ExpenseByCategory
}

// Stats returns income, expense and balance totals
func (d *Dashboard) Stats(ctx context.Context) (*core.DashboardStats, error) {
	var out core.DashboardStats
	if err := d.client.Get(ctx, dashboardPath+"/stats", &out, api.WithFallback("Could not load statistics")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Recent returns the latest transactions
func (d *Dashboard) Recent(ctx context.Context) ([]core.Transaction, error) {
	var out []core.Transaction
	if err := d.client.Get(ctx, dashboardPath+"/recent", &out, api.WithFallback("Could not load recent transactions")); err != nil {
		return nil, err
	}
	return out, nil
}

// ExpensesByCategory returns expense totals per category
func (d *Dashboard) ExpensesByCategory(ctx context.Context) ([]core.ExpenseByCategory, error) {
	var out []core.ExpenseByCategory
	if err := d.client.Get(ctx, dashboardPath+"/expenses-by-category", &out, api.WithFallback("Could not load expenses by category")); err != nil {
		return nil, err
	}
	return out, nil
}

// Load fetches the three dashboard sections concurrently. Any failure
// fails the whole load.
func (d *Dashboard) Load(ctx context.Context) (*DashboardData, error) {
	var data DashboardData
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := d.Stats(gctx)
		if err != nil {
			return err
		}
		data.Stats = *stats
		return nil
	})
	g.Go(func() error {
		recent, err := d.Recent(gctx)
		if err != nil {
			return err
		}
		data.RecentTransactions = recent
		return nil
	})
	g.Go(func() error {
		byCategory, err := d.ExpensesByCategory(gctx)
		if err != nil {
			return err
		}
		data.ExpensesByCategory = byCategory
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load dashboard: %w", err)
	}
	return &data, nil
}
