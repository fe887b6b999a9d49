package budget

import (
	"context"
	"net/url"
	"strings"

	"presupuesto/internal/api"
	"presupuesto/internal/core"
)

const budgetsPath = "/budgets"

// Budgets wraps /budgets
type Budgets struct {
	client *api.Client
}

// BudgetInput is the create and replace payload
type BudgetInput struct {
	Name       string     `json:"name"`
	Amount     core.Money `json:"amount"`
	Period     string     `json:"period"`
	CategoryID int64      `json:"categoryId"`
}

// Validate checks the payload before it is sent
func (b BudgetInput) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return core.ErrEmptyName
	}
	return b.Amount.Validate()
}

// BudgetUpdate changes only the set fields
type BudgetUpdate struct {
	Name       *string     `json:"name,omitempty"`
	Amount     *core.Money `json:"amount,omitempty"`
	Period     *string     `json:"period,omitempty"`
	CategoryID *int64      `json:"categoryId,omitempty"`
}

// BudgetFilters narrows List
type BudgetFilters struct {
	Period     string
	CategoryID int64
}

// List returns budgets
func (b *Budgets) List(ctx context.Context, f BudgetFilters) ([]core.Budget, error) {
	q := url.Values{}
	setString(q, "period", f.Period)
	setInt(q, "categoryId", f.CategoryID)

	var out []core.Budget
	if err := b.client.Get(ctx, budgetsPath, &out,
		api.WithQuery(q),
		api.WithFallback("Error loading budgets")); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one budget
func (b *Budgets) Get(ctx context.Context, id int64) (*core.Budget, error) {
	var out core.Budget
	if err := b.client.Get(ctx, idPath(budgetsPath, id), &out, api.WithFallback("Error loading budget")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns spent and available amounts for a budget
func (b *Budgets) Status(ctx context.Context, id int64) (*core.BudgetStatus, error) {
	var out core.BudgetStatus
	if err := b.client.Get(ctx, idPath(budgetsPath, id, "status"), &out, api.WithFallback("Error loading budget status")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create adds a budget
func (b *Budgets) Create(ctx context.Context, in BudgetInput) (*core.Budget, error) {
	if err := in.Validate(); err != nil {
		return nil, &api.ValidationError{Message: err.Error()}
	}
	var out core.Budget
	if err := b.client.Post(ctx, budgetsPath, in, &out, api.WithFallback("Error creating budget")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update sends a PUT with the set fields
func (b *Budgets) Update(ctx context.Context, id int64, in BudgetUpdate) (*core.Budget, error) {
	var out core.Budget
	if err := b.client.Put(ctx, idPath(budgetsPath, id), in, &out, api.WithFallback("Error updating budget")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a budget
func (b *Budgets) Delete(ctx context.Context, id int64) error {
	return b.client.Delete(ctx, idPath(budgetsPath, id), nil, api.WithFallback("Error deleting budget"))
}
