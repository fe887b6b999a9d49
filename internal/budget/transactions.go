package budget

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"presupuesto/internal/api"
	"presupuesto/internal/core"
)

const transactionsPath = "/transactions"

// Transactions wraps /transactions
type Transactions struct {
	client *api.Client
}

// CreateTransaction is the create payload
type CreateTransaction struct {
	Amount      core.Money           `json:"amount"`
	Description string               `json:"description"`
	Type        core.TransactionType `json:"type"`
	CategoryID  int64                `json:"categoryId"`
}

// Validate checks the payload before it is sent
func (c CreateTransaction) Validate() error {
	if err := c.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Description) == "" {
		return core.ErrEmptyDescription
	}
	if len(c.Description) > 200 {
		return fmt.Errorf("description too long (max 200 characters)")
	}
	if err := c.Type.Validate(); err != nil {
		return err
	}
	if c.CategoryID <= 0 {
		return fmt.Errorf("category is required")
	}
	return nil
}

// UpdateTransaction is a partial update; nil fields are left unchanged
type UpdateTransaction struct {
	Amount      *core.Money `json:"amount,omitempty"`
	Description *string     `json:"description,omitempty"`
	CategoryID  *int64      `json:"categoryId,omitempty"`
}

// TransactionFilters narrows List
type TransactionFilters struct {
	Type       core.TransactionType
	CategoryID int64
	StartDate  core.Date
	EndDate    core.Date
	Page       int64
	Limit      int64
}

func (f TransactionFilters) query() url.Values {
	q := url.Values{}
	setString(q, "type", string(f.Type))
	setInt(q, "categoryId", f.CategoryID)
	setString(q, "startDate", f.StartDate.String())
	setString(q, "endDate", f.EndDate.String())
	setInt(q, "page", f.Page)
	setInt(q, "limit", f.Limit)
	return q
}

// Create records a transaction
func (t *Transactions) Create(ctx context.Context, in CreateTransaction) (*core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return nil, &api.ValidationError{Message: err.Error()}
	}
	var out core.Transaction
	if err := t.client.Post(ctx, transactionsPath, in, &out, api.WithFallback("Error creating transaction")); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns one page of transactions
func (t *Transactions) List(ctx context.Context, f TransactionFilters) (*core.Page[core.Transaction], error) {
	var out core.Page[core.Transaction]
	if err := t.client.Get(ctx, transactionsPath, &out,
		api.WithQuery(f.query()),
		api.WithFallback("Error loading transactions")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns one transaction
func (t *Transactions) Get(ctx context.Context, id int64) (*core.Transaction, error) {
	var out core.Transaction
	if err := t.client.Get(ctx, idPath(transactionsPath, id), &out, api.WithFallback("Error loading transaction")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update patches a transaction
func (t *Transactions) Update(ctx context.Context, id int64, in UpdateTransaction) (*core.Transaction, error) {
	if in.Amount != nil {
		if err := in.Amount.Validate(); err != nil {
			return nil, &api.ValidationError{Message: err.Error()}
		}
	}
	var out core.Transaction
	if err := t.client.Patch(ctx, idPath(transactionsPath, id), in, &out, api.WithFallback("Error updating transaction")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a transaction
func (t *Transactions) Delete(ctx context.Context, id int64) (*Deleted, error) {
	var out Deleted
	if err := t.client.Delete(ctx, idPath(transactionsPath, id), &out, api.WithFallback("Error deleting transaction")); err != nil {
		return nil, err
	}
	return &out, nil
}
