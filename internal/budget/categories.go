package budget

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"presupuesto/internal/api"
	"presupuesto/internal/core"
)

const categoriesPath = "/categories"

// Categories wraps /categories
type Categories struct {
	client *api.Client
}

// CreateCategory is the create payload
type CreateCategory struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Type        core.TransactionType `json:"type"`
}

// Validate checks the payload before it is sent
func (c CreateCategory) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return core.ErrEmptyName
	}
	return c.Type.Validate()
}

// UpdateCategory is a partial update
type UpdateCategory struct {
	Name        *string               `json:"name,omitempty"`
	Description *string               `json:"description,omitempty"`
	Type        *core.TransactionType `json:"type,omitempty"`
	IsActive    *bool                 `json:"isActive,omitempty"`
}

// CategoryFilters narrows List. A nil IsActive lists both states.
type CategoryFilters struct {
	Type     core.TransactionType
	IsActive *bool
	Page     int64
	Limit    int64
	Name     string
}

func (f CategoryFilters) query() url.Values {
	q := url.Values{}
	setString(q, "type", string(f.Type))
	if f.IsActive != nil {
		q.Set("isActive", strconv.FormatBool(*f.IsActive))
	}
	setInt(q, "page", f.Page)
	setInt(q, "limit", f.Limit)
	setString(q, "name", f.Name)
	return q
}

// List returns one page of categories
func (c *Categories) List(ctx context.Context, f CategoryFilters) (*core.Page[core.Category], error) {
	var out core.Page[core.Category]
	if err := c.client.Get(ctx, categoriesPath, &out,
		api.WithQuery(f.query()),
		api.WithFallback("Error loading categories")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns one category
func (c *Categories) Get(ctx context.Context, id int64) (*core.Category, error) {
	var out core.Category
	if err := c.client.Get(ctx, idPath(categoriesPath, id), &out, api.WithFallback("Error loading category")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create adds a category
func (c *Categories) Create(ctx context.Context, in CreateCategory) (*core.Category, error) {
	if err := in.Validate(); err != nil {
		return nil, &api.ValidationError{Message: err.Error()}
	}
	var out core.Category
	if err := c.client.Post(ctx, categoriesPath, in, &out, api.WithFallback("Error creating category")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update patches a category
func (c *Categories) Update(ctx context.Context, id int64, in UpdateCategory) (*core.Category, error) {
	var out core.Category
	if err := c.client.Patch(ctx, idPath(categoriesPath, id), in, &out, api.WithFallback("Error updating category")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete deactivates a category. The backend keeps it for history.
func (c *Categories) Delete(ctx context.Context, id int64) (*Deleted, error) {
	var out Deleted
	if err := c.client.Delete(ctx, idPath(categoriesPath, id), &out, api.WithFallback("Error deleting category")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reactivate marks a deactivated category active again
func (c *Categories) Reactivate(ctx context.Context, id int64) (*core.Category, error) {
	active := true
	var out core.Category
	if err := c.client.Patch(ctx, idPath(categoriesPath, id), UpdateCategory{IsActive: &active}, &out,
		api.WithFallback("Error reactivating category")); err != nil {
		return nil, err
	}
	return &out, nil
}
