package budget

import (
	"context"

	"presupuesto/internal/api"
	"presupuesto/internal/core"
)

const settingsPath = "/users/settings"

// Default settings applied to fields the backend leaves empty
const (
	DefaultCurrency   = "GTQ"
	DefaultDateFormat = "DD/MM/YYYY"
	DefaultLanguage   = "es"
)

// Users wraps /users
type Users struct {
	client *api.Client
}

// Settings returns the user's application settings with defaults applied
func (u *Users) Settings(ctx context.Context) (*core.Settings, error) {
	var out core.Settings
	if err := u.client.Get(ctx, settingsPath, &out, api.WithFallback("Error loading settings")); err != nil {
		return nil, err
	}
	if out.Currency == "" {
		out.Currency = DefaultCurrency
	}
	if out.DateFormat == "" {
		out.DateFormat = DefaultDateFormat
	}
	if out.Language == "" {
		out.Language = DefaultLanguage
	}
	return &out, nil
}

// UpdateSettings replaces the user's application settings
func (u *Users) UpdateSettings(ctx context.Context, in core.Settings) (*core.Settings, error) {
	var out core.Settings
	if err := u.client.Patch(ctx, settingsPath, in, &out, api.WithFallback("Error saving settings")); err != nil {
		return nil, err
	}
	return &out, nil
}
