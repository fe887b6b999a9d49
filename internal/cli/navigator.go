package cli

import (
	"context"
	"fmt"

	"presupuesto/internal/log"
	"presupuesto/internal/session"
)

// RouteKey is the KV key holding the last route the client moved to.
const RouteKey = "route"

// Ephemeral is the in-process state a full navigation drops.
type Ephemeral interface {
	Clear()
}

// Navigator records route transitions in the durable KV so the next command
// starts where the last one left off.
type Navigator struct {
	kv        session.KV
	ephemeral Ephemeral
	logger    *log.Logger
}

func NewNavigator(kv session.KV, ephemeral Ephemeral, logger *log.Logger) *Navigator {
	if logger == nil {
		logger = log.Discard()
	}
	return &Navigator{kv: kv, ephemeral: ephemeral, logger: logger}
}

// Navigate is an in-app transition.
func (n *Navigator) Navigate(ctx context.Context, route string) error {
	if err := n.kv.SetValue(ctx, RouteKey, route); err != nil {
		return fmt.Errorf("record route: %w", err)
	}
	n.logger.DebugContext(ctx, "Navigated", log.FieldRoute, route)
	return nil
}

// Replace is a full navigation: in-process state is dropped first.
func (n *Navigator) Replace(ctx context.Context, route string) error {
	if n.ephemeral != nil {
		n.ephemeral.Clear()
	}
	if err := n.kv.SetValue(ctx, RouteKey, route); err != nil {
		return fmt.Errorf("record route: %w", err)
	}
	n.logger.InfoContext(ctx, "Redirected", log.FieldRoute, route)
	return nil
}

// Route returns the last recorded route, or fallback.
func (n *Navigator) Route(ctx context.Context, fallback string) string {
	route, ok, err := n.kv.GetValue(ctx, RouteKey)
	if err != nil || !ok || route == "" {
		return fallback
	}
	return route
}
