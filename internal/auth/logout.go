package auth

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"presupuesto/internal/log"
	"presupuesto/internal/metrics"
	"presupuesto/internal/session"
)

// Ephemeral is the in-process store cleared on logout.
type Ephemeral interface {
	Clear()
}

// Coordinator runs the logout teardown. Concurrent calls while one is in
// progress return immediately.
type Coordinator struct {
	inProgress atomic.Bool

	state        *State
	provider     IdentityProvider
	store        session.Store
	kv           session.KV
	ephemeral    Ephemeral
	nav          Navigator
	landingRoute string
	metrics      metrics.Recorder
	logger       *log.Logger
}

// CoordinatorConfig wires a Coordinator. Provider, KV and Ephemeral are
// optional.
type CoordinatorConfig struct {
	State        *State
	Provider     IdentityProvider
	Store        session.Store
	KV           session.KV
	Ephemeral    Ephemeral
	Navigator    Navigator
	LandingRoute string
	Metrics      metrics.Recorder
	Logger       *log.Logger
}

// NewCoordinator creates a Coordinator
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	landing := cfg.LandingRoute
	if landing == "" {
		landing = "/"
	}
	return &Coordinator{
		state:        cfg.State,
		provider:     cfg.Provider,
		store:        cfg.Store,
		kv:           cfg.KV,
		ephemeral:    cfg.Ephemeral,
		nav:          cfg.Navigator,
		landingRoute: landing,
		metrics:      rec,
		logger:       logger.WithComponent(log.ComponentLogout),
	}
}

// InProgress reports whether a teardown is running.
func (c *Coordinator) InProgress() bool {
	return c.inProgress.Load()
}

// Logout tears down every trace of the session and always ends on the
// landing route. ran is false when another logout was already running.
// Errors from the intermediate steps are joined and returned after the
// final navigation.
func (c *Coordinator) Logout(ctx context.Context) (ran bool, err error) {
	if !c.inProgress.CompareAndSwap(false, true) {
		c.logger.DebugContext(ctx, "Logout already in progress, ignoring")
		return false, nil
	}
	defer c.inProgress.Store(false)

	c.logger.InfoContext(ctx, "Logging out", log.FieldOperation, log.OpLogout)
	identityActive := c.state.IdentityActive()

	var errs []error
	if err := c.state.Logout(ctx); err != nil {
		errs = append(errs, fmt.Errorf("auth state logout: %w", err))
	}

	// State.Logout only signs out when it has seen the identity; the
	// provider may still hold a session this process never observed.
	if !identityActive && c.provider != nil {
		if s, err := c.provider.Session(ctx); err == nil && s != nil {
			if err := c.provider.SignOut(ctx); err != nil {
				errs = append(errs, fmt.Errorf("provider sign-out: %w", err))
			}
		}
	}
	c.state.ForgetIdentity()

	if err := c.purgeKnownKeys(ctx); err != nil {
		errs = append(errs, err)
	}

	if c.kv != nil {
		if err := c.kv.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clear durable store: %w", err))
		}
	}
	if c.ephemeral != nil {
		c.ephemeral.Clear()
	}

	if joined := errors.Join(errs...); joined != nil {
		c.logger.WarnContext(ctx, "Logout completed with errors", log.FieldError, joined)
	}

	if c.nav != nil {
		if err := c.nav.Replace(ctx, c.landingRoute); err != nil {
			errs = append(errs, fmt.Errorf("navigate to landing: %w", err))
		}
	}
	c.metrics.RecordLogout()
	return true, errors.Join(errs...)
}

// purgeKnownKeys deletes every session key under every path it is stored
// with, plus the plain path scopes in case the listing missed one.
func (c *Coordinator) purgeKnownKeys(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	known := make(map[string]bool)
	for _, k := range session.KnownKeys() {
		known[k] = true
	}

	type target struct{ name, path string }
	targets := make(map[target]bool)
	for name := range known {
		for _, p := range session.PathScopes {
			targets[target{name, p}] = true
		}
	}

	var errs []error
	entries, err := c.store.Entries(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("list stored keys: %w", err))
	}
	for _, e := range entries {
		if known[e.Name] {
			targets[target{e.Name, e.Path}] = true
		}
	}

	for t := range targets {
		if err := c.store.Delete(ctx, t.name, t.path); err != nil {
			errs = append(errs, fmt.Errorf("delete %s (path %q): %w", t.name, t.path, err))
		}
	}
	c.logger.DebugContext(ctx, "Purged session keys", log.FieldOperation, log.OpPurge, "count", len(targets))
	return errors.Join(errs...)
}
