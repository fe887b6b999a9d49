package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"presupuesto/internal/amqp"
	"presupuesto/internal/api"
	"presupuesto/internal/auth"
	"presupuesto/internal/budget"
	"presupuesto/internal/cache"
	"presupuesto/internal/config"
	"presupuesto/internal/identity/google"
	"presupuesto/internal/log"
	"presupuesto/internal/metrics"
	"presupuesto/internal/session"
	"presupuesto/internal/storage"
)

const cacheCleanupInterval = 5 * time.Minute

// App is the wired client. Google and Events are nil when not configured.
type App struct {
	Config *config.Config
	Logger *log.Logger

	Store     storage.Backend
	Ephemeral *cache.Ephemeral
	Slot      *session.TokenSlot
	Navigator *Navigator

	State  *auth.State
	Gate   *auth.ExchangeGate
	Auth   *auth.Authenticator
	Logout *auth.Coordinator

	API    *api.Client
	Budget *budget.Client

	Google *google.Provider
	Events *amqp.Client

	Registry *prometheus.Registry
	Metrics  metrics.Recorder

	caches  *cache.Manager
	cleanup storage.CleanupFunc
}

// AppOption adjusts NewApp
type AppOption func(*appOptions)

type appOptions struct {
	backend    storage.Backend
	httpClient *http.Client
	prompt     google.Prompt
}

// WithBackend uses store instead of opening the configured backend.
func WithBackend(store storage.Backend) AppOption {
	return func(o *appOptions) { o.backend = store }
}

// WithAPIHTTPClient replaces the backend http.Client.
func WithAPIHTTPClient(hc *http.Client) AppOption {
	return func(o *appOptions) { o.httpClient = hc }
}

// WithPrompt sets how the Google authorization URL is shown.
func WithPrompt(out io.Writer) AppOption {
	return func(o *appOptions) {
		o.prompt = func(authURL string) {
			fmt.Fprintf(out, "Open this URL to sign in with Google:\n%s\n", authURL)
		}
	}
}

// NewApp opens the session backend and wires every layer over it.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger, opts ...AppOption) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = log.Discard()
	}

	app := &App{Config: cfg, Logger: logger}

	if o.backend != nil {
		app.Store = o.backend
	} else {
		res, err := storage.Open(ctx, storage.Config{
			Type:         storage.BackendType(cfg.SessionBackend),
			SQLiteDBPath: cfg.SQLiteDBPath,
			RedisAddr:    cfg.RedisAddr,
			RedisPrefix:  cfg.RedisPrefix,
		}, logger.WithComponent(log.ComponentStorage).Logger)
		if err != nil {
			return nil, err
		}
		app.Store = res.Backend
		app.cleanup = res.Cleanup
	}

	app.Registry = prometheus.NewRegistry()
	app.Metrics = metrics.NewCollector(app.Registry)

	app.Ephemeral = cache.NewEphemeral()
	app.caches = cache.NewManager(logger)
	app.caches.Register(app.Ephemeral)
	app.caches.StartCleanup(cacheCleanupInterval)

	app.Navigator = NewNavigator(app.Store, app.Ephemeral, logger)
	app.Slot = session.NewTokenSlot(app.Store, cfg.TokenMaxAge)

	stateOpts := []auth.StateOption{auth.WithLogger(logger)}
	if cfg.GoogleSignInEnabled() {
		app.Google = google.New(google.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectPort: cfg.OAuthRedirectPort,
			MaxAge:       cfg.TokenMaxAge,
		}, app.Store, app.Ephemeral, o.prompt, logger)
		stateOpts = append(stateOpts, auth.WithProvider(app.Google))
	}
	if cfg.AMQPURL != "" {
		events, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.WarnContext(ctx, "Session events disabled", log.FieldError, err)
		} else {
			app.Events = events
			stateOpts = append(stateOpts, auth.WithNotifier(events))
		}
	}
	app.State = auth.NewState(app.Slot, stateOpts...)

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	app.API = api.New(cfg.BackendURL,
		api.WithHTTPClient(httpClient),
		api.WithCredentials(app.State, app.Navigator, cfg.LandingRoute),
		api.WithRateLimit(cfg.RequestsPerSecond, cfg.RequestBurst),
		api.WithMetrics(app.Metrics),
		api.WithLogger(logger))
	app.Budget = budget.New(app.API)

	gateOpts := []auth.GateOption{auth.WithGateMetrics(app.Metrics), auth.WithGateLogger(logger)}
	if app.Google != nil {
		gateOpts = append(gateOpts, auth.WithSessionSaver(app.Google))
	}
	app.Gate = auth.NewExchangeGate(app.API, app.State, app.Navigator, cfg.AuthenticatedRoute, gateOpts...)
	app.Auth = auth.NewAuthenticator(app.API, app.State, app.Navigator, cfg.AuthenticatedRoute, logger)

	coordCfg := auth.CoordinatorConfig{
		State:        app.State,
		Store:        app.Store,
		KV:           app.Store,
		Ephemeral:    app.Ephemeral,
		Navigator:    app.Navigator,
		LandingRoute: cfg.LandingRoute,
		Metrics:      app.Metrics,
		Logger:       logger,
	}
	if app.Google != nil {
		coordCfg.Provider = app.Google
	}
	app.Logout = auth.NewCoordinator(coordCfg)

	return app, nil
}

// Observe reads the identity session, runs the exchange when one is due and
// recomputes the auth state. Every command calls it before doing anything
// else. An exchange failure is returned alongside the resulting state.
func (a *App) Observe(ctx context.Context) (auth.AuthState, error) {
	var identity *session.IdentitySession
	if a.Google != nil {
		id, err := a.Google.Session(ctx)
		if err != nil {
			a.Logger.WarnContext(ctx, "Identity session unavailable", log.FieldError, err)
		}
		identity = id
	}

	_, exchangeErr := a.Gate.Observe(ctx, identity)
	return a.State.Observe(ctx, identity, false), exchangeErr
}

// RequireAuth observes and fails unless the session is authenticated.
func (a *App) RequireAuth(ctx context.Context) (auth.AuthState, error) {
	st, err := a.Observe(ctx)
	if err != nil {
		return st, err
	}
	if !st.IsAuthenticated {
		return st, ErrNotSignedIn
	}
	return st, nil
}

// ErrNotSignedIn is returned by commands that need a session.
var ErrNotSignedIn = errors.New("not signed in: run 'presupuesto login' first")

// SignInWithGoogle runs the Google flow and then the exchange.
func (a *App) SignInWithGoogle(ctx context.Context) (auth.AuthState, error) {
	if a.Google == nil {
		return auth.AuthState{}, google.ErrNotConfigured
	}
	if _, err := a.Google.SignIn(ctx); err != nil {
		return auth.AuthState{}, err
	}
	return a.Observe(ctx)
}

// Close releases the backend, the event bus and the cache sweeper.
func (a *App) Close() error {
	a.caches.Stop()
	var errs []error
	if a.Events != nil {
		errs = append(errs, a.Events.Close())
	}
	if a.cleanup != nil {
		errs = append(errs, a.cleanup())
	}
	return errors.Join(errs...)
}
