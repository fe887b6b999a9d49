package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"presupuesto/internal/api"
	"presupuesto/internal/log"
	"presupuesto/internal/metrics"
	"presupuesto/internal/session"
)

// GuardState tracks the exchange for one identity session instance.
type GuardState int

const (
	GuardNotStarted GuardState = iota
	GuardInFlight
	GuardCompleted
	GuardFailed
)

func (g GuardState) String() string {
	switch g {
	case GuardNotStarted:
		return "not_started"
	case GuardInFlight:
		return "in_flight"
	case GuardCompleted:
		return "completed"
	case GuardFailed:
		return "failed"
	default:
		return fmt.Sprintf("guard(%d)", int(g))
	}
}

const (
	exchangePath            = "/auth/google"
	exchangeFallbackMessage = "Error signing in with Google"
)

// ExchangeFailedError is returned when the backend refuses or cannot be
// reached. It never triggers a logout.
type ExchangeFailedError struct {
	Message string
	Err     error
}

func (e *ExchangeFailedError) Error() string {
	return "token exchange failed: " + e.Message
}

func (e *ExchangeFailedError) Unwrap() error {
	return e.Err
}

// SessionSaver persists the identity session once it carries a backend
// token.
type SessionSaver interface {
	SaveSession(ctx context.Context, s *session.IdentitySession) error
}

type exchangeRequest struct {
	Email     string `json:"email"`
	GoogleID  string `json:"googleId"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// ExchangeGate turns a fresh identity session into a backend token, once
// per identity session instance.
type ExchangeGate struct {
	mu     sync.Mutex
	guards map[string]GuardState

	client             *api.Client
	state              *State
	nav                Navigator
	saver              SessionSaver
	authenticatedRoute string
	metrics            metrics.Recorder
	logger             *log.Logger
}

// GateOption configures an ExchangeGate
type GateOption func(*ExchangeGate)

// WithSessionSaver persists the exchanged identity
func WithSessionSaver(s SessionSaver) GateOption {
	return func(g *ExchangeGate) { g.saver = s }
}

// WithGateMetrics sets the exchange recorder
func WithGateMetrics(r metrics.Recorder) GateOption {
	return func(g *ExchangeGate) { g.metrics = r }
}

// WithGateLogger sets the logger
func WithGateLogger(l *log.Logger) GateOption {
	return func(g *ExchangeGate) { g.logger = l }
}

// NewExchangeGate creates a gate that navigates to authenticatedRoute on
// success.
func NewExchangeGate(client *api.Client, state *State, nav Navigator, authenticatedRoute string, opts ...GateOption) *ExchangeGate {
	g := &ExchangeGate{
		guards:             make(map[string]GuardState),
		client:             client,
		state:              state,
		nav:                nav,
		authenticatedRoute: authenticatedRoute,
		metrics:            metrics.Nop{},
		logger:             log.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.WithComponent(log.ComponentExchange)
	return g
}

func guardKey(identity *session.IdentitySession) string {
	if identity.InstanceID != "" {
		return identity.InstanceID
	}
	return identity.ProviderSubjectID
}

// Guard returns the guard state for an identity session instance.
func (g *ExchangeGate) Guard(instanceID string) GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.guards[instanceID]
}

// trip moves the guard from NotStarted to InFlight. Only the caller that
// wins the transition may issue the request.
func (g *ExchangeGate) trip(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.guards[key] != GuardNotStarted {
		return false
	}
	g.guards[key] = GuardInFlight
	return true
}

func (g *ExchangeGate) settle(key string, st GuardState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.guards[key] = st
}

// Observe runs the exchange if identity is complete, has no backend token
// and its guard has not been tripped. started reports whether this call
// issued the request.
func (g *ExchangeGate) Observe(ctx context.Context, identity *session.IdentitySession) (started bool, err error) {
	if !identity.Exchangeable() {
		return false, nil
	}
	key := guardKey(identity)
	if !g.trip(key) {
		return false, nil
	}

	epoch := g.state.Epoch()
	logger := g.logger.With(log.FieldInstanceID, key, log.FieldEmail, identity.Email)
	logger.InfoContext(ctx, "Exchanging identity for backend token", log.FieldOperation, log.OpExchange)

	req := exchangeRequest{
		Email:     identity.Email,
		GoogleID:  identity.ProviderSubjectID,
		FirstName: identity.GivenName,
		LastName:  identity.FamilyName,
		Avatar:    identity.AvatarURL,
	}
	var resp tokenResponse
	err = g.client.Post(ctx, exchangePath, req, &resp,
		api.Anonymous(),
		api.WithoutSessionRecovery(),
		api.WithFallback(exchangeFallbackMessage))
	if err == nil && resp.AccessToken == "" {
		err = errors.New("exchange response carried no access token")
	}
	if err == nil {
		err = g.state.Establish(ctx, session.BearerToken{Value: resp.AccessToken, Source: session.SourceExchanged}, epoch)
	}
	if err != nil {
		g.settle(key, GuardFailed)
		g.metrics.RecordExchange(metrics.ExchangeFailure)
		msg := api.Message(err, exchangeFallbackMessage)
		if errors.Is(err, ErrSignInSuperseded) {
			msg = "Sign-in was cancelled by logout"
		}
		logger.WarnContext(ctx, "Token exchange failed", log.FieldError, err)
		return true, &ExchangeFailedError{Message: msg, Err: err}
	}

	if g.saver != nil {
		exchanged := *identity
		exchanged.BackendToken = resp.AccessToken
		if err := g.saver.SaveSession(ctx, &exchanged); err != nil {
			logger.WarnContext(ctx, "Failed to persist exchanged identity session", log.FieldError, err)
		}
	}

	g.settle(key, GuardCompleted)
	g.metrics.RecordExchange(metrics.ExchangeSuccess)
	logger.InfoContext(ctx, "Token exchange completed")

	if err := g.nav.Navigate(ctx, g.authenticatedRoute); err != nil {
		logger.WarnContext(ctx, "Failed to navigate after exchange", log.FieldRoute, g.authenticatedRoute, log.FieldError, err)
	}
	return true, nil
}
