package auth

import (
	"context"
	"errors"

	"presupuesto/internal/api"
	"presupuesto/internal/log"
	"presupuesto/internal/session"
)

const (
	loginPath            = "/auth/login"
	registerPath         = "/users"
	loginFallbackMessage = "Error signing in"
	registerFallback     = "Error registering user"
)

// ErrPasswordMismatch is returned by Register before contacting the backend.
var ErrPasswordMismatch = errors.New("passwords do not match")

// RegisterRequest is the sign-up payload
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
	ConfirmPassword string `json:"-"`
}

// RegisteredUser is the backend's view of a new account
type RegisteredUser struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Authenticator performs email/password sign-in and sign-up.
type Authenticator struct {
	client             *api.Client
	state              *State
	nav                Navigator
	authenticatedRoute string
	logger             *log.Logger
}

// NewAuthenticator creates an Authenticator
func NewAuthenticator(client *api.Client, state *State, nav Navigator, authenticatedRoute string, logger *log.Logger) *Authenticator {
	if logger == nil {
		logger = log.Discard()
	}
	return &Authenticator{
		client:             client,
		state:              state,
		nav:                nav,
		authenticatedRoute: authenticatedRoute,
		logger:             logger.WithComponent(log.ComponentAuth),
	}
}

// Login exchanges credentials for a manual token, establishes it and
// navigates to the authenticated route.
func (a *Authenticator) Login(ctx context.Context, email, password string) error {
	epoch := a.state.Epoch()

	var resp tokenResponse
	err := a.client.Post(ctx, loginPath, loginRequest{Email: email, Password: password}, &resp,
		api.Anonymous(),
		api.WithoutSessionRecovery(),
		api.WithFallback(loginFallbackMessage))
	if err != nil {
		return err
	}
	if resp.AccessToken == "" {
		return &api.GenericError{Message: loginFallbackMessage, Err: errors.New("login response carried no access token")}
	}

	if err := a.state.Establish(ctx, session.BearerToken{Value: resp.AccessToken, Source: session.SourceManual}, epoch); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "Signed in", log.FieldOperation, log.OpLogin, log.FieldEmail, email)

	if err := a.nav.Navigate(ctx, a.authenticatedRoute); err != nil {
		a.logger.WarnContext(ctx, "Failed to navigate after sign-in", log.FieldRoute, a.authenticatedRoute, log.FieldError, err)
	}
	return nil
}

// Register creates a new account. It does not sign in.
func (a *Authenticator) Register(ctx context.Context, req RegisterRequest) (*RegisteredUser, error) {
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		return nil, ErrPasswordMismatch
	}

	var user RegisteredUser
	if err := a.client.Post(ctx, registerPath, req, &user,
		api.Anonymous(),
		api.WithoutSessionRecovery(),
		api.WithFallback(registerFallback)); err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "Registered account", log.FieldOperation, log.OpCreate, log.FieldEmail, req.Email)
	return &user, nil
}
