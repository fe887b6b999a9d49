// Package google is the Google sign-in identity source. It runs the OAuth2
// loopback flow, keeps the resulting identity session in the session store
// and ends it on sign-out.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"presupuesto/internal/cache"
	"presupuesto/internal/log"
	"presupuesto/internal/middleware/security"
	"presupuesto/internal/middleware/trace"
	"presupuesto/internal/session"
)

const (
	callbackPath   = "/callback"
	stateTTL       = 10 * time.Minute
	statePrefix    = "oauth_state:"
	defaultTimeout = 5 * time.Minute
)

var (
	ErrNotConfigured = errors.New("google sign-in is not configured")
	ErrStateMismatch = errors.New("oauth state mismatch")
	ErrTimeout       = errors.New("authorization timed out")
)

// Config holds the OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectPort string
	// Timeout bounds the wait for the browser callback (default: 5m)
	Timeout time.Duration
	// Endpoint overrides Google's OAuth endpoint
	Endpoint *oauth2.Endpoint
	// UserinfoEndpoint overrides the userinfo API base URL
	UserinfoEndpoint string
	// MaxAge is how long the stored identity session lives
	MaxAge time.Duration
}

// Prompt shows the authorization URL to the user.
type Prompt func(authURL string)

type Provider struct {
	config    Config
	oauth     *oauth2.Config
	store     session.Store
	ephemeral cache.Cache[string]
	prompt    Prompt
	logger    *log.Logger
	now       func() time.Time
}

// New creates a Provider. ephemeral holds the pending OAuth state.
func New(config Config, store session.Store, ephemeral cache.Cache[string], prompt Prompt, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.Discard()
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	endpoint := googleoauth.Endpoint
	if config.Endpoint != nil {
		endpoint = *config.Endpoint
	}
	return &Provider{
		config: config,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", oauth2api.UserinfoEmailScope, oauth2api.UserinfoProfileScope},
		},
		store:     store,
		ephemeral: ephemeral,
		prompt:    prompt,
		logger:    logger.WithComponent(log.ComponentIdentity),
		now:       time.Now,
	}
}

// Session returns the stored identity session, or nil when signed out.
func (p *Provider) Session(ctx context.Context) (*session.IdentitySession, error) {
	e, ok, err := p.store.Get(ctx, session.ProviderSessionKey)
	if err != nil {
		return nil, fmt.Errorf("read identity session: %w", err)
	}
	if !ok || e.Value == "" {
		return nil, nil
	}
	var s session.IdentitySession
	if err := json.Unmarshal([]byte(e.Value), &s); err != nil {
		p.logger.WarnContext(ctx, "Discarding unreadable identity session", log.FieldError, err)
		return nil, nil
	}
	return &s, nil
}

// SaveSession writes s under the provider session key.
func (p *Provider) SaveSession(ctx context.Context, s *session.IdentitySession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode identity session: %w", err)
	}
	return p.setEntry(ctx, session.ProviderSessionKey, string(raw), p.config.MaxAge)
}

// SignOut removes the provider's keys. It never touches the backend token.
func (p *Provider) SignOut(ctx context.Context) error {
	var errs []error
	for _, name := range []string{session.ProviderSessionKey, session.ProviderCSRFKey, session.ProviderCallbackKey} {
		for _, path := range session.PathScopes {
			if err := p.store.Delete(ctx, name, path); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	p.logger.InfoContext(ctx, "Identity session ended", log.FieldOperation, log.OpLogout)
	return nil
}

type callbackResult struct {
	identity *session.IdentitySession
	err      error
}

// SignIn runs the loopback authorization flow and stores the resulting
// identity session. The session has no backend token yet.
func (p *Provider) SignIn(ctx context.Context) (*session.IdentitySession, error) {
	if p.config.ClientID == "" || p.config.ClientSecret == "" {
		return nil, ErrNotConfigured
	}

	ln, err := net.Listen("tcp", "127.0.0.1:"+p.config.RedirectPort)
	if err != nil {
		return nil, fmt.Errorf("listen for callback: %w", err)
	}
	oauthCfg := *p.oauth
	oauthCfg.RedirectURL = fmt.Sprintf("http://%s%s", ln.Addr().String(), callbackPath)

	state := uuid.NewString()
	if err := p.rememberState(ctx, state, oauthCfg.RedirectURL); err != nil {
		ln.Close()
		return nil, err
	}

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           p.router(&oauthCfg, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := oauthCfg.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
	if p.prompt != nil {
		p.prompt(authURL)
	}

	select {
	case res := <-results:
		p.forgetState(ctx, state)
		if res.err != nil {
			return nil, res.err
		}
		if err := p.SaveSession(ctx, res.identity); err != nil {
			return nil, err
		}
		p.logger.InfoContext(ctx, "Google sign-in completed",
			log.FieldEmail, res.identity.Email,
			log.FieldInstanceID, res.identity.InstanceID)
		return res.identity, nil
	case <-time.After(p.config.Timeout):
		p.forgetState(ctx, state)
		return nil, ErrTimeout
	case <-ctx.Done():
		p.forgetState(ctx, state)
		return nil, ctx.Err()
	}
}

func (p *Provider) router(cfg *oauth2.Config, results chan<- callbackResult) http.Handler {
	r := chi.NewRouter()
	r.Use(trace.Middleware)
	r.Use(security.Headers(security.CallbackHeadersConfig()))
	r.Use(log.Middleware(p.logger))
	r.Use(log.RequestLogger)

	r.Get(callbackPath, func(w http.ResponseWriter, req *http.Request) {
		identity, err := p.handleCallback(req.Context(), cfg, req)
		if err != nil {
			http.Error(w, "Sign-in failed: "+err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
		}
		select {
		case results <- callbackResult{identity: identity, err: err}:
		default:
		}
	})
	return r
}

func (p *Provider) handleCallback(ctx context.Context, cfg *oauth2.Config, req *http.Request) (*session.IdentitySession, error) {
	q := req.URL.Query()
	if errStr := q.Get("error"); errStr != "" {
		return nil, fmt.Errorf("oauth error: %s", errStr)
	}
	if !p.validState(ctx, q.Get("state")) {
		return nil, ErrStateMismatch
	}
	code := q.Get("code")
	if code == "" {
		return nil, errors.New("missing authorization code")
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	info, err := p.fetchUserinfo(ctx, cfg.Client(ctx, tok))
	if err != nil {
		return nil, err
	}
	return identityFromUserinfo(info)
}

func (p *Provider) fetchUserinfo(ctx context.Context, client *http.Client) (*oauth2api.Userinfo, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.config.UserinfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(p.config.UserinfoEndpoint))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	return info, nil
}

func identityFromUserinfo(info *oauth2api.Userinfo) (*session.IdentitySession, error) {
	if info.Id == "" || info.Email == "" {
		return nil, errors.New("userinfo is missing id or email")
	}
	first, last := splitName(info.Name)
	if first == "" {
		first, last = info.GivenName, info.FamilyName
	}
	return &session.IdentitySession{
		InstanceID:        uuid.NewString(),
		ProviderSubjectID: info.Id,
		Email:             info.Email,
		GivenName:         first,
		FamilyName:        last,
		AvatarURL:         info.Picture,
	}, nil
}

// splitName takes the first word as the first name and the rest as the
// last name.
func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// rememberState records the pending state in the ephemeral cache and the
// store. The callback must match both.
func (p *Provider) rememberState(ctx context.Context, state, callbackURL string) error {
	p.ephemeral.Set(statePrefix+state, callbackURL)
	if err := p.setEntry(ctx, session.ProviderCSRFKey, state, stateTTL); err != nil {
		return err
	}
	return p.setEntry(ctx, session.ProviderCallbackKey, callbackURL, stateTTL)
}

func (p *Provider) validState(ctx context.Context, state string) bool {
	if state == "" {
		return false
	}
	if _, ok := p.ephemeral.Get(statePrefix + state); !ok {
		return false
	}
	e, ok, err := p.store.Get(ctx, session.ProviderCSRFKey)
	if err != nil || !ok {
		return false
	}
	return e.Value == state
}

func (p *Provider) forgetState(ctx context.Context, state string) {
	p.ephemeral.Delete(statePrefix + state)
	for _, name := range []string{session.ProviderCSRFKey, session.ProviderCallbackKey} {
		if err := p.store.Delete(ctx, name, session.RootPath); err != nil {
			p.logger.WarnContext(ctx, "Failed to clear OAuth state", log.FieldError, err)
		}
	}
}

func (p *Provider) setEntry(ctx context.Context, name, value string, ttl time.Duration) error {
	e := session.Entry{Name: name, Value: value, Path: session.RootPath}
	if ttl > 0 {
		e.ExpiresAt = p.now().Add(ttl)
	}
	if err := p.store.Set(ctx, e); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
