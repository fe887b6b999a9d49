// Package api is the authenticated transport to the budgeting backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"presupuesto/internal/log"
	"presupuesto/internal/metrics"
)

// Credentials supplies the bearer token and reacts to its rejection.
type Credentials interface {
	Token(ctx context.Context) (string, bool)
	// InvalidateCredential purges sent if it is still the stored credential
	// and reports whether this call is the first to see it rejected.
	InvalidateCredential(ctx context.Context, sent string) bool
}

// Redirector performs a full navigation to route.
type Redirector interface {
	Replace(ctx context.Context, route string) error
}

// Client sends requests to the backend and classifies every failure.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	creds        Credentials
	redirector   Redirector
	landingRoute string
	limiter      *rate.Limiter
	metrics      metrics.Recorder
	logger       *log.Logger
	structured   *log.StructuredLogger
	now          func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCredentials attaches a token source. On a 401 the credential is
// invalidated and the first observer navigates to landingRoute.
func WithCredentials(creds Credentials, redirector Redirector, landingRoute string) Option {
	return func(c *Client) {
		c.creds = creds
		c.redirector = redirector
		c.landingRoute = landingRoute
	}
}

// WithRateLimit throttles outbound requests client-side
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithMetrics sets the outcome recorder
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the backend at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		landingRoute: "/",
		metrics:      metrics.Nop{},
		logger:       log.Discard(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent(log.ComponentHTTP)
	c.structured = log.NewStructuredLogger(c.logger)
	return c
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

type requestConfig struct {
	query           url.Values
	fallback        string
	sessionRecovery bool
	authenticate    bool
}

// RequestOption adjusts a single request
type RequestOption func(*requestConfig)

// WithQuery appends query parameters
func WithQuery(q url.Values) RequestOption {
	return func(rc *requestConfig) { rc.query = q }
}

// WithFallback sets the message used when the backend gives none
func WithFallback(msg string) RequestOption {
	return func(rc *requestConfig) { rc.fallback = msg }
}

// WithoutSessionRecovery keeps a 401 from invalidating the stored
// credential. Sign-in endpoints use it: a rejected sign-in has nothing
// to log out of.
func WithoutSessionRecovery() RequestOption {
	return func(rc *requestConfig) { rc.sessionRecovery = false }
}

// Anonymous sends the request without an Authorization header
func Anonymous() RequestOption {
	return func(rc *requestConfig) { rc.authenticate = false }
}

// Get is shorthand for Do with GET
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post is shorthand for Do with POST
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

// Put is shorthand for Do with PUT
func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

// Patch is shorthand for Do with PATCH
func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, path, body, out, opts...)
}

// Delete is shorthand for Do with DELETE
func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do sends one request. body is JSON encoded when non-nil, and a 2xx
// response is decoded into out when out is non-nil. Any other outcome is
// returned as exactly one of the typed errors in this package.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	rc := requestConfig{
		fallback:        DefaultFallbackMessage,
		sessionRecovery: true,
		authenticate:    true,
	}
	for _, opt := range opts {
		opt(&rc)
	}

	start := c.now()
	err := c.do(ctx, method, path, body, out, rc)
	c.metrics.RecordRequest(KindOf(err), c.now().Sub(start))
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, rc requestConfig) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &GenericError{Message: rc.fallback, Err: err}
		}
	}

	target := c.baseURL + path
	if len(rc.query) > 0 {
		target += "?" + rc.query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &GenericError{Message: rc.fallback, Err: fmt.Errorf("encode request body: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &GenericError{Message: rc.fallback, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var sent string
	if rc.authenticate && c.creds != nil {
		if token, ok := c.creds.Token(ctx); ok {
			sent = token
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Backend request failed",
			log.FieldMethod, method, log.FieldPath, path, log.FieldError, err)
		return &GenericError{Message: rc.fallback, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.structured.LogHTTPEnd(ctx, method, path, resp.StatusCode, c.now().Sub(start).Milliseconds())
	if err != nil {
		return &GenericError{Status: resp.StatusCode, Message: rc.fallback, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return &GenericError{Status: resp.StatusCode, Message: rc.fallback, Err: fmt.Errorf("decode response body: %w", err)}
		}
		return nil
	}

	classified := classify(resp.StatusCode, resp.Header, data, rc.fallback, c.now())

	var authErr *AuthExpiredError
	if errors.As(classified, &authErr) && rc.sessionRecovery {
		c.recoverSession(ctx, sent)
	}

	var rateErr *RateLimitError
	if errors.As(classified, &rateErr) {
		c.logger.WarnContext(ctx, "Backend rate limit hit",
			log.FieldPath, path, log.FieldRetryAfter, rateErr.RetryAfter.String())
	}

	return classified
}

// recoverSession purges a rejected credential and sends the user to the
// landing route. Concurrent 401s for the same credential navigate once.
func (c *Client) recoverSession(ctx context.Context, sent string) {
	if c.creds == nil || sent == "" {
		return
	}
	if !c.creds.InvalidateCredential(ctx, sent) {
		return
	}
	c.logger.InfoContext(ctx, "Credential rejected by backend, session cleared",
		log.FieldOperation, log.OpInvalidate, log.FieldRoute, c.landingRoute)
	if c.redirector == nil {
		return
	}
	if err := c.redirector.Replace(ctx, c.landingRoute); err != nil {
		c.logger.WarnContext(ctx, "Failed to navigate after credential rejection",
			log.FieldRoute, c.landingRoute, log.FieldError, err)
	}
}
