package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSlot is the single persisted bearer-token slot. Every write replaces
// the previous token.
type TokenSlot struct {
	store  Store
	maxAge time.Duration
	now    func() time.Time
}

// NewTokenSlot binds the slot to store. maxAge is both the storage expiry and
// the maximum token age accepted by the auth state.
func NewTokenSlot(store Store, maxAge time.Duration) *TokenSlot {
	return &TokenSlot{store: store, maxAge: maxAge, now: time.Now}
}

// WithClock overrides the time source.
func (s *TokenSlot) WithClock(now func() time.Time) *TokenSlot {
	s.now = now
	return s
}

// MaxAge returns the configured token lifetime.
func (s *TokenSlot) MaxAge() time.Duration {
	return s.maxAge
}

// Stale reports whether tok has reached the maximum age.
func (s *TokenSlot) Stale(tok BearerToken) bool {
	return s.maxAge > 0 && tok.Age(s.now()) >= s.maxAge
}

// Get returns the persisted token, if any.
func (s *TokenSlot) Get(ctx context.Context) (BearerToken, bool, error) {
	e, ok, err := s.store.Get(ctx, TokenKey)
	if err != nil {
		return BearerToken{}, false, fmt.Errorf("read token slot: %w", err)
	}
	if !ok || e.Value == "" {
		return BearerToken{}, false, nil
	}

	var tok BearerToken
	if err := json.Unmarshal([]byte(e.Value), &tok); err != nil || tok.Value == "" {
		// Bare token strings are accepted as manual tokens.
		tok = BearerToken{Value: e.Value, Source: SourceManual}
		if iat, ok := IssuedAt(e.Value); ok {
			tok.IssuedAt = iat
		}
	}
	return tok, true, nil
}

// Set writes tok into the slot with the configured expiry. A missing issue
// time is taken from the token's iat claim, else from the clock.
func (s *TokenSlot) Set(ctx context.Context, tok BearerToken) error {
	if tok.Value == "" {
		return errors.New("bearer token cannot be empty")
	}
	now := s.now()
	if tok.IssuedAt.IsZero() {
		if iat, ok := IssuedAt(tok.Value); ok {
			tok.IssuedAt = iat
		} else {
			tok.IssuedAt = now
		}
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := s.store.Set(ctx, Entry{
		Name:      TokenKey,
		Value:     string(raw),
		Path:      RootPath,
		ExpiresAt: now.Add(s.maxAge),
	}); err != nil {
		return fmt.Errorf("write token slot: %w", err)
	}
	return nil
}

// Clear removes the token under every path scope it may have been written.
func (s *TokenSlot) Clear(ctx context.Context) error {
	var errs []error
	for _, p := range PathScopes {
		if err := s.store.Delete(ctx, TokenKey, p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("clear token slot: %w", err)
	}
	return nil
}

func unverifiedClaims(raw string) (jwt.MapClaims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, false
	}
	return claims, true
}

// IssuedAt extracts the iat claim from a JWT without verifying it. The
// signature belongs to the backend; only the timestamp is needed here.
func IssuedAt(raw string) (time.Time, bool) {
	claims, ok := unverifiedClaims(raw)
	if !ok {
		return time.Time{}, false
	}
	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return time.Time{}, false
	}
	return iat.Time, true
}

// EmailClaim returns the email claim of a JWT, unverified.
func EmailClaim(raw string) (string, bool) {
	claims, ok := unverifiedClaims(raw)
	if !ok {
		return "", false
	}
	email, ok := claims["email"].(string)
	return email, ok && email != ""
}
