// Package session holds the credential and identity model shared by the
// auth, transport and storage layers, and the persisted token slot.
package session

import (
	"context"
	"errors"
	"time"
)

// Source records how a bearer token was obtained.
type Source string

const (
	SourceManual    Source = "manual"
	SourceExchanged Source = "exchanged"
)

// Keys written by this client. Provider keys are purged on logout under
// both plain and secure-prefixed names.
const (
	TokenKey = "token"

	ProviderSessionKey  = "presupuesto.session-token"
	ProviderCSRFKey     = "presupuesto.csrf-token"
	ProviderCallbackKey = "presupuesto.callback-url"

	securePrefix = "__Secure-"
)

// RootPath is the path scope every entry is written under.
const RootPath = "/"

// PathScopes lists every path an entry may have been written with.
var PathScopes = []string{RootPath, ""}

// KnownKeys returns every key associated with the session subsystem.
func KnownKeys() []string {
	base := []string{ProviderSessionKey, ProviderCSRFKey, ProviderCallbackKey}
	keys := []string{TokenKey}
	for _, k := range base {
		keys = append(keys, k, securePrefix+k)
	}
	return keys
}

// IdentitySession is the third-party identity currently signed in, as seen by
// this client. BackendToken is set only once the exchange has completed for
// this instance.
type IdentitySession struct {
	InstanceID        string `json:"instance_id"`
	ProviderSubjectID string `json:"sub"`
	Email             string `json:"email"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	AvatarURL         string `json:"avatar_url,omitempty"`
	BackendToken      string `json:"backend_token,omitempty"`
}

// Exchangeable reports whether the identity is complete and still lacks a
// backend token.
func (s *IdentitySession) Exchangeable() bool {
	return s != nil && s.ProviderSubjectID != "" && s.Email != "" && s.BackendToken == ""
}

// BearerToken is the credential sent to the backend.
type BearerToken struct {
	Value    string    `json:"value"`
	Source   Source    `json:"source"`
	IssuedAt time.Time `json:"issued_at"`
}

// Age returns how long ago the token was issued.
func (t BearerToken) Age(now time.Time) time.Duration {
	if t.IssuedAt.IsZero() {
		return 0
	}
	return now.Sub(t.IssuedAt)
}

// Entry is one persisted key, scoped to a path and carrying an expiry.
type Entry struct {
	Name      string
	Value     string
	Path      string
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry. A zero expiry never
// expires.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is the durable, path-scoped key store that holds the token slot and
// the provider's session artifacts. Expired entries are never returned.
type Store interface {
	Get(ctx context.Context, name string) (Entry, bool, error)
	Set(ctx context.Context, e Entry) error
	Delete(ctx context.Context, name, path string) error
	Entries(ctx context.Context) ([]Entry, error)
}

// KV is the durable key-value store used for client preferences.
type KV interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
	Clear(ctx context.Context) error
}

var ErrEmptyName = errors.New("entry name cannot be empty")
