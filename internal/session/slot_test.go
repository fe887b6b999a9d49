package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"presupuesto/internal/session"
	"presupuesto/internal/storage/memory"
)

func signedToken(t *testing.T, iat time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"iat": iat.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestTokenSlotRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.New().WithClock(func() time.Time { return now })
	slot := session.NewTokenSlot(store, 60*24*time.Hour).WithClock(func() time.Time { return now })

	if err := slot.Set(ctx, session.BearerToken{Value: "tok-1", Source: session.SourceExchanged}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	tok, ok, err := slot.Get(ctx)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if tok.Value != "tok-1" || tok.Source != session.SourceExchanged {
		t.Errorf("unexpected token %+v", tok)
	}
	if !tok.IssuedAt.Equal(now) {
		t.Errorf("IssuedAt = %v, want %v", tok.IssuedAt, now)
	}

	e, _, _ := store.Get(ctx, session.TokenKey)
	if e.Path != session.RootPath {
		t.Errorf("Path = %q, want root", e.Path)
	}
	if want := now.Add(60 * 24 * time.Hour); !e.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", e.ExpiresAt, want)
	}
}

func TestTokenSlotUsesJWTIssuedAt(t *testing.T) {
	ctx := context.Background()
	iat := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	slot := session.NewTokenSlot(memory.New(), 24*time.Hour)

	raw := signedToken(t, iat)
	if err := slot.Set(ctx, session.BearerToken{Value: raw, Source: session.SourceManual}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tok, _, _ := slot.Get(ctx)
	if !tok.IssuedAt.Equal(iat) {
		t.Errorf("IssuedAt = %v, want %v", tok.IssuedAt, iat)
	}
}

func TestTokenSlotAcceptsBareValue(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.Set(ctx, session.Entry{Name: session.TokenKey, Value: "legacy", Path: ""})

	tok, ok, err := session.NewTokenSlot(store, time.Hour).Get(ctx)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if tok.Value != "legacy" || tok.Source != session.SourceManual {
		t.Errorf("unexpected token %+v", tok)
	}
}

func TestTokenSlotClearEveryPath(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, p := range session.PathScopes {
		_ = store.Set(ctx, session.Entry{Name: session.TokenKey, Value: "x", Path: p})
	}
	slot := session.NewTokenSlot(store, time.Hour)
	if err := slot.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := slot.Get(ctx); ok {
		t.Fatal("expected empty slot after Clear")
	}
}

func TestTokenSlotRejectsEmpty(t *testing.T) {
	if err := session.NewTokenSlot(memory.New(), time.Hour).Set(context.Background(), session.BearerToken{}); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestIssuedAtRejectsOpaqueTokens(t *testing.T) {
	if _, ok := session.IssuedAt("not-a-jwt"); ok {
		t.Fatal("expected opaque token to have no issued-at")
	}
}

func TestKnownKeysIncludeSecureVariants(t *testing.T) {
	keys := map[string]bool{}
	for _, k := range session.KnownKeys() {
		keys[k] = true
	}
	for _, want := range []string{
		session.TokenKey,
		session.ProviderSessionKey,
		"__Secure-" + session.ProviderSessionKey,
		session.ProviderCSRFKey,
		"__Secure-" + session.ProviderCallbackKey,
	} {
		if !keys[want] {
			t.Errorf("KnownKeys missing %q", want)
		}
	}
}

func TestIdentityExchangeable(t *testing.T) {
	tests := []struct {
		name string
		id   *session.IdentitySession
		want bool
	}{
		{"nil", nil, false},
		{"complete", &session.IdentitySession{ProviderSubjectID: "g-1", Email: "a@b.com"}, true},
		{"missing email", &session.IdentitySession{ProviderSubjectID: "g-1"}, false},
		{"already exchanged", &session.IdentitySession{ProviderSubjectID: "g-1", Email: "a@b.com", BackendToken: "t"}, false},
	}
	for _, tt := range tests {
		if got := tt.id.Exchangeable(); got != tt.want {
			t.Errorf("%s: Exchangeable() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTokenSlotStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	slot := session.NewTokenSlot(memory.New(), 24*time.Hour).WithClock(func() time.Time { return now })

	tests := []struct {
		name     string
		issuedAt time.Time
		want     bool
	}{
		{"fresh", now.Add(-time.Hour), false},
		{"exactly max age", now.Add(-24 * time.Hour), true},
		{"older", now.Add(-48 * time.Hour), true},
		{"unknown issue time", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := session.BearerToken{Value: "v", IssuedAt: tt.issuedAt}
			if got := slot.Stale(tok); got != tt.want {
				t.Errorf("Stale = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmailClaim(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "42",
		"email": "a@b.com",
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if email, ok := session.EmailClaim(tok); !ok || email != "a@b.com" {
		t.Errorf("EmailClaim = %q, %v", email, ok)
	}
	if _, ok := session.EmailClaim(signedToken(t, time.Now())); ok {
		t.Error("token without email claim should report false")
	}
	if _, ok := session.EmailClaim("opaque"); ok {
		t.Error("opaque token should report false")
	}
}
