package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"presupuesto/internal/cache"
	"presupuesto/internal/session"
)

type logoutFixture struct {
	*fixture
	provider  *fakeProvider
	nav       *recordingNavigator
	ephemeral *cache.Ephemeral
	coord     *Coordinator
}

func newLogoutFixture(t *testing.T, provider *fakeProvider) *logoutFixture {
	t.Helper()
	f := newFixture(t, WithProvider(provider))
	nav := &recordingNavigator{}
	eph := cache.NewEphemeral()
	return &logoutFixture{
		fixture:   f,
		provider:  provider,
		nav:       nav,
		ephemeral: eph,
		coord: NewCoordinator(CoordinatorConfig{
			State:        f.state,
			Provider:     provider,
			Store:        f.store,
			KV:           f.store,
			Ephemeral:    eph,
			Navigator:    nav,
			LandingRoute: "/",
		}),
	}
}

func seedSession(t *testing.T, lf *logoutFixture) {
	t.Helper()
	ctx := context.Background()
	entries := []session.Entry{
		{Name: session.TokenKey, Value: "legacy", Path: ""},
		{Name: session.ProviderSessionKey, Value: "s", Path: "/"},
		{Name: "__Secure-" + session.ProviderSessionKey, Value: "s", Path: "/"},
		{Name: session.ProviderCSRFKey, Value: "c", Path: ""},
		{Name: session.ProviderCallbackKey, Value: "/register", Path: "/"},
		{Name: "theme", Value: "dark", Path: "/"},
	}
	for _, e := range entries {
		if err := lf.store.Set(ctx, e); err != nil {
			t.Fatalf("seed %s: %v", e.Name, err)
		}
	}
	_ = lf.store.SetValue(ctx, "dashboard.period", "monthly")
	lf.ephemeral.Set("notifications.seen", "1,2,3")

	identity := &session.IdentitySession{InstanceID: "i", ProviderSubjectID: "g", Email: "a@b.com", BackendToken: "tok-1"}
	lf.provider.identity = identity
	lf.state.Observe(ctx, identity, false)
}

func TestLogoutFullTeardown(t *testing.T) {
	ctx := context.Background()
	lf := newLogoutFixture(t, &fakeProvider{})
	seedSession(t, lf)

	ran, err := lf.coord.Logout(ctx)
	if !ran || err != nil {
		t.Fatalf("Logout = %v, %v", ran, err)
	}

	entries, _ := lf.store.Entries(ctx)
	if len(entries) != 1 || entries[0].Name != "theme" {
		t.Errorf("remaining entries = %+v, want only the unrelated key", entries)
	}
	if _, ok, _ := lf.store.GetValue(ctx, "dashboard.period"); ok {
		t.Error("durable KV should be cleared")
	}
	if lf.ephemeral.Size() != 0 {
		t.Error("ephemeral cache should be cleared")
	}
	if lf.provider.count() != 1 {
		t.Errorf("provider sign-outs = %d, want 1", lf.provider.count())
	}
	navs := lf.nav.all()
	if len(navs) != 1 || navs[0].route != "/" || !navs[0].replace {
		t.Errorf("navigations = %+v, want one Replace(/)", navs)
	}
	if _, ok := lf.state.Token(ctx); ok {
		t.Error("Token must be empty after logout")
	}
	if lf.coord.InProgress() {
		t.Error("in-progress flag should reset after completion")
	}
}

func TestLogoutIdempotent(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{block: make(chan struct{})}
	lf := newLogoutFixture(t, provider)
	seedSession(t, lf)

	var wg sync.WaitGroup
	results := make(chan bool, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		ran, _ := lf.coord.Logout(ctx)
		results <- ran
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !lf.coord.InProgress() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	ran, err := lf.coord.Logout(ctx)
	if ran || err != nil {
		t.Fatalf("second Logout = %v, %v; want no-op", ran, err)
	}

	close(provider.block)
	wg.Wait()
	if !<-results {
		t.Error("first Logout should have run")
	}
	if provider.count() != 1 {
		t.Errorf("provider sign-outs = %d, want 1", provider.count())
	}
	if n := len(lf.nav.all()); n != 1 {
		t.Errorf("navigations = %d, want 1", n)
	}
}

func TestLogoutFailsOpen(t *testing.T) {
	ctx := context.Background()
	lf := newLogoutFixture(t, &fakeProvider{err: errSignOut})
	seedSession(t, lf)

	ran, err := lf.coord.Logout(ctx)
	if !ran {
		t.Fatal("Logout should run")
	}
	if !errors.Is(err, errSignOut) {
		t.Errorf("err = %v, want provider error", err)
	}
	navs := lf.nav.all()
	if len(navs) != 1 || navs[0].route != "/" {
		t.Errorf("navigations = %+v, want landing despite failure", navs)
	}
	if entries, _ := lf.store.Entries(ctx); len(entries) != 1 {
		t.Errorf("purge should still run, remaining = %+v", entries)
	}
}

func TestLogoutSignsOutUnobservedProviderSession(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{identity: &session.IdentitySession{ProviderSubjectID: "g", Email: "e"}}
	lf := newLogoutFixture(t, provider)

	if _, err := lf.coord.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if provider.count() != 1 {
		t.Errorf("provider sign-outs = %d, want 1", provider.count())
	}
}

func TestLogoutWithoutProviderSession(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	lf := newLogoutFixture(t, provider)
	_ = lf.state.Establish(ctx, session.BearerToken{Value: "manual", Source: session.SourceManual}, 0)

	if _, err := lf.coord.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if provider.count() != 0 {
		t.Errorf("no identity session: sign-outs = %d, want 0", provider.count())
	}
	if _, ok := lf.storedToken(t); ok {
		t.Error("token should be purged")
	}
}
