package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"presupuesto/internal/api"
	"presupuesto/internal/auth"
	"presupuesto/internal/cache"
	"presupuesto/internal/config"
	"presupuesto/internal/session"
	"presupuesto/internal/storage/memory"
)

func testConfig(backendURL string) *config.Config {
	return &config.Config{
		BackendURL:               backendURL,
		HTTPTimeout:              5 * time.Second,
		RequestsPerSecond:        100,
		RequestBurst:             100,
		SessionBackend:           "memory",
		TokenMaxAge:              24 * time.Hour,
		LandingRoute:             "/",
		AuthenticatedRoute:       "/dashboard",
		NotificationPollInterval: time.Second,
	}
}

func newTestApp(t *testing.T, handler http.Handler) (*App, *memory.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := memory.New()
	app, err := NewApp(context.Background(), testConfig(srv.URL), nil, WithBackend(store))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app, store
}

func backendMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"manual-tok"}`)
	})
	mux.HandleFunc("GET /notifications/unread-count", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer manual-tok" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"message":"Unauthorized"}`)
			return
		}
		io.WriteString(w, `{"count":2}`)
	})
	mux.HandleFunc("GET /transactions/dashboard/stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	return mux
}

func TestAppStartsUnauthenticated(t *testing.T) {
	app, _ := newTestApp(t, backendMux())

	st, err := app.Observe(context.Background())
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if st.IsAuthenticated || st.Phase != auth.PhaseUnauthenticated {
		t.Errorf("state = %+v", st)
	}
	if _, err := app.RequireAuth(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("RequireAuth err = %v, want ErrNotSignedIn", err)
	}
	if app.Google != nil || app.Events != nil {
		t.Error("optional integrations should be off without configuration")
	}
}

func TestAppLoginThenAuthenticatedCall(t *testing.T) {
	app, _ := newTestApp(t, backendMux())
	ctx := context.Background()

	if err := app.Auth.Login(ctx, "ana@example.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got := app.Navigator.Route(ctx, ""); got != "/dashboard" {
		t.Errorf("route = %q, want /dashboard", got)
	}

	st, err := app.RequireAuth(ctx)
	if err != nil {
		t.Fatalf("RequireAuth: %v", err)
	}
	if st.Source != session.SourceManual {
		t.Errorf("source = %q", st.Source)
	}

	n, err := app.Budget.Notifications.UnreadCount(ctx)
	if err != nil || n != 2 {
		t.Errorf("UnreadCount = %d, %v", n, err)
	}
}

func TestAppRejectedTokenLandsOnLandingRoute(t *testing.T) {
	app, store := newTestApp(t, backendMux())
	ctx := context.Background()

	if err := app.Auth.Login(ctx, "ana@example.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	_, err := app.Budget.Dashboard.Stats(ctx)

	var authErr *api.AuthExpiredError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthExpiredError", err)
	}
	if _, ok, _ := store.Get(ctx, session.TokenKey); ok {
		t.Error("rejected token should be purged")
	}
	if got := app.Navigator.Route(ctx, ""); got != "/" {
		t.Errorf("route = %q, want /", got)
	}
	if st, _ := app.Observe(ctx); st.IsAuthenticated {
		t.Error("state should be unauthenticated after a 401")
	}
}

func TestAppLogout(t *testing.T) {
	app, store := newTestApp(t, backendMux())
	ctx := context.Background()

	if err := app.Auth.Login(ctx, "ana@example.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	_ = store.SetValue(ctx, "theme", "dark")

	ran, err := app.Logout.Logout(ctx)
	if !ran || err != nil {
		t.Fatalf("Logout = %v, %v", ran, err)
	}
	if entries, _ := store.Entries(ctx); len(entries) != 0 {
		t.Errorf("entries left after logout: %+v", entries)
	}
	if _, ok, _ := store.GetValue(ctx, "theme"); ok {
		t.Error("durable preferences should be cleared")
	}
	if got := app.Navigator.Route(ctx, ""); got != "/" {
		t.Errorf("route = %q, want /", got)
	}
	if st := app.State.CurrentState(); st.Phase != auth.PhaseForcedLogout {
		t.Errorf("phase = %v, want forced_logout", st.Phase)
	}
}

func TestAppPersistedTokenSurvivesRestart(t *testing.T) {
	mux := backendMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	store := memory.New()
	ctx := context.Background()

	first, err := NewApp(ctx, testConfig(srv.URL), nil, WithBackend(store))
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Auth.Login(ctx, "ana@example.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	_ = first.Close()

	second, err := NewApp(ctx, testConfig(srv.URL), nil, WithBackend(store))
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if _, err := second.RequireAuth(ctx); err != nil {
		t.Errorf("RequireAuth after restart: %v", err)
	}
}

func TestAppRejectedExchangedTokenStaysGoneAfterRestart(t *testing.T) {
	srv := httptest.NewServer(backendMux())
	defer srv.Close()
	store := memory.New()
	ctx := context.Background()

	cfg := testConfig(srv.URL)
	cfg.GoogleClientID = "client-id"
	cfg.GoogleClientSecret = "client-secret"

	first, err := NewApp(ctx, cfg, nil, WithBackend(store))
	if err != nil {
		t.Fatal(err)
	}
	identity := &session.IdentitySession{
		InstanceID:        "inst-1",
		ProviderSubjectID: "g-123",
		Email:             "ana@example.com",
		BackendToken:      "google-tok",
	}
	if err := first.Google.SaveSession(ctx, identity); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if _, err := first.RequireAuth(ctx); err != nil {
		t.Fatalf("RequireAuth: %v", err)
	}

	_, err = first.Budget.Dashboard.Stats(ctx)
	var authErr *api.AuthExpiredError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthExpiredError", err)
	}
	if _, ok, _ := store.Get(ctx, session.ProviderSessionKey); ok {
		t.Error("identity session carrying the rejected token should be ended")
	}
	_ = first.Close()

	second, err := NewApp(ctx, cfg, nil, WithBackend(store))
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	st, err := second.Observe(ctx)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if st.IsAuthenticated {
		t.Error("rejected credential must not authenticate the next process")
	}
	if tok, ok := second.State.Token(ctx); ok {
		t.Errorf("token = %q, want none", tok)
	}
}

func TestSignInWithGoogleNotConfigured(t *testing.T) {
	app, _ := newTestApp(t, backendMux())
	if _, err := app.SignInWithGoogle(context.Background()); err == nil {
		t.Error("expected an error without Google credentials")
	}
}

func TestNavigator(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eph := cache.NewEphemeral()
	eph.Set("oauth_state:x", "1")
	nav := NewNavigator(store, eph, nil)

	if got := nav.Route(ctx, "/fallback"); got != "/fallback" {
		t.Errorf("Route = %q, want fallback", got)
	}
	if err := nav.Navigate(ctx, "/dashboard"); err != nil {
		t.Fatal(err)
	}
	if eph.Size() != 1 {
		t.Error("Navigate must keep in-process state")
	}
	if err := nav.Replace(ctx, "/"); err != nil {
		t.Fatal(err)
	}
	if eph.Size() != 0 {
		t.Error("Replace must drop in-process state")
	}
	if got := nav.Route(ctx, "/fallback"); got != "/" {
		t.Errorf("Route = %q, want /", got)
	}
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://api.example.com/")
	t.Setenv("SESSION_BACKEND", "memory")

	cfg, err := LoadAndValidateConfig()
	if err != nil {
		t.Fatalf("LoadAndValidateConfig: %v", err)
	}
	if cfg.BackendURL != "https://api.example.com" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}

	t.Setenv("SESSION_BACKEND", "postgres")
	if _, err := LoadAndValidateConfig(); err == nil {
		t.Error("expected validation error for unknown backend")
	}
}
