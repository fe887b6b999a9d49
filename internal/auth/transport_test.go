package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"presupuesto/internal/api"
	"presupuesto/internal/session"
)

func TestUnauthorizedPurgesStoredTokenAndNavigatesOnce(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newFixture(t)
	nav := &recordingNavigator{}
	_ = f.state.Establish(ctx, session.BearerToken{Value: "tok-1", Source: session.SourceManual}, 0)
	client := api.New(srv.URL, api.WithCredentials(f.state, nav, "/"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.Get(ctx, "/transactions", nil)
			var authErr *api.AuthExpiredError
			if !errors.As(err, &authErr) {
				t.Errorf("err = %v, want AuthExpiredError", err)
			}
		}()
	}
	wg.Wait()

	if v, ok := f.storedToken(t); ok {
		t.Errorf("slot still holds %q", v)
	}
	navs := nav.all()
	if len(navs) != 1 || navs[0].route != "/" {
		t.Errorf("navigations = %+v, want exactly one to /", navs)
	}
	if f.store.Deletes() == 0 {
		t.Error("expected a purge")
	}
}

func TestRateLimitKeepsSession(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newFixture(t)
	nav := &recordingNavigator{}
	_ = f.state.Establish(ctx, session.BearerToken{Value: "tok-1", Source: session.SourceManual}, 0)
	deletes := f.store.Deletes()
	client := api.New(srv.URL, api.WithCredentials(f.state, nav, "/"))

	for i := 0; i < 3; i++ {
		var rl *api.RateLimitError
		if err := client.Get(ctx, "/budgets", nil); !errors.As(err, &rl) || rl.RetryAfter != api.DefaultRetryAfter {
			t.Fatalf("err = %v, want RateLimitError with default retry", err)
		}
	}
	if f.store.Deletes() != deletes {
		t.Error("429 must never purge")
	}
	if v, _ := f.storedToken(t); v != "tok-1" {
		t.Errorf("slot = %q", v)
	}
	if len(nav.all()) != 0 {
		t.Error("429 must never navigate")
	}
}
