package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"presupuesto/internal/session"
	"presupuesto/internal/storage/memory"
)

type navigation struct {
	route   string
	replace bool
}

type recordingNavigator struct {
	mu   sync.Mutex
	navs []navigation
}

func (n *recordingNavigator) Navigate(_ context.Context, route string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.navs = append(n.navs, navigation{route: route})
	return nil
}

func (n *recordingNavigator) Replace(_ context.Context, route string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.navs = append(n.navs, navigation{route: route, replace: true})
	return nil
}

func (n *recordingNavigator) all() []navigation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]navigation(nil), n.navs...)
}

type fakeProvider struct {
	mu       sync.Mutex
	identity *session.IdentitySession
	signOuts int
	block    chan struct{}
	err      error
}

func (p *fakeProvider) Session(context.Context) (*session.IdentitySession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity, nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOuts++
	p.identity = nil
	return p.err
}

func (p *fakeProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOuts
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []session.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev session.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) kinds() []session.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []session.EventKind
	for _, ev := range n.events {
		out = append(out, ev.Kind)
	}
	return out
}

var errSignOut = errors.New("provider unavailable")

type fixture struct {
	store *memory.Store
	slot  *session.TokenSlot
	state *State
	now   time.Time
}

func newFixture(t *testing.T, opts ...StateOption) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.store = memory.New().WithClock(clock)
	f.slot = session.NewTokenSlot(f.store, 60*24*time.Hour).WithClock(clock)
	f.state = NewState(f.slot, opts...)
	return f
}

func (f *fixture) storedToken(t *testing.T) (string, bool) {
	t.Helper()
	tok, ok, err := f.slot.Get(context.Background())
	if err != nil {
		t.Fatalf("slot.Get: %v", err)
	}
	return tok.Value, ok
}
