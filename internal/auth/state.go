// Package auth reconciles the third-party identity session with the backend
// bearer token and owns every transition of the local authentication state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"presupuesto/internal/log"
	"presupuesto/internal/session"
)

// Phase is the state machine position of the auth state.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseUnauthenticated
	PhaseAuthenticated
	PhaseForcedLogout
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseForcedLogout:
		return "forced_logout"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// UserInfo is the normalized user projection shown to callers.
type UserInfo struct {
	Email     string
	FirstName string
	LastName  string
	Avatar    string
	Source    session.Source
}

// AuthState is the derived view callers consult. It is never persisted.
type AuthState struct {
	Phase             Phase
	Source            session.Source
	IsAuthenticated   bool
	IsLoading         bool
	User              *UserInfo
	ForceLogoutActive bool
}

// IdentityProvider is the third-party session source.
type IdentityProvider interface {
	Session(ctx context.Context) (*session.IdentitySession, error)
	// SignOut ends the provider session without any navigation of its own.
	SignOut(ctx context.Context) error
}

// Navigator moves the user between routes. Navigate is an in-app
// transition; Replace discards all in-memory state.
type Navigator interface {
	Navigate(ctx context.Context, route string) error
	Replace(ctx context.Context, route string) error
}

// Notifier receives session transitions, e.g. to broadcast them.
type Notifier interface {
	Notify(ctx context.Context, ev session.Event) error
}

var (
	// ErrSignInSuperseded is returned when a sign-in that started before a
	// logout completes after it.
	ErrSignInSuperseded = errors.New("sign-in superseded by logout")
	ErrEmptyToken       = errors.New("bearer token cannot be empty")
)

// State is the single source of truth for authentication.
type State struct {
	mu sync.Mutex

	slot     *session.TokenSlot
	provider IdentityProvider
	notifier Notifier
	logger   *log.Logger

	identity *session.IdentitySession
	phase    Phase
	source   session.Source
	forced   bool
	epoch    uint64

	loggedOut       chan struct{}
	loggedOutClosed bool

	// invalidated holds credentials the backend rejected or that aged out.
	// They are never re-persisted from a stale identity session.
	invalidated map[string]struct{}
}

// StateOption configures a State
type StateOption func(*State)

// WithProvider attaches the identity provider used for sign-out
func WithProvider(p IdentityProvider) StateOption {
	return func(s *State) { s.provider = p }
}

// WithNotifier attaches a session event sink
func WithNotifier(n Notifier) StateOption {
	return func(s *State) { s.notifier = n }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) StateOption {
	return func(s *State) { s.logger = l }
}

// NewState creates a State in the Loading phase.
func NewState(slot *session.TokenSlot, opts ...StateOption) *State {
	s := &State{
		slot:        slot,
		logger:      log.Discard(),
		phase:       PhaseLoading,
		loggedOut:   make(chan struct{}),
		invalidated: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentAuth)
	return s
}

// Observe recomputes the state from the latest identity observation.
func (s *State) Observe(ctx context.Context, identity *session.IdentitySession, providerLoading bool) AuthState {
	s.mu.Lock()
	s.identity = identity

	if providerLoading {
		s.phase = PhaseLoading
		st := s.snapshotLocked()
		s.mu.Unlock()
		return st
	}

	if s.forced {
		// A stale identity may still carry the old backend token; it must
		// not reach the slot.
		_, ok, err := s.slot.Get(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to read token slot", log.FieldError, err)
		}
		if ok || err != nil {
			if err := s.slot.Clear(ctx); err != nil {
				s.logger.WarnContext(ctx, "Failed to purge token during forced logout", log.FieldError, err)
			}
		}
		s.phase = PhaseForcedLogout
		st := s.snapshotLocked()
		s.mu.Unlock()
		return st
	}

	if identity != nil && identity.BackendToken != "" && !s.isInvalidatedLocked(identity.BackendToken) {
		if _, ok, err := s.slot.Get(ctx); err == nil && !ok {
			tok := session.BearerToken{Value: identity.BackendToken, Source: session.SourceExchanged}
			if err := s.slot.Set(ctx, tok); err != nil {
				s.logger.WarnContext(ctx, "Failed to persist exchanged token", log.FieldError, err)
			}
		}
	}

	tok, ok, expired := s.loadLocked(ctx)
	if ok {
		s.phase = PhaseAuthenticated
		s.source = tok.Source
	} else {
		s.phase = PhaseUnauthenticated
		s.source = ""
	}
	st := s.snapshotLocked()
	s.mu.Unlock()

	if expired {
		s.notify(ctx, session.EventExpired, tok.Source)
	}
	return st
}

// loadLocked reads the slot and purges a token that reached the maximum
// age. expired reports that such a purge happened.
func (s *State) loadLocked(ctx context.Context) (tok session.BearerToken, ok bool, expired bool) {
	tok, ok, err := s.slot.Get(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read token slot", log.FieldError, err)
		return session.BearerToken{}, false, false
	}
	if !ok {
		return session.BearerToken{}, false, false
	}
	if s.isInvalidatedLocked(tok.Value) {
		if err := s.slot.Clear(ctx); err != nil {
			s.logger.WarnContext(ctx, "Failed to purge rejected token", log.FieldError, err)
		}
		return session.BearerToken{}, false, false
	}
	if s.slot.Stale(tok) {
		s.invalidated[tok.Value] = struct{}{}
		if err := s.slot.Clear(ctx); err != nil {
			s.logger.WarnContext(ctx, "Failed to purge expired token", log.FieldError, err)
		}
		s.logger.InfoContext(ctx, "Token reached maximum age, signing out",
			log.FieldOperation, log.OpPurge, log.FieldTokenSource, string(tok.Source))
		return tok, false, true
	}
	return tok, true, false
}

func (s *State) isInvalidatedLocked(value string) bool {
	_, ok := s.invalidated[value]
	return ok
}

// CurrentState returns the last computed state.
func (s *State) CurrentState() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() AuthState {
	st := AuthState{
		Phase:             s.phase,
		Source:            s.source,
		IsLoading:         s.phase == PhaseLoading,
		IsAuthenticated:   s.phase == PhaseAuthenticated,
		ForceLogoutActive: s.forced,
	}
	if st.IsAuthenticated {
		st.User = s.userLocked()
	}
	return st
}

func (s *State) userLocked() *UserInfo {
	if id := s.identity; id != nil && s.source == session.SourceExchanged {
		return &UserInfo{
			Email:     id.Email,
			FirstName: id.GivenName,
			LastName:  id.FamilyName,
			Avatar:    id.AvatarURL,
			Source:    session.SourceExchanged,
		}
	}
	return nil
}

// User returns the user projection, reading the email claim of a manual
// token when there is no identity session.
func (s *State) User(ctx context.Context) *UserInfo {
	st := s.CurrentState()
	if !st.IsAuthenticated {
		return nil
	}
	if st.User != nil {
		return st.User
	}
	token, ok := s.Token(ctx)
	if !ok {
		return nil
	}
	info := &UserInfo{Source: st.Source}
	if email, ok := session.EmailClaim(token); ok {
		info.Email = email
	}
	return info
}

// Token returns the credential to send. It is empty during forced logout.
func (s *State) Token(ctx context.Context) (string, bool) {
	s.mu.Lock()
	if s.forced {
		s.mu.Unlock()
		return "", false
	}
	tok, ok, expired := s.loadLocked(ctx)
	if ok {
		s.mu.Unlock()
		return tok.Value, true
	}
	if expired {
		s.phase = PhaseUnauthenticated
		s.source = ""
		s.mu.Unlock()
		s.notify(ctx, session.EventExpired, tok.Source)
		return "", false
	}
	if id := s.identity; id != nil && id.BackendToken != "" && !s.isInvalidatedLocked(id.BackendToken) {
		value := id.BackendToken
		s.mu.Unlock()
		return value, true
	}
	s.mu.Unlock()
	return "", false
}

// Epoch returns the logout generation. A sign-in captures it before any
// network call and hands it back to Establish.
func (s *State) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Establish persists a freshly issued token. It is the only way out of
// forced logout.
func (s *State) Establish(ctx context.Context, tok session.BearerToken, epoch uint64) error {
	if tok.Value == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "Discarding sign-in that started before logout",
			log.FieldTokenSource, string(tok.Source))
		return ErrSignInSuperseded
	}
	if err := s.slot.Set(ctx, tok); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.invalidated, tok.Value)
	s.forced = false
	s.phase = PhaseAuthenticated
	s.source = tok.Source
	if s.loggedOutClosed {
		s.loggedOut = make(chan struct{})
		s.loggedOutClosed = false
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Session established", log.FieldTokenSource, string(tok.Source))
	s.notify(ctx, session.EventSignedIn, tok.Source)
	return nil
}

// Logout enters forced logout, purges the slot and, when an identity
// session is active, asks the provider to sign out. Local state flips
// before the provider is contacted.
func (s *State) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.forced = true
	s.phase = PhaseForcedLogout
	source := s.source
	s.source = ""
	s.epoch++
	if !s.loggedOutClosed {
		close(s.loggedOut)
		s.loggedOutClosed = true
	}
	clearErr := s.slot.Clear(ctx)
	identityActive := s.identity != nil
	s.mu.Unlock()

	s.notify(ctx, session.EventLoggedOut, source)

	var signOutErr error
	if identityActive && s.provider != nil {
		if err := s.provider.SignOut(ctx); err != nil {
			signOutErr = fmt.Errorf("provider sign-out: %w", err)
		}
	}
	return errors.Join(clearErr, signOutErr)
}

// ForgetIdentity drops the cached identity after the provider session is
// gone.
func (s *State) ForgetIdentity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
}

// IdentityActive reports whether an identity session was last observed.
func (s *State) IdentityActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity != nil
}

// InvalidateCredential handles a backend rejection of sent. The slot is
// purged at most once per credential and the return value is true only for
// the first caller, which is the one that should navigate.
func (s *State) InvalidateCredential(ctx context.Context, sent string) bool {
	if sent == "" {
		return false
	}

	s.mu.Lock()
	if s.isInvalidatedLocked(sent) || s.forced {
		s.mu.Unlock()
		return false
	}
	s.invalidated[sent] = struct{}{}

	current, ok, err := s.slot.Get(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read token slot", log.FieldError, err)
	}
	if ok && current.Value != sent {
		// A newer sign-in already replaced the rejected credential.
		s.mu.Unlock()
		return false
	}
	if ok {
		if err := s.slot.Clear(ctx); err != nil {
			s.logger.WarnContext(ctx, "Failed to purge rejected token", log.FieldError, err)
		}
	}
	source := s.source
	if s.phase == PhaseAuthenticated {
		s.phase = PhaseUnauthenticated
		s.source = ""
	}
	if s.identity != nil && s.identity.BackendToken == sent {
		s.identity = nil
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Backend rejected credential", log.FieldOperation, log.OpInvalidate)
	s.endRejectedIdentity(ctx, sent)
	s.notify(ctx, session.EventExpired, source)
	return true
}

// endRejectedIdentity signs the provider out when its session still carries
// the rejected token, so the next process cannot restore it into the slot.
func (s *State) endRejectedIdentity(ctx context.Context, sent string) {
	if s.provider == nil {
		return
	}
	identity, err := s.provider.Session(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read identity session", log.FieldError, err)
		return
	}
	if identity == nil || identity.BackendToken != sent {
		return
	}
	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.WarnContext(ctx, "Failed to end identity session of rejected token", log.FieldError, err)
	}
}

// LoggedOut is closed by Logout. A later Establish arms a new channel.
func (s *State) LoggedOut() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedOut
}

func (s *State) notify(ctx context.Context, kind session.EventKind, source session.Source) {
	if s.notifier == nil {
		return
	}
	ev := session.Event{Kind: kind, Source: source, At: time.Now().UTC()}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish session event", "kind", string(kind), log.FieldError, err)
	}
}
