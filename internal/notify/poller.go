// Package notify polls the backend for unread notifications while a
// session is authenticated.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"presupuesto/internal/amqp"
	"presupuesto/internal/auth"
	"presupuesto/internal/cache"
	"presupuesto/internal/core"
	"presupuesto/internal/log"
	"presupuesto/internal/metrics"
	"presupuesto/internal/session"
)

// Source is the notifications resource.
type Source interface {
	UnreadCount(ctx context.Context) (int, error)
	List(ctx context.Context, limit int) ([]core.Notification, error)
}

// Session is the auth state the poller follows.
type Session interface {
	CurrentState() auth.AuthState
	LoggedOut() <-chan struct{}
}

// Subscriber delivers session events from other processes.
type Subscriber interface {
	Subscribe(ctx context.Context, handler amqp.Handler) error
}

// Sink receives each unread notification the first time it is seen.
type Sink func(ctx context.Context, n core.Notification)

// PollerConfig holds configuration for the poller
type PollerConfig struct {
	// Interval between unread-count checks (default: 30s)
	Interval time.Duration

	// Limit is how many notifications to fetch when there are unread ones (default: 50)
	Limit int
}

// DefaultPollerConfig returns the defaults
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval: 30 * time.Second,
		Limit:    50,
	}
}

type Option func(*Poller)

// WithSubscriber stops the poller when another process logs out.
func WithSubscriber(s Subscriber) Option {
	return func(p *Poller) { p.subscriber = s }
}

// WithSeen sets the cache that remembers reported notifications.
func WithSeen(c cache.Cache[string]) Option {
	return func(p *Poller) { p.seen = c }
}

func WithSink(s Sink) Option {
	return func(p *Poller) { p.sink = s }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(p *Poller) { p.metrics = r }
}

func WithLogger(l *log.Logger) Option {
	return func(p *Poller) { p.logger = l.WithComponent(log.ComponentNotify) }
}

// Poller is a cancellable repeating unread-count check.
type Poller struct {
	source     Source
	session    Session
	config     PollerConfig
	subscriber Subscriber
	seen       cache.Cache[string]
	sink       Sink
	metrics    metrics.Recorder
	logger     *log.Logger

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	lastCount int
}

// NewPoller creates a poller over source, following sess
func NewPoller(source Source, sess Session, config PollerConfig, opts ...Option) *Poller {
	def := DefaultPollerConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Limit <= 0 {
		config.Limit = def.Limit
	}
	p := &Poller{
		source:  source,
		session: sess,
		config:  config,
		seen:    cache.NewEphemeral(),
		metrics: metrics.Nop{},
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling. Returns an error if already running.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("notification poller is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	p.logger.InfoContext(ctx, "Notification poller started", "interval", p.config.Interval)
	return nil
}

// Stop stops the poller and waits for the loop to exit. It is a no-op when
// the poller is not running.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Notification poller stopped")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Notification poller stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the poller is currently running
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Done is closed when the current run ends, for any reason.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doneCh == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.doneCh
}

// LastCount returns the most recent unread count.
func (p *Poller) LastCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCount
}

func (p *Poller) runLoop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer func() {
		p.mu.Lock()
		if p.doneCh == doneCh {
			p.running = false
		}
		p.mu.Unlock()
		close(doneCh)
	}()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	remoteLogout := make(chan struct{})
	if p.subscriber != nil {
		go p.subscribe(loopCtx, remoteLogout)
	}

	loggedOut := p.session.LoggedOut()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.Poll(loopCtx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-loggedOut:
			p.logger.InfoContext(ctx, "Session logged out, stopping notification poller")
			return
		case <-remoteLogout:
			p.logger.InfoContext(ctx, "Remote logout received, stopping notification poller")
			return
		case <-ticker.C:
			p.Poll(loopCtx)
		}
	}
}

func (p *Poller) subscribe(ctx context.Context, remoteLogout chan struct{}) {
	var once sync.Once
	err := p.subscriber.Subscribe(ctx, func(_ context.Context, msg *amqp.SessionEventMessage) error {
		if msg.Kind == session.EventLoggedOut {
			once.Do(func() { close(remoteLogout) })
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		p.logger.WarnContext(ctx, "Session event subscription ended", log.FieldError, err)
	}
}

// Poll runs one check. It does nothing unless the session is
// authenticated.
func (p *Poller) Poll(ctx context.Context) {
	if !p.session.CurrentState().IsAuthenticated {
		return
	}

	count, err := p.source.UnreadCount(ctx)
	p.metrics.RecordPoll(err == nil)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to poll unread notifications",
			log.FieldOperation, log.OpPoll, log.FieldError, err)
		return
	}

	p.mu.Lock()
	changed := count != p.lastCount
	p.lastCount = count
	p.mu.Unlock()
	if changed {
		p.logger.DebugContext(ctx, "Unread notification count changed", "count", count)
	}
	if count == 0 {
		return
	}

	ns, err := p.source.List(ctx, p.config.Limit)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to list notifications", log.FieldError, err)
		return
	}
	for _, n := range core.Unread(ns) {
		key := "notification:" + strconv.FormatInt(n.ID, 10)
		if _, ok := p.seen.Get(key); ok {
			continue
		}
		p.seen.Set(key, n.Title)
		if p.sink != nil {
			p.sink(ctx, n)
		}
	}
}
