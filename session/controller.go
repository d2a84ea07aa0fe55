package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sigea-app/sigea/auth"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/sigea-app/sigea/internal/metrics"
	"github.com/sigea-app/sigea/users"
	"golang.org/x/sync/singleflight"
)

// DefaultStartupTimeout bounds how long a controller may report loading.
const DefaultStartupTimeout = 5 * time.Second

// Controller owns the authentication and profile state of one visitor. State
// changes come only from the backend's auth-event stream, the startup fetch,
// the startup timeout and Logout.
type Controller struct {
	backend        auth.Backend
	profiles       users.ProfileRepo
	logger         zerolog.Logger
	startupTimeout time.Duration
	configErr      error

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	snap       Snapshot
	lastSeq    uint64
	generation uint64
	changed    chan struct{}
	started    bool
	closed     bool
	timer      *time.Timer

	unsubscribe func()

	lookups singleflight.Group

	notifyMu     sync.Mutex
	notified     uint64
	listeners    map[int]func(Snapshot)
	nextListener int
}

// Option configures a Controller.
type Option func(*Controller)

// WithStartupTimeout overrides DefaultStartupTimeout.
func WithStartupTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.startupTimeout = d
		}
	}
}

// WithLogger sets the logger used for swallowed errors.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithConfigError records why no backend is available.
func WithConfigError(err error) Option {
	return func(c *Controller) {
		if err != nil {
			c.snap.ConfigError = err
		}
	}
}

// New creates a controller in the Initializing state. A nil backend or
// profile store is a configuration error: the controller settles as
// Anonymous on Start and reports ConfigError.
func New(backend auth.Backend, profiles users.ProfileRepo, options ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:        backend,
		profiles:       profiles,
		logger:         log.Logger,
		startupTimeout: DefaultStartupTimeout,
		ctx:            ctx,
		cancel:         cancel,
		snap:           Snapshot{State: Initializing, Loading: true},
		changed:        make(chan struct{}),
		listeners:      make(map[int]func(Snapshot)),
	}
	for _, opt := range options {
		opt(c)
	}
	if (backend == nil || profiles == nil) && c.snap.ConfigError == nil {
		c.snap.ConfigError = apperrors.ErrConfiguration
	}
	c.configErr = c.snap.ConfigError
	return c
}

// Start subscribes to the auth-event stream, fetches the persisted session and
// arms the startup timeout. Only the first call has any effect.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true

	if c.snap.ConfigError != nil {
		c.logger.Warn().Err(c.snap.ConfigError).Msg("auth backend not configured, continuing anonymous")
		c.transitionLocked(Anonymous)
		c.snap.Loading = false
		snap := c.commitLocked()
		c.mu.Unlock()
		c.notify(snap)
		return
	}

	c.timer = time.AfterFunc(c.startupTimeout, c.startupTimedOut)
	c.mu.Unlock()

	unsubscribe := c.backend.OnAuthStateChange(c.handleChange)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	go c.bootstrap()
}

// Login signs in with email and password. The error is the backend's, as
// returned. Success does not change state: the SIGNED_IN event does.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	if c.backend == nil {
		recordLogin("password", c.configErr)
		return c.configErr
	}
	_, err := c.backend.SignInWithPassword(ctx, email, password)
	recordLogin("password", err)
	return err
}

// LoginWithGoogle starts the OAuth handoff and returns the provider URL the
// visitor must be redirected to. Completion arrives as an auth event.
func (c *Controller) LoginWithGoogle(ctx context.Context, redirectTo string) (string, error) {
	if c.backend == nil {
		recordLogin(auth.ProviderGoogle, c.configErr)
		return "", c.configErr
	}
	url, err := c.backend.SignInWithOAuth(ctx, auth.ProviderGoogle, redirectTo)
	if err != nil {
		recordLogin(auth.ProviderGoogle, err)
	}
	return url, err
}

// Logout signs out remotely and then clears the local session and user
// whatever the remote call returned. The remote error is returned.
func (c *Controller) Logout(ctx context.Context) error {
	var err error
	if c.backend != nil {
		err = c.backend.SignOut(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("remote sign-out failed, clearing local session anyway")
		}
	}

	c.mu.Lock()
	c.clearLocked()
	snap := c.commitLocked()
	c.mu.Unlock()
	c.notify(snap)

	return err
}

// RefreshUser re-resolves the profile of the current identity, for use after
// the profile was edited. Failures are logged and never returned.
func (c *Controller) RefreshUser(ctx context.Context) {
	if c.backend == nil || c.profiles == nil {
		return
	}

	identity, err := c.backend.GetUser(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("refresh skipped, no current identity")
		return
	}

	c.mu.Lock()
	if c.snap.Session == nil || c.snap.Session.Identity.ID != identity.ID {
		c.mu.Unlock()
		return
	}
	gen := c.generation
	c.mu.Unlock()

	// A lookup already in flight may have read the row before the edit, so
	// this one never joins it.
	profile, err := c.fetch(ctx, identity.ID)
	if ctx.Err() != nil {
		c.logger.Debug().Err(ctx.Err()).Msg("refresh abandoned by caller")
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug().Str("identity", identity.ID).Msg("discarding refresh for superseded session")
		return
	}
	// lookups started before this read are older than it
	c.generation++
	c.applyProfileLocked(*identity, profile, err)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Subscribe calls fn with every new snapshot until the returned func is
// called. Snapshots are delivered in Version order; an older one is never
// delivered after a newer one. fn runs on the goroutine that made the change
// and must not block or call back into Subscribe.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.notifyMu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners[id] = fn
	c.notifyMu.Unlock()

	return func() {
		c.notifyMu.Lock()
		delete(c.listeners, id)
		c.notifyMu.Unlock()
	}
}

// WaitFor blocks until ready reports true for the current snapshot or ctx is done.
func (c *Controller) WaitFor(ctx context.Context, ready func(Snapshot) bool) (Snapshot, error) {
	for {
		c.mu.Lock()
		snap := c.snap
		changed := c.changed
		c.mu.Unlock()

		if ready(snap) {
			return snap, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// WaitReady blocks until loading has cleared.
func (c *Controller) WaitReady(ctx context.Context) (Snapshot, error) {
	return c.WaitFor(ctx, func(s Snapshot) bool { return !s.Loading })
}

// Close unsubscribes from the auth-event stream and stops the startup timer.
// Events and lookups that complete afterwards are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	c.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *Controller) bootstrap() {
	session, err := c.backend.GetSession(c.ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to fetch persisted session")
		session = nil
	}

	c.mu.Lock()
	if c.closed || c.lastSeq > 0 {
		// an auth event already reported something at least as recent
		c.mu.Unlock()
		return
	}
	c.applySessionLocked(session, false)
}

func (c *Controller) handleChange(change auth.Change) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if change.Seq <= c.lastSeq {
		c.logger.Debug().Uint64("seq", change.Seq).Uint64("last", c.lastSeq).Str("event", string(change.Event)).Msg("dropping stale auth event")
		c.mu.Unlock()
		return
	}
	c.lastSeq = change.Seq

	session := change.Session
	if change.Event == auth.EventSignedOut {
		session = nil
	}
	c.applySessionLocked(session, change.Event == auth.EventUserUpdated)
}

// applySessionLocked installs session and starts profile resolution when the
// identity changed or force is set. It must be called with c.mu held and
// releases it.
func (c *Controller) applySessionLocked(session *auth.Session, force bool) {
	if session == nil {
		c.clearLocked()
		snap := c.commitLocked()
		c.mu.Unlock()
		c.notify(snap)
		return
	}

	current := c.snap.Session
	sameIdentity := current != nil && current.Identity.ID == session.Identity.ID
	if sameIdentity && !force && (c.snap.User != nil || c.snap.Resolving) {
		// token refresh or duplicate delivery
		c.snap.Session = session
		snap := c.commitLocked()
		c.mu.Unlock()
		c.notify(snap)
		return
	}

	c.generation++
	gen := c.generation
	c.snap.Session = session
	c.snap.Resolving = true
	if c.snap.State != Initializing {
		if !sameIdentity {
			c.snap.User = nil
		}
		c.transitionLocked(Authenticating)
	}
	snap := c.commitLocked()
	c.mu.Unlock()
	c.notify(snap)

	identity := session.Identity
	go func() {
		profile, err := c.lookup(identity.ID, force)
		c.applyProfile(gen, identity, profile, err)
	}()
}

// applyProfile stores the result of a lookup started at generation gen,
// unless the session changed since.
func (c *Controller) applyProfile(gen uint64, identity auth.Identity, profile *users.UserProfile, err error) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug().Str("identity", identity.ID).Msg("discarding profile for superseded session")
		return
	}
	c.applyProfileLocked(identity, profile, err)
}

// applyProfileLocked must be called with c.mu held and releases it.
func (c *Controller) applyProfileLocked(identity auth.Identity, profile *users.UserProfile, err error) {
	c.snap.Resolving = false
	c.snap.Loading = false
	switch {
	case err != nil:
		c.logger.Error().Err(err).Str("identity", identity.ID).Msg("profile lookup failed")
		c.snap.User = nil
		c.snap.ProfileError = err
		c.transitionLocked(Anonymous)
	case profile == nil:
		c.logger.Info().Str("identity", identity.ID).Msg("authenticated identity has no profile")
		c.snap.User = nil
		c.snap.ProfileError = nil
		c.transitionLocked(Anonymous)
	default:
		c.snap.User = users.Resolve(identity, profile)
		c.snap.ProfileError = nil
		c.transitionLocked(Authenticated)
	}
	snap := c.commitLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// lookup resolves id on the controller's own context, collapsing concurrent
// lookups for the same identity. fresh starts a new read instead of joining
// one that may predate a profile edit.
func (c *Controller) lookup(id string, fresh bool) (*users.UserProfile, error) {
	if fresh {
		c.lookups.Forget(id)
	}
	v, err, _ := c.lookups.Do(id, func() (any, error) {
		return c.fetch(c.ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*users.UserProfile), nil
}

func (c *Controller) fetch(ctx context.Context, id string) (*users.UserProfile, error) {
	profile, err := c.profiles.GetByID(ctx, id)
	switch {
	case err != nil:
		metrics.ProfileLookups.WithLabelValues("error").Inc()
		return nil, err
	case profile == nil:
		metrics.ProfileLookups.WithLabelValues("missing").Inc()
		return nil, nil
	default:
		metrics.ProfileLookups.WithLabelValues("found").Inc()
		return profile, nil
	}
}

func (c *Controller) startupTimedOut() {
	c.mu.Lock()
	if c.closed || !c.snap.Loading {
		c.mu.Unlock()
		return
	}
	c.logger.Warn().Dur("timeout", c.startupTimeout).Msg("session startup timed out")
	c.snap.Loading = false
	if c.snap.State == Initializing {
		if c.snap.Session == nil {
			c.transitionLocked(Anonymous)
		} else {
			c.transitionLocked(Authenticating)
		}
	}
	snap := c.commitLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// clearLocked drops session and user and supersedes any lookup in flight.
func (c *Controller) clearLocked() {
	c.generation++
	c.snap.Session = nil
	c.snap.User = nil
	c.snap.Resolving = false
	c.snap.ProfileError = nil
	c.snap.Loading = false
	c.transitionLocked(Anonymous)
}

func (c *Controller) transitionLocked(to State) {
	from := c.snap.State
	if from == to {
		return
	}
	c.snap.State = to
	metrics.SessionTransitions.WithLabelValues(from.String(), to.String()).Inc()
	c.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("session state changed")
}

// commitLocked bumps the version and wakes waiters.
func (c *Controller) commitLocked() Snapshot {
	c.snap.Version++
	close(c.changed)
	c.changed = make(chan struct{})
	return c.snap
}

func (c *Controller) notify(snap Snapshot) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if snap.Version <= c.notified {
		return
	}
	c.notified = snap.Version
	for _, fn := range c.listeners {
		fn(snap)
	}
}

func recordLogin(method string, err error) {
	outcome := "success"
	switch apperrors.Classify(err) {
	case nil:
	case apperrors.ErrConfiguration:
		outcome = "configuration"
	case apperrors.ErrInvalidCredentials:
		outcome = "invalid_credentials"
	default:
		outcome = "connectivity"
	}
	metrics.LoginAttempts.WithLabelValues(method, outcome).Inc()
}
