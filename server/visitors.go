package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sigea-app/sigea/auth"
	"github.com/sigea-app/sigea/internal/metrics"
	"github.com/sigea-app/sigea/session"
	"github.com/sigea-app/sigea/users"
)

const defaultSweepInterval = time.Minute

// BackendFactory returns the auth backend for one visitor.
type BackendFactory func(visitorID string) auth.Backend

type visitorEntry struct {
	controller *session.Controller
	lastSeen   time.Time
}

// Visitors keeps one started session controller per visitor and closes the
// ones that have been idle for longer than the idle timeout.
type Visitors struct {
	mu       sync.Mutex
	entries  map[string]*visitorEntry
	backends BackendFactory
	profiles users.ProfileRepo

	configErr      error
	startupTimeout time.Duration
	idleTimeout    time.Duration
	nowTime        func() time.Time
}

// VisitorsOption defines a function type to modify the Visitors instance.
type VisitorsOption func(*Visitors)

// WithConfigError marks every controller as unconfigured because of err.
func WithConfigError(err error) VisitorsOption {
	return func(v *Visitors) {
		v.configErr = err
	}
}

func WithStartupTimeout(d time.Duration) VisitorsOption {
	return func(v *Visitors) {
		v.startupTimeout = d
	}
}

func WithIdleTimeout(d time.Duration) VisitorsOption {
	return func(v *Visitors) {
		v.idleTimeout = d
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) VisitorsOption {
	return func(v *Visitors) {
		v.nowTime = nowFunc
	}
}

// NewVisitors creates the registry. A nil backends factory means the auth
// backend is not configured.
func NewVisitors(backends BackendFactory, profiles users.ProfileRepo, options ...VisitorsOption) *Visitors {
	v := &Visitors{
		entries:        make(map[string]*visitorEntry),
		backends:       backends,
		profiles:       profiles,
		startupTimeout: session.DefaultStartupTimeout,
		idleTimeout:    30 * time.Minute,
		nowTime:        time.Now,
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// Get returns the controller for visitorID, creating and starting it on first use.
func (v *Visitors) Get(visitorID string) *session.Controller {
	v.mu.Lock()
	if entry, ok := v.entries[visitorID]; ok {
		entry.lastSeen = v.nowTime()
		v.mu.Unlock()
		return entry.controller
	}

	var backend auth.Backend
	if v.backends != nil {
		backend = v.backends(visitorID)
	}

	controller := session.New(backend, v.profiles,
		session.WithStartupTimeout(v.startupTimeout),
		session.WithConfigError(v.configErr),
		session.WithLogger(log.With().Str("visitor", visitorID).Logger()),
	)
	v.entries[visitorID] = &visitorEntry{controller: controller, lastSeen: v.nowTime()}
	metrics.ActiveVisitors.Set(float64(len(v.entries)))
	v.mu.Unlock()

	// Start subscribes to the backend and can block on it, so it runs
	// outside the registry lock. A concurrent Get for the same visitor sees
	// the controller as loading until then.
	controller.Start()
	return controller
}

// Len returns the number of live controllers.
func (v *Visitors) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// Sweep closes controllers idle for longer than the idle timeout. The
// visitor's session itself persists in the backend and is picked up again by
// a fresh controller on the next request.
func (v *Visitors) Sweep() int {
	v.mu.Lock()
	var idle []*session.Controller
	now := v.nowTime()
	for id, entry := range v.entries {
		if now.Sub(entry.lastSeen) > v.idleTimeout {
			idle = append(idle, entry.controller)
			delete(v.entries, id)
		}
	}
	metrics.ActiveVisitors.Set(float64(len(v.entries)))
	v.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	return len(idle)
}

// Run sweeps idle visitors until ctx is done.
func (v *Visitors) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := v.Sweep(); n > 0 {
				log.Debug().Int("closed", n).Msg("closed idle session controllers")
			}
		}
	}
}

// Close closes every controller.
func (v *Visitors) Close() {
	v.mu.Lock()
	entries := v.entries
	v.entries = make(map[string]*visitorEntry)
	metrics.ActiveVisitors.Set(0)
	v.mu.Unlock()

	for _, entry := range entries {
		entry.controller.Close()
	}
}
