package authflow

import (
	"sync"
	"time"

	apperrors "github.com/sigea-app/sigea/internal/errors"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
// Flows older than maxAge are treated as missing.
type InMemoryRepo struct {
	mu      sync.Mutex
	states  map[string]AuthFlowState
	maxAge  time.Duration
	nowTime func() time.Time
}

type Option func(*InMemoryRepo)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(r *InMemoryRepo) {
		r.nowTime = nowFunc
	}
}

// NewInMemoryRepo creates a new in-memory auth flow state repository
func NewInMemoryRepo(maxAge time.Duration, options ...Option) *InMemoryRepo {
	r := &InMemoryRepo{
		states:  make(map[string]AuthFlowState),
		maxAge:  maxAge,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Upsert stores or updates an auth flow state
func (r *InMemoryRepo) Upsert(state string, flow *AuthFlowState) error {
	if state == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidState, "state cannot be empty")
	}
	if flow == nil {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "flow cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.purgeLocked()
	r.states[state] = *flow
	return nil
}

// Get retrieves an auth flow state by state parameter
func (r *InMemoryRepo) Get(state string) (*AuthFlowState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lookupLocked(state)
}

// Take retrieves and removes an auth flow state
func (r *InMemoryRepo) Take(state string) (*AuthFlowState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flow, err := r.lookupLocked(state)
	delete(r.states, state)
	return flow, err
}

// Delete removes an auth flow state
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidState, "state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, state)
	return nil
}

func (r *InMemoryRepo) lookupLocked(state string) (*AuthFlowState, error) {
	if state == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidState, "state cannot be empty")
	}
	flow, exists := r.states[state]
	if !exists || r.expired(flow) {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidState, "state not found")
	}
	copied := flow
	return &copied, nil
}

func (r *InMemoryRepo) expired(flow AuthFlowState) bool {
	return r.maxAge > 0 && r.nowTime().Sub(flow.CreatedAt) > r.maxAge
}

// purgeLocked drops abandoned flows so visitors who never return don't accumulate.
func (r *InMemoryRepo) purgeLocked() {
	for state, flow := range r.states {
		if r.expired(flow) {
			delete(r.states, state)
		}
	}
}
