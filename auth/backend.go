package auth

import (
	"context"
	"time"
)

// Identity is the minimal record the auth backend returns for an authenticated
// principal. It exists only as long as the Session that carries it.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Session is an opaque authentication handle issued by the backend. Consumers
// hold a reference to it and never construct or mutate one.
type Session struct {
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
	Identity    Identity  `json:"identity"`
	Provider    string    `json:"provider"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// Event names delivered on the auth-event stream
type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// Change is one notification on the auth-event stream. Seq increases
// monotonically across the whole backend, so a consumer can discard a change
// that is older than one it already applied. Session is nil when the event
// reports session loss.
type Change struct {
	Seq     uint64
	Event   Event
	Session *Session
}

// Listener receives auth-event changes. Changes for one subscription are
// delivered in order, on a goroutine owned by the backend.
type Listener func(Change)

// Provider names accepted by SignInWithOAuth
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// Backend is the contract of the external authentication service as seen by
// a single visitor.
type Backend interface {
	// GetSession returns the persisted session, or nil when there is none.
	GetSession(ctx context.Context) (*Session, error)

	// OnAuthStateChange subscribes to the auth-event stream. The returned
	// func unsubscribes and is safe to call more than once.
	OnAuthStateChange(fn Listener) (unsubscribe func())

	// SignInWithPassword authenticates with email and password. Provider
	// errors are returned unmodified.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	// SignInWithOAuth starts a redirect handoff to provider and returns the
	// URL the user agent must be sent to.
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)

	// SignOut invalidates the current session.
	SignOut(ctx context.Context) error

	// GetUser returns the identity of the active session.
	GetUser(ctx context.Context) (*Identity, error)
}
