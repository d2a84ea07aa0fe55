package backendfake

import (
	"context"
	"sync"
	"time"

	"github.com/sigea-app/sigea/auth"
	apperrors "github.com/sigea-app/sigea/internal/errors"
)

var _ auth.Backend = (*FakeBackend)(nil)

// FakeBackend is a scripted auth.Backend. Events are delivered synchronously
// by Emit, so tests decide exactly when and in which order they arrive.
type FakeBackend struct {
	mu        sync.Mutex
	session   *auth.Session
	listeners map[int]auth.Listener
	nextID    int
	seq       uint64

	// GetSession behaviour
	getSessionErr   error
	getSessionDelay time.Duration
	getSessionGate  chan struct{}

	// Sign-in and sign-out behaviour
	signInErr    error
	signInResult *auth.Session
	signOutErr   error
	oauthURL     string
	oauthErr     error
	getUserErr   error

	// Recorded calls
	signInCalls  int
	signOutCalls int
	lastRedirect string
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		listeners: make(map[int]auth.Listener),
		oauthURL:  "https://provider.test/authorize",
	}
}

// NewSession builds a session for identity that expires in an hour.
func NewSession(id, email string) *auth.Session {
	return &auth.Session{
		AccessToken: "token-" + id,
		ExpiresAt:   time.Now().Add(time.Hour),
		Identity:    auth.Identity{ID: id, Email: email},
		Provider:    auth.ProviderPassword,
	}
}

// SetSession sets the persisted session returned by GetSession and GetUser.
func (b *FakeBackend) SetSession(session *auth.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = session
}

// SetGetSessionError makes GetSession fail.
func (b *FakeBackend) SetGetSessionError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getSessionErr = err
}

// SetGetSessionDelay delays GetSession by d, or until ctx is done.
func (b *FakeBackend) SetGetSessionDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getSessionDelay = d
}

// BlockGetSession makes GetSession wait until the returned func is called.
func (b *FakeBackend) BlockGetSession() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.getSessionGate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// SetSignInError makes SignInWithPassword return err exactly as given.
func (b *FakeBackend) SetSignInError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signInErr = err
}

// SetSignInResult sets the session returned by a successful SignInWithPassword.
// No event is emitted; tests call Emit to deliver SIGNED_IN.
func (b *FakeBackend) SetSignInResult(session *auth.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signInResult = session
}

func (b *FakeBackend) SetSignOutError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signOutErr = err
}

func (b *FakeBackend) SetOAuth(url string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.oauthURL = url
	b.oauthErr = err
}

func (b *FakeBackend) SetGetUserError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getUserErr = err
}

// Emit delivers an event with the next sequence number to every listener and
// returns that number.
func (b *FakeBackend) Emit(event auth.Event, session *auth.Session) uint64 {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.mu.Unlock()

	b.EmitWithSeq(seq, event, session)
	return seq
}

// EmitWithSeq delivers an event with an explicit sequence number, which lets
// tests replay stale events.
func (b *FakeBackend) EmitWithSeq(seq uint64, event auth.Event, session *auth.Session) {
	b.mu.Lock()
	if seq > b.seq {
		b.seq = seq
	}
	listeners := make([]auth.Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(auth.Change{Seq: seq, Event: event, Session: session})
	}
}

// Listeners returns the number of active subscriptions.
func (b *FakeBackend) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *FakeBackend) SignInCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.signInCalls
}

func (b *FakeBackend) SignOutCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.signOutCalls
}

func (b *FakeBackend) LastRedirect() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRedirect
}

func (b *FakeBackend) GetSession(ctx context.Context) (*auth.Session, error) {
	b.mu.Lock()
	delay := b.getSessionDelay
	gate := b.getSessionGate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getSessionErr != nil {
		return nil, b.getSessionErr
	}
	return b.session, nil
}

// OnAuthStateChange registers fn. Unlike a real backend it does not emit
// INITIAL_SESSION; tests emit it themselves when they need it.
func (b *FakeBackend) OnAuthStateChange(fn auth.Listener) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

func (b *FakeBackend) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signInCalls++
	if b.signInErr != nil {
		return nil, b.signInErr
	}
	if b.signInResult != nil {
		b.session = b.signInResult
	}
	return b.signInResult, nil
}

func (b *FakeBackend) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastRedirect = redirectTo
	if b.oauthErr != nil {
		return "", b.oauthErr
	}
	return b.oauthURL, nil
}

func (b *FakeBackend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signOutCalls++
	if b.signOutErr != nil {
		return b.signOutErr
	}
	b.session = nil
	return nil
}

func (b *FakeBackend) GetUser(ctx context.Context) (*auth.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getUserErr != nil {
		return nil, b.getUserErr
	}
	if b.session == nil {
		return nil, apperrors.ErrSessionNotFound
	}
	identity := b.session.Identity
	return &identity, nil
}
