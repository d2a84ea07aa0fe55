package local_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/sigea-app/sigea/auth"
	"github.com/sigea-app/sigea/auth/authflow"
	"github.com/sigea-app/sigea/auth/local"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	fakesessionrepo "github.com/sigea-app/sigea/sessions/repofakes"
	"github.com/sigea-app/sigea/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "ana@example.edu"
	testPassword = "Segura123"
)

type fakeProvider struct {
	mu        sync.Mutex
	email     string
	lastNonce string
	err       error
}

func (p *fakeProvider) Name() string { return auth.ProviderGoogle }

func (p *fakeProvider) AuthCodeURL(state, verifier, nonce string) string {
	p.mu.Lock()
	p.lastNonce = nonce
	p.mu.Unlock()
	return "https://provider.test/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(ctx context.Context, code, verifier, nonce string) (*local.ExternalIdentity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if nonce != p.lastNonce || verifier == "" {
		return nil, apperrors.ErrInvalidNonce
	}
	return &local.ExternalIdentity{Subject: "google-1", Email: p.email}, nil
}

type testFixture struct {
	service  *local.Service
	sessions *fakesessionrepo.FakeSessionRepo
	provider *fakeProvider
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	issuer, err := token.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), "https://auth.sigea.test", time.Hour)
	require.NoError(t, err)

	sessionRepo := fakesessionrepo.NewFakeSessionRepo()
	provider := &fakeProvider{email: "bruno@example.edu"}

	service, err := local.NewService(local.Repos{
		Credentials: local.NewInMemoryCredentialRepo(),
		Sessions:    sessionRepo,
		Flows:       authflow.NewInMemoryRepo(10 * time.Minute),
	}, issuer, local.WithProvider(provider))
	require.NoError(t, err)

	_, err = service.Register(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	return &testFixture{service: service, sessions: sessionRepo, provider: provider}
}

// collector records changes delivered to a listener.
type collector struct {
	mu      sync.Mutex
	changes []auth.Change
}

func (c *collector) listen(change auth.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, change)
}

func (c *collector) events() []auth.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]auth.Event, 0, len(c.changes))
	for _, change := range c.changes {
		events = append(events, change.Event)
	}
	return events
}

func (c *collector) seqs() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	seqs := make([]uint64, 0, len(c.changes))
	for _, change := range c.changes {
		seqs = append(seqs, change.Seq)
	}
	return seqs
}

func TestNewServiceValidation(t *testing.T) {
	issuer, err := token.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), "https://auth.sigea.test", time.Hour)
	require.NoError(t, err)

	_, err = local.NewService(local.Repos{}, issuer)
	assert.Error(t, err)

	_, err = local.NewService(local.Repos{
		Credentials: local.NewInMemoryCredentialRepo(),
		Sessions:    fakesessionrepo.NewFakeSessionRepo(),
		Flows:       authflow.NewInMemoryRepo(time.Minute),
	}, nil)
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.service.Register(ctx, "weak@example.edu", "short")
	assert.ErrorIs(t, err, apperrors.ErrWeakPassword)

	_, err = f.service.Register(ctx, "ANA@example.edu", testPassword)
	assert.ErrorIs(t, err, apperrors.ErrIdentityExists)

	identity, err := f.service.Register(ctx, "carla@example.edu", testPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, identity.ID)
	assert.Equal(t, "carla@example.edu", identity.Email)
}

func TestIdentityIDSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	issuer, err := token.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), "https://auth.sigea.test", time.Hour)
	require.NoError(t, err)

	credentials := local.NewInMemoryCredentialRepo()
	newService := func(credentials local.CredentialRepo) *local.Service {
		service, err := local.NewService(local.Repos{
			Credentials: credentials,
			Sessions:    fakesessionrepo.NewFakeSessionRepo(),
			Flows:       authflow.NewInMemoryRepo(10 * time.Minute),
		}, issuer)
		require.NoError(t, err)
		return service
	}

	registered, err := newService(credentials).Register(ctx, testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, local.IdentityID(testEmail), registered.ID)

	t.Run("same store returns the same identity", func(t *testing.T) {
		session, err := newService(credentials).Client("visitor-1").SignInWithPassword(ctx, testEmail, testPassword)
		require.NoError(t, err)
		assert.Equal(t, registered.ID, session.Identity.ID)
	})

	t.Run("empty store derives the same id for the email", func(t *testing.T) {
		identity, err := newService(local.NewInMemoryCredentialRepo()).Register(ctx, " ANA@example.edu", testPassword)
		require.NoError(t, err)
		assert.Equal(t, registered.ID, identity.ID)
	})

	assert.NotEqual(t, local.IdentityID(testEmail), local.IdentityID("bruno@example.edu"))
}

func TestSignInWithPassword(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	client := f.service.Client("visitor-1")

	t.Run("wrong password is rejected unmodified", func(t *testing.T) {
		session, err := client.SignInWithPassword(ctx, testEmail, "Errada123")
		assert.Nil(t, session)
		assert.Equal(t, apperrors.ErrInvalidCredentials, err)
	})

	t.Run("unknown email is rejected", func(t *testing.T) {
		_, err := client.SignInWithPassword(ctx, "nobody@example.edu", testPassword)
		assert.Equal(t, apperrors.ErrInvalidCredentials, err)
	})

	t.Run("correct password persists the session for the visitor", func(t *testing.T) {
		session, err := client.SignInWithPassword(ctx, testEmail, testPassword)
		require.NoError(t, err)
		assert.Equal(t, testEmail, session.Identity.Email)
		assert.Equal(t, auth.ProviderPassword, session.Provider)

		persisted, err := f.service.Client("visitor-1").GetSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, persisted)
		assert.Equal(t, session.AccessToken, persisted.AccessToken)

		other, err := f.service.Client("visitor-2").GetSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, other)

		identity, err := client.GetUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, session.Identity, *identity)
	})
}

func TestSignInReplacesPreviousSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	client := f.service.Client("visitor-1")

	first, err := client.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)
	second, err := client.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	_, err = f.sessions.Get(ctx, first.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestSignOut(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	client := f.service.Client("visitor-1")

	session, err := client.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)

	require.NoError(t, client.SignOut(ctx))

	current, err := client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)

	_, err = f.sessions.Get(ctx, session.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	_, err = client.GetUser(ctx)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestGetSessionDropsRevokedToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	client := f.service.Client("visitor-1")

	session, err := client.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)

	// a record that vanished behind our back reads as no session
	require.NoError(t, f.sessions.Delete(ctx, session.AccessToken))

	current, err := client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)

	bound, err := f.sessions.Bound(ctx, "visitor-1")
	require.NoError(t, err)
	assert.Empty(t, bound)
}

func TestAuthEvents(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	client := f.service.Client("visitor-1")

	events := &collector{}
	unsubscribe := client.OnAuthStateChange(events.listen)
	defer unsubscribe()

	_, err := client.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.NoError(t, client.SignOut(ctx))

	require.Eventually(t, func() bool { return len(events.events()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []auth.Event{auth.EventInitialSession, auth.EventSignedIn, auth.EventSignedOut}, events.events())

	seqs := events.seqs()
	assert.Less(t, seqs[0], seqs[1])
	assert.Less(t, seqs[1], seqs[2])
}

func TestInitialSessionCarriesPersistedSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	client := f.service.Client("visitor-1")

	session, err := client.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)

	received := make(chan auth.Change, 1)
	unsubscribe := client.OnAuthStateChange(func(c auth.Change) { received <- c })
	defer unsubscribe()

	select {
	case change := <-received:
		assert.Equal(t, auth.EventInitialSession, change.Event)
		require.NotNil(t, change.Session)
		assert.Equal(t, session.AccessToken, change.Session.AccessToken)
	case <-time.After(time.Second):
		t.Fatal("no INITIAL_SESSION delivered")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	client := f.service.Client("visitor-1")

	events := &collector{}
	unsubscribe := client.OnAuthStateChange(events.listen)
	require.Eventually(t, func() bool { return len(events.events()) == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()

	_, err := client.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, events.events(), 1)
}

func TestOAuthFlow(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	client := f.service.Client("visitor-1")

	redirect, err := client.SignInWithOAuth(ctx, auth.ProviderGoogle, "/gestor")
	require.NoError(t, err)

	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	returnURL, err := f.service.CompleteOAuth(ctx, state, "code-123")
	require.NoError(t, err)
	assert.Equal(t, "/gestor", returnURL)

	session, err := client.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "bruno@example.edu", session.Identity.Email)
	assert.Equal(t, auth.ProviderGoogle, session.Provider)

	// state is single use
	_, err = f.service.CompleteOAuth(ctx, state, "code-123")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestOAuthReusesExistingIdentity(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.provider.email = testEmail

	passwordSession, err := f.service.Client("visitor-1").SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)

	client := f.service.Client("visitor-2")
	redirect, err := client.SignInWithOAuth(ctx, auth.ProviderGoogle, "/app")
	require.NoError(t, err)
	parsed, err := url.Parse(redirect)
	require.NoError(t, err)

	_, err = f.service.CompleteOAuth(ctx, parsed.Query().Get("state"), "code")
	require.NoError(t, err)

	session, err := client.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, passwordSession.Identity.ID, session.Identity.ID)
}

func TestOAuthErrors(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	client := f.service.Client("visitor-1")

	_, err := client.SignInWithOAuth(ctx, "github", "/app")
	assert.ErrorIs(t, err, apperrors.ErrUnsupported)

	_, err = f.service.CompleteOAuth(ctx, "unknown-state", "code")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	redirect, err := client.SignInWithOAuth(ctx, auth.ProviderGoogle, "/app")
	require.NoError(t, err)
	parsed, err := url.Parse(redirect)
	require.NoError(t, err)

	f.provider.err = apperrors.ErrInvalidNonce
	_, err = f.service.CompleteOAuth(ctx, parsed.Query().Get("state"), "code")
	assert.ErrorIs(t, err, apperrors.ErrInvalidNonce)

	session, err := client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestCleanupExpired(t *testing.T) {
	f := setupTestFixture(t)
	assert.NoError(t, f.service.CleanupExpired(context.Background()))
}
