package local

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sigea-app/sigea/auth"
	"github.com/sigea-app/sigea/auth/authflow"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/sigea-app/sigea/sessions"
	"github.com/sigea-app/sigea/token"
	"golang.org/x/oauth2"
)

const randomValueLength = 32

// Repos holds all repository dependencies for the Service
type Repos struct {
	Credentials CredentialRepo // Identities and password hashes
	Sessions    sessions.Repo  // Session records and visitor bindings
	Flows       authflow.Repo  // Pending OAuth redirects
}

// Service is a self-hosted implementation of the authentication backend.
// Each visitor talks to it through the auth.Backend returned by Client.
type Service struct {
	repos     Repos
	issuer    *token.Issuer
	providers map[string]OAuthProvider
	hub       *hub
	nowTime   func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithProvider enables an OAuth provider under its Name.
func WithProvider(provider OAuthProvider) ServiceOption {
	return func(s *Service) {
		if provider != nil {
			s.providers[provider.Name()] = provider
		}
	}
}

// NewService initializes a Service with required dependencies.
func NewService(repos Repos, issuer *token.Issuer, options ...ServiceOption) (*Service, error) {
	if repos.Credentials == nil {
		return nil, errors.New("[NewService] Credentials repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewService] Sessions repo is required")
	}
	if repos.Flows == nil {
		return nil, errors.New("[NewService] Flows repo is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewService] issuer is required")
	}

	s := &Service{
		repos:     repos,
		issuer:    issuer,
		providers: make(map[string]OAuthProvider),
		hub:       newHub(),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Client returns the backend as seen by one visitor.
func (s *Service) Client(visitorID string) *Client {
	return &Client{service: s, visitorID: visitorID}
}

// Register creates a password identity.
func (s *Service) Register(ctx context.Context, email, password string) (*auth.Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "[Service.Register] email is required")
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] HashPassword")
	}

	credential := &Credential{
		ID:           IdentityID(email),
		Email:        email,
		PasswordHash: hash,
		Provider:     auth.ProviderPassword,
		CreatedAt:    s.nowTime(),
	}
	if err := s.repos.Credentials.Create(ctx, credential); err != nil {
		return nil, errors.Wrap(err, "[Service.Register] Create")
	}
	return &auth.Identity{ID: credential.ID, Email: credential.Email}, nil
}

// CompleteOAuth finishes a provider redirect. It consumes the flow for state,
// signs the flow's visitor in and returns the return URL stored at the start.
func (s *Service) CompleteOAuth(ctx context.Context, state, code string) (string, error) {
	flow, err := s.repos.Flows.Take(state)
	if err != nil {
		return "", err
	}

	provider, ok := s.providers[flow.Provider]
	if !ok {
		return "", errors.Wrapf(apperrors.ErrUnsupported, "[Service.CompleteOAuth] %s", flow.Provider)
	}

	external, err := provider.Exchange(ctx, code, flow.CodeVerifier, flow.Nonce)
	if err != nil {
		return "", err
	}

	identity, err := s.identityForEmail(ctx, external.Email, provider.Name())
	if err != nil {
		return "", err
	}

	if _, err := s.startSession(ctx, flow.VisitorID, *identity, provider.Name()); err != nil {
		return "", err
	}
	return flow.ReturnURL, nil
}

// CleanupExpired drops expired session records and revocation entries.
func (s *Service) CleanupExpired(ctx context.Context) error {
	s.issuer.CleanupRevoked()
	return s.repos.Sessions.DeleteExpired(ctx, s.nowTime())
}

func (s *Service) identityForEmail(ctx context.Context, email, provider string) (*auth.Identity, error) {
	credential, err := s.repos.Credentials.GetByEmail(ctx, email)
	if err == nil {
		return &auth.Identity{ID: credential.ID, Email: credential.Email}, nil
	}
	if !errors.Is(err, apperrors.ErrIdentityNotFound) {
		return nil, errors.Wrap(err, "[Service.identityForEmail] GetByEmail")
	}

	credential = &Credential{
		ID:        IdentityID(email),
		Email:     normalizeEmail(email),
		Provider:  provider,
		CreatedAt: s.nowTime(),
	}
	if err := s.repos.Credentials.Create(ctx, credential); err != nil {
		return nil, errors.Wrap(err, "[Service.identityForEmail] Create")
	}
	log.Info().Str("identity", credential.ID).Str("provider", provider).Msg("identity created on first sign-in")
	return &auth.Identity{ID: credential.ID, Email: credential.Email}, nil
}

func (s *Service) signInWithPassword(ctx context.Context, visitorID, email, password string) (*auth.Session, error) {
	credential, err := s.repos.Credentials.GetByEmail(ctx, email)
	if errors.Is(err, apperrors.ErrIdentityNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrConnectivity, "credential lookup: %v", err)
	}
	if credential.PasswordHash == "" || !CheckPasswordHash(password, credential.PasswordHash) {
		return nil, apperrors.ErrInvalidCredentials
	}

	return s.startSession(ctx, visitorID, auth.Identity{ID: credential.ID, Email: credential.Email}, auth.ProviderPassword)
}

func (s *Service) signInWithOAuth(ctx context.Context, visitorID, providerName, redirectTo string) (string, error) {
	provider, ok := s.providers[providerName]
	if !ok {
		return "", errors.Wrapf(apperrors.ErrUnsupported, "[Service.signInWithOAuth] %s", providerName)
	}

	state := generateRandomString(randomValueLength)
	verifier := oauth2.GenerateVerifier()
	nonce := generateRandomString(randomValueLength)

	if err := s.repos.Flows.Upsert(state, &authflow.AuthFlowState{
		VisitorID:    visitorID,
		Provider:     providerName,
		CodeVerifier: verifier,
		Nonce:        nonce,
		ReturnURL:    redirectTo,
		CreatedAt:    s.nowTime(),
	}); err != nil {
		return "", errors.Wrap(err, "[Service.signInWithOAuth] Upsert")
	}

	return provider.AuthCodeURL(state, verifier, nonce), nil
}

// startSession issues a token for identity, binds it to visitorID in place of
// any previous session and announces SIGNED_IN.
func (s *Service) startSession(ctx context.Context, visitorID string, identity auth.Identity, provider string) (*auth.Session, error) {
	raw, expiresAt, err := s.issuer.Issue(identity, provider)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.startSession] Issue")
	}

	record := &sessions.Record{
		Token:      raw,
		IdentityID: identity.ID,
		Email:      identity.Email,
		Provider:   provider,
		CreatedAt:  s.nowTime(),
		ExpiresAt:  expiresAt,
	}
	if err := s.repos.Sessions.Upsert(ctx, record); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrConnectivity, "store session: %v", err)
	}

	if previous, err := s.repos.Sessions.Bound(ctx, visitorID); err == nil && previous != "" {
		s.discard(ctx, previous)
	}
	if err := s.repos.Sessions.Bind(ctx, visitorID, raw, expiresAt); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrConnectivity, "bind session: %v", err)
	}

	session := record.Session()
	s.hub.publish(visitorID, auth.EventSignedIn, session)
	return session, nil
}

// currentSession returns the live session bound to visitorID. Expired, revoked
// and unknown tokens read as no session and the binding is cleared.
func (s *Service) currentSession(ctx context.Context, visitorID string) (*auth.Session, error) {
	raw, err := s.repos.Sessions.Bound(ctx, visitorID)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrConnectivity, "read binding: %v", err)
	}
	if raw == "" {
		return nil, nil
	}

	if _, err := s.issuer.Parse(raw); err != nil {
		log.Debug().Err(err).Str("visitor", visitorID).Msg("dropping unusable session token")
		s.discard(ctx, raw)
		_ = s.repos.Sessions.Unbind(ctx, visitorID)
		return nil, nil
	}

	record, err := s.repos.Sessions.Get(ctx, raw)
	if errors.Is(err, apperrors.ErrSessionNotFound) || errors.Is(err, apperrors.ErrSessionExpired) {
		_ = s.repos.Sessions.Unbind(ctx, visitorID)
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrConnectivity, "read session: %v", err)
	}
	return record.Session(), nil
}

func (s *Service) signOut(ctx context.Context, visitorID string) error {
	raw, err := s.repos.Sessions.Bound(ctx, visitorID)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrConnectivity, "read binding: %v", err)
	}

	if raw != "" {
		s.discard(ctx, raw)
		if err := s.repos.Sessions.Unbind(ctx, visitorID); err != nil {
			return apperrors.Wrapf(apperrors.ErrConnectivity, "unbind session: %v", err)
		}
	}

	s.hub.publish(visitorID, auth.EventSignedOut, nil)
	return nil
}

// discard revokes raw and deletes its record. Failures are logged only.
func (s *Service) discard(ctx context.Context, raw string) {
	if err := s.issuer.Revoke(raw); err != nil {
		log.Warn().Err(err).Msg("failed to revoke session token")
	}
	if err := s.repos.Sessions.Delete(ctx, raw); err != nil {
		log.Warn().Err(err).Msg("failed to delete session record")
	}
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
