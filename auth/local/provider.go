package local

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/sigea-app/sigea/auth"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	"golang.org/x/oauth2"
)

const googleIssuer = "https://accounts.google.com"

// ExternalIdentity is what an OAuth provider tells us about the user after a
// successful code exchange.
type ExternalIdentity struct {
	Subject string
	Email   string
	Name    string
}

// OAuthProvider is a redirect-based identity provider.
type OAuthProvider interface {
	Name() string

	// AuthCodeURL builds the provider URL for state, binding the PKCE verifier and nonce.
	AuthCodeURL(state, verifier, nonce string) string

	// Exchange trades code for a verified identity. The ID token nonce must match.
	Exchange(ctx context.Context, code, verifier, nonce string) (*ExternalIdentity, error)
}

// GoogleProvider signs users in with Google OpenID Connect.
type GoogleProvider struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
}

var _ OAuthProvider = (*GoogleProvider)(nil)

// NewGoogleProvider discovers Google's OIDC configuration. redirectURL is the
// server's callback route.
func NewGoogleProvider(ctx context.Context, clientID, clientSecret, redirectURL string) (*GoogleProvider, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("[NewGoogleProvider] client id and secret are required")
	}

	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, errors.Wrap(err, "[NewGoogleProvider] oidc.NewProvider")
	}

	return &GoogleProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (g *GoogleProvider) Name() string {
	return auth.ProviderGoogle
}

func (g *GoogleProvider) AuthCodeURL(state, verifier, nonce string) string {
	return g.oauth2Config.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oidc.Nonce(nonce),
	)
}

func (g *GoogleProvider) Exchange(ctx context.Context, code, verifier, nonce string) (*ExternalIdentity, error) {
	oauth2Token, err := g.oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, errors.Wrap(err, "[GoogleProvider.Exchange] token exchange")
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("[GoogleProvider.Exchange] no id_token in response")
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[GoogleProvider.Exchange] verify id_token")
	}

	var claims struct {
		Nonce         string `json:"nonce"`
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[GoogleProvider.Exchange] claims")
	}

	if claims.Nonce != nonce {
		return nil, apperrors.ErrInvalidNonce
	}
	if claims.Email == "" || !claims.EmailVerified {
		return nil, errors.Wrap(apperrors.ErrInvalidCredentials, "[GoogleProvider.Exchange] email not verified")
	}

	return &ExternalIdentity{
		Subject: claims.Sub,
		Email:   claims.Email,
		Name:    claims.Name,
	}, nil
}
