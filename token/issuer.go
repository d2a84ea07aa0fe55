package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sigea-app/sigea/auth"
	apperrors "github.com/sigea-app/sigea/internal/errors"
)

const minSecretLength = 16

// Claims carried by a session access token
type Claims struct {
	Email    string `json:"email,omitempty"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 session tokens.
type Issuer struct {
	secret  []byte
	issuer  string
	expiry  time.Duration
	revoked RevokedTokenCache
	nowTime func() time.Time
}

// IssuerOption defines a function type to modify the Issuer instance.
type IssuerOption func(*Issuer)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowTime = nowFunc
	}
}

// WithRevokedTokenCache replaces the default in-memory revocation cache
func WithRevokedTokenCache(cache RevokedTokenCache) IssuerOption {
	return func(i *Issuer) {
		i.revoked = cache
	}
}

// NewIssuer creates an issuer. secret is the backend key, issuer the backend URL.
func NewIssuer(secret []byte, issuer string, expiry time.Duration, options ...IssuerOption) (*Issuer, error) {
	if len(secret) < minSecretLength {
		return nil, errors.Errorf("[NewIssuer] secret must be at least %d bytes", minSecretLength)
	}
	if issuer == "" {
		return nil, errors.New("[NewIssuer] issuer is required")
	}
	if expiry <= 0 {
		return nil, errors.New("[NewIssuer] expiry must be positive")
	}

	i := &Issuer{
		secret:  secret,
		issuer:  issuer,
		expiry:  expiry,
		revoked: NewInMemoryRevokedTokenCache(),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(i)
	}
	return i, nil
}

// Issue signs a new access token for identity and returns it with its expiry.
func (i *Issuer) Issue(identity auth.Identity, provider string) (string, time.Time, error) {
	now := i.nowTime()
	expiresAt := now.Add(i.expiry)

	claims := Claims{
		Email:    identity.Email,
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "[Issuer.Issue] SignedString")
	}
	// JWT times have second precision, report what the token actually says
	return signed, claims.ExpiresAt.Time, nil
}

// Parse validates signature, issuer, expiry and revocation of raw.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.nowTime),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, apperrors.ErrTokenExpired
	}
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%v", err)
	}
	if i.revoked.IsRevoked(claims.ID) {
		return nil, apperrors.ErrTokenRevoked
	}
	return claims, nil
}

// Revoke marks raw as revoked until its own expiry. Invalid tokens are ignored.
func (i *Issuer) Revoke(raw string) error {
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	return i.revoked.Add(claims.ID, claims.ExpiresAt.Time)
}

// CleanupRevoked drops revocation entries whose tokens have expired anyway
func (i *Issuer) CleanupRevoked() {
	i.revoked.Cleanup()
}
