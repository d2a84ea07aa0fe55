package config

import (
	"time"

	apperrors "github.com/sigea-app/sigea/internal/errors"
)

// BackendConfig describes how to reach the auth backend. Either value
// missing is a configuration error, not a fatal one.
type BackendConfig interface {
	GetBackendURL() string
	GetBackendKey() string
	ValidateBackend() error
}

type OAuthConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetOAuthFlowTimeout() time.Duration
}

type Backend struct{}

var _ BackendConfig = Backend{}

func (Backend) GetBackendURL() string {
	return GetEnv("SIGEA_BACKEND_URL", "")
}

func (Backend) GetBackendKey() string {
	return GetEnv("SIGEA_BACKEND_KEY", "")
}

func (b Backend) ValidateBackend() error {
	if b.GetBackendURL() == "" {
		return apperrors.Wrapf(apperrors.ErrConfiguration, "SIGEA_BACKEND_URL is not set")
	}
	if b.GetBackendKey() == "" {
		return apperrors.Wrapf(apperrors.ErrConfiguration, "SIGEA_BACKEND_KEY is not set")
	}
	return nil
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetGoogleClientID() string {
	return GetEnv("GOOGLE_CLIENT_ID", "")
}

func (OAuth) GetGoogleClientSecret() string {
	return GetEnv("GOOGLE_CLIENT_SECRET", "")
}

func (OAuth) GetOAuthFlowTimeout() time.Duration {
	return 10 * time.Minute
}
