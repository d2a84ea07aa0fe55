package errors

import (
	"errors"
	"fmt"
)

// Common error types for the SIGEA session service
var (
	// Configuration errors
	ErrConfiguration = errors.New("backend client not configured")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password does not meet strength requirements")
	ErrIdentityExists     = errors.New("identity already exists")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrUnsupported        = errors.New("unsupported provider")

	// Connectivity errors
	ErrConnectivity = errors.New("backend unreachable")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// OAuth flow errors
	ErrInvalidState = errors.New("invalid oauth state")
	ErrInvalidNonce = errors.New("invalid nonce")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Classify maps an error returned by the auth backend onto the taxonomy shown
// to users: configuration, credentials or connectivity. Unknown errors are
// treated as connectivity failures.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConfiguration):
		return ErrConfiguration
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrWeakPassword):
		return ErrInvalidCredentials
	default:
		return ErrConnectivity
	}
}
