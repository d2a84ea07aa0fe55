package config

import "time"

type SessionConfig interface {
	GetStartupTimeout() time.Duration
	GetSessionTTL() time.Duration
	GetVisitorIdleTimeout() time.Duration
	GetLoginSettleTimeout() time.Duration
	GetLoginRateLimit() float64
	GetLoginRateBurst() int
	GetTrustProxyHeaders() bool
}

type Session struct{}

var _ SessionConfig = Session{}

// GetStartupTimeout bounds how long a controller may report loading.
func (Session) GetStartupTimeout() time.Duration {
	return GetEnvDuration("SIGEA_STARTUP_TIMEOUT", 5*time.Second)
}

func (Session) GetSessionTTL() time.Duration {
	return GetEnvDuration("SIGEA_SESSION_TTL", 24*time.Hour)
}

func (Session) GetVisitorIdleTimeout() time.Duration {
	return GetEnvDuration("SIGEA_VISITOR_IDLE", 30*time.Minute)
}

// GetLoginSettleTimeout is how long the login handler waits for the auth event
// before redirecting.
func (Session) GetLoginSettleTimeout() time.Duration {
	return 2 * time.Second
}

func (Session) GetLoginRateLimit() float64 {
	return 1 // requests per second per IP
}

func (Session) GetLoginRateBurst() int {
	return 5
}

// GetTrustProxyHeaders reports whether X-Forwarded-For identifies the client.
// Enable only behind a reverse proxy that overwrites the header.
func (Session) GetTrustProxyHeaders() bool {
	return GetEnvBool("SIGEA_TRUST_PROXY_HEADERS", false)
}
