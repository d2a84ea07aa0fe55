package config_test

import (
	"testing"
	"time"

	"github.com/sigea-app/sigea/internal/config"
	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBackend(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		key     string
		wantErr bool
	}{
		{"both set", "https://auth.sigea.test", "0123456789abcdef", false},
		{"missing url", "", "0123456789abcdef", true},
		{"missing key", "https://auth.sigea.test", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SIGEA_BACKEND_URL", tt.url)
			t.Setenv("SIGEA_BACKEND_KEY", tt.key)

			err := config.Backend{}.ValidateBackend()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.Is(err, apperrors.ErrConfiguration))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSessionDurations(t *testing.T) {
	t.Setenv("SIGEA_STARTUP_TIMEOUT", "")
	assert.Equal(t, 5*time.Second, config.Session{}.GetStartupTimeout())

	t.Setenv("SIGEA_STARTUP_TIMEOUT", "750ms")
	assert.Equal(t, 750*time.Millisecond, config.Session{}.GetStartupTimeout())

	t.Setenv("SIGEA_SESSION_TTL", "not a duration")
	assert.Equal(t, 24*time.Hour, config.Session{}.GetSessionTTL())

	t.Setenv("SIGEA_VISITOR_IDLE", "-1m")
	assert.Equal(t, 30*time.Minute, config.Session{}.GetVisitorIdleTimeout())
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", " https://sigea.example , ,http://localhost:3000")

	origins := config.Cors{}.GetAllowedOrigins()
	assert.Len(t, origins, 2)
	assert.True(t, origins.IsAllowedOrigin("https://sigea.example"))
	assert.True(t, origins.IsAllowedOrigin("http://localhost:3000"))
	assert.False(t, origins.IsAllowedOrigin("https://evil.example"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("SIGEA_TEST_INT", "7")
	assert.Equal(t, 7, config.GetEnvInt("SIGEA_TEST_INT", 1))

	t.Setenv("SIGEA_TEST_INT", "seven")
	assert.Equal(t, 1, config.GetEnvInt("SIGEA_TEST_INT", 1))
}

func TestGetTrustProxyHeaders(t *testing.T) {
	c := config.New()
	assert.False(t, c.GetTrustProxyHeaders())

	t.Setenv("SIGEA_TRUST_PROXY_HEADERS", "true")
	assert.True(t, c.GetTrustProxyHeaders())

	t.Setenv("SIGEA_TRUST_PROXY_HEADERS", "sometimes")
	assert.False(t, c.GetTrustProxyHeaders())
}
