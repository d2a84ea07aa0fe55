package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config interface {
	EnvConfig
	BackendConfig
	SessionConfig
	CorsConfig
	OAuthConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
	GetLogLevel() string
	GetDatabaseURL() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetSeedFile() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Backend
	Session
	Cors
	OAuth
}

// New loads an optional .env file and returns the environment backed config.
func New() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}
	return mainConfig{}
}
