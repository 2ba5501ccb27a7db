package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ServerPort:      "8080",
		DatabaseURL:     "postgres://localhost:5432/demoweb",
		TokenSecret:     "secret",
		TokenAccessTTL:  15 * time.Minute,
		TokenRefreshTTL: 168 * time.Hour,
		RequestTimeout:  30 * time.Second,
		BcryptCost:      12,
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRequiresTokenSecret(t *testing.T) {
	cfg := validConfig()
	cfg.TokenSecret = "  "
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresSaneTTLs(t *testing.T) {
	cfg := validConfig()
	cfg.TokenAccessTTL = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.TokenRefreshTTL = cfg.TokenAccessTTL
	assert.Error(t, cfg.Validate())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "env-secret")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/demoweb")
	t.Setenv("TOKEN_ACCESS_TTL", "5m")
	t.Setenv("AUTH_RATE_LIMIT_RPM", "42")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.TokenSecret)
	assert.Equal(t, 5*time.Minute, cfg.TokenAccessTTL)
	assert.Equal(t, 42, cfg.AuthRateLimitRPM)
	assert.Equal(t, "8080", cfg.ServerPort)
}

func TestLoadFailsWithoutSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/demoweb")

	_, err := Load()
	assert.Error(t, err)
}
