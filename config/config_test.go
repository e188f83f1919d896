package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name     string
		config   *Config
		expected bool
	}{
		{
			name: "development environment",
			config: &Config{
				Server: ServerConfig{AppEnv: "development"},
			},
			expected: true,
		},
		{
			name: "debug gin mode",
			config: &Config{
				Server: ServerConfig{GinMode: "debug"},
			},
			expected: true,
		},
		{
			name: "production environment",
			config: &Config{
				Server: ServerConfig{AppEnv: "production"},
			},
			expected: false,
		},
		{
			name: "release mode",
			config: &Config{
				Server: ServerConfig{GinMode: "release", AppEnv: "production"},
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.config.IsDevelopment()
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := &Config{
		Database: DatabaseConfig{URL: "postgres://localhost:5432/pklhub"},
		Session:  SessionConfig{JWTSecret: "secret", SessionTTLHours: 24},
	}
	assert.NoError(t, valid.Validate())

	missingDB := &Config{
		Session: SessionConfig{JWTSecret: "secret", SessionTTLHours: 24},
	}
	err := missingDB.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	missingSecret := &Config{
		Database: DatabaseConfig{URL: "postgres://localhost:5432/pklhub"},
		Session:  SessionConfig{SessionTTLHours: 24},
	}
	err = missingSecret.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	badTTL := &Config{
		Database: DatabaseConfig{URL: "postgres://localhost:5432/pklhub"},
		Session:  SessionConfig{JWTSecret: "secret"},
	}
	err = badTTL.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_TTL_HOURS")
}

func TestConfig_HasStorage(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.HasStorage())

	cfg.Storage = StorageConfig{
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		BucketName:      "avatars",
	}
	assert.True(t, cfg.HasStorage())
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/pklhub")
	t.Setenv("JWT_SECRET", "test-secret")

	// Make sure ambient env from the host doesn't leak into defaults
	os.Unsetenv("PORT")
	os.Unsetenv("APP_ENV")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.AppEnv)
	assert.Equal(t, "pklhub-api", cfg.Session.JWTIssuer)
	assert.Equal(t, 24, cfg.Session.SessionTTLHours)
	assert.Equal(t, 300, cfg.Cache.ProfileTTLSeconds)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
}
