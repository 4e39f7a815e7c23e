package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSecret = "0123456789abcdef0123456789abcdef"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://identity@localhost/identity")
	t.Setenv("JWT_SECRET", validSecret)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 168*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, 10*time.Second, cfg.LoginLookupTimeout)
	assert.Equal(t, 24*time.Hour, cfg.SetupTokenTTL)
	assert.Equal(t, time.Hour, cfg.ResetTokenTTL)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://identity@localhost/identity")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			JWTSecret:          validSecret,
			BcryptCost:         10,
			TokenTTL:           time.Hour,
			LoginLookupTimeout: time.Second,
			SetupTokenTTL:      time.Hour,
			ResetTokenTTL:      time.Hour,
			LoginRateLimit:     10,
			GlobalRateLimit:    100,
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"blank secret", func(c *Config) { c.JWTSecret = "   " }, false},
		{"short secret", func(c *Config) { c.JWTSecret = "too-short" }, false},
		{"cost too low", func(c *Config) { c.BcryptCost = 3 }, false},
		{"cost too high", func(c *Config) { c.BcryptCost = 32 }, false},
		{"zero token ttl", func(c *Config) { c.TokenTTL = 0 }, false},
		{"zero lookup timeout", func(c *Config) { c.LoginLookupTimeout = 0 }, false},
		{"zero reset ttl", func(c *Config) { c.ResetTokenTTL = 0 }, false},
		{"zero login limit", func(c *Config) { c.LoginRateLimit = 0 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
