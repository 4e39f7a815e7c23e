package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"
)

// MinJWTSecretLength is the shortest signing secret accepted at startup.
const MinJWTSecretLength = 32

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	AppURL            string        `envconfig:"APP_URL" default:"http://localhost:3000"`
	AppName           string        `envconfig:"APP_NAME" default:"Identity"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	PGDSN     string `envconfig:"PG_DSN" required:"true"`
	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	JWTSecret          string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL           time.Duration `envconfig:"TOKEN_TTL" default:"168h"`
	BcryptCost         int           `envconfig:"BCRYPT_COST" default:"10"`
	LoginLookupTimeout time.Duration `envconfig:"LOGIN_LOOKUP_TIMEOUT" default:"10s"`
	SetupTokenTTL      time.Duration `envconfig:"SETUP_TOKEN_TTL" default:"24h"`
	ResetTokenTTL      time.Duration `envconfig:"RESET_TOKEN_TTL" default:"1h"`
	LoginRateLimit     int           `envconfig:"LOGIN_RATE_LIMIT" default:"10"`
	GlobalRateLimit    int           `envconfig:"GLOBAL_RATE_LIMIT" default:"120"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"no-reply@identity.local"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`

	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"5"`
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	secret := strings.TrimSpace(c.JWTSecret)
	if secret == "" {
		return errors.New("jwt secret must be provided")
	}
	if len(secret) < MinJWTSecretLength {
		return fmt.Errorf("jwt secret must be at least %d bytes", MinJWTSecretLength)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.LoginLookupTimeout <= 0 {
		return errors.New("login lookup timeout must be positive")
	}
	if c.SetupTokenTTL <= 0 || c.ResetTokenTTL <= 0 {
		return errors.New("password link ttl must be positive")
	}
	if c.LoginRateLimit <= 0 || c.GlobalRateLimit <= 0 {
		return errors.New("rate limits must be positive")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// IsDevelopment reports whether internal error detail may be exposed.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}
