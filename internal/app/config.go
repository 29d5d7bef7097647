package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	AppAddr         string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout  time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	GatewayURL         string        `envconfig:"GATEWAY_URL" required:"true"`
	GatewayRealtimeURL string        `envconfig:"GATEWAY_REALTIME_URL" required:"true"`
	GatewayAPIKey      string        `envconfig:"GATEWAY_API_KEY" required:"true"`
	GatewayToken       string        `envconfig:"GATEWAY_TOKEN"`
	GatewayTimeout     time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"15s"`

	RoleCacheTTL time.Duration `envconfig:"ROLE_CACHE_TTL" default:"5m"`

	AttachmentBucket string `envconfig:"ATTACHMENT_BUCKET" default:"attachments"`

	RateLimit       int           `envconfig:"RATE_LIMIT" default:"120"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.GatewayURL == "" {
		return nil, errors.New("gateway url must be provided")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
