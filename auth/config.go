package auth

import (
	"fmt"
	"time"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// Config configures bearer-token authentication of the control API.
type Config struct {
	// Enabled controls whether the API requires a token.
	Enabled bool `mapstructure:"enabled"`

	// Secret is the HS256 signing key.
	Secret string `mapstructure:"secret"`

	// Issuer is the "iss" claim written and required (default: service name).
	Issuer string `mapstructure:"issuer"`

	// TTL is the lifetime of minted tokens (default: 24h).
	TTL time.Duration `mapstructure:"ttl"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Issuer == "" {
		c.Issuer = "mmrunner"
	}
	if c.TTL == 0 {
		c.TTL = 24 * time.Hour
	}
}

// Validate checks the configuration. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Secret) < MinSecretLength {
		return fmt.Errorf("auth.secret must be at least %d characters", MinSecretLength)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("auth.ttl must be positive")
	}
	return nil
}

// Describe returns a human-readable one-liner for the startup summary.
func (c *Config) Describe() string {
	if !c.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("JWT(HS256) issuer=%s TTL=%s", c.Issuer, c.TTL)
}
