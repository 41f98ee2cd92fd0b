package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// RateLimitConfig tunes the token bucket guarding the credential endpoints
// (login, signup and the one-time token requests).
type RateLimitConfig struct {
	Enabled        bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"10"`
	RefillTokens   int           `env:"RATE_LIMIT_REFILL_TOKENS" envDefault:"1"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"6s"`
	TTL            time.Duration `env:"RATE_LIMIT_TTL" envDefault:"10m"`
	KeyStrategy    string        `env:"RATE_LIMIT_KEY_STRATEGY" envDefault:"ip_route"`
	Prefix         string        `env:"RATE_LIMIT_PREFIX" envDefault:"rl:auth"`
	Debug          bool          `env:"RATE_LIMIT_DEBUG" envDefault:"false"`
}

// LoadRateLimitConfig reads RateLimitConfig from the environment. Values
// that do not parse are an error; parsable but out-of-range values are
// clamped.
func LoadRateLimitConfig() (RateLimitConfig, error) {
	var rl RateLimitConfig
	if err := env.Parse(&rl); err != nil {
		return RateLimitConfig{}, fmt.Errorf("parse rate limit env: %w", err)
	}
	return rl.normalize(), nil
}

func (c RateLimitConfig) normalize() RateLimitConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}
