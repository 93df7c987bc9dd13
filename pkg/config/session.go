package config

import (
	"time"

	"github.com/tendant/simple-credential/pkg/ratelimit"
)

const defaultJWTSecret = "very-secure-jwt-secret"

// SessionConfig holds the session token settings.
type SessionConfig struct {
	Secret       string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Issuer       string `env:"JWT_ISSUER" env-default:"simple-credential"`
	Expiry       string `env:"SESSION_EXPIRY" env-default:"PT24H"`
	CookieSecure bool   `env:"COOKIE_SECURE" env-default:"false"`
}

func (s SessionConfig) ExpiryDuration() (time.Duration, error) {
	return ParseDuration(s.Expiry)
}

// RateLimitConfig throttles the unauthenticated credential endpoints.
type RateLimitConfig struct {
	Enabled                 bool    `env:"RATELIMIT_ENABLED" env-default:"true"`
	PerIPCapacity           int     `env:"RATELIMIT_PER_IP_CAPACITY" env-default:"30"`
	PerIPRefillRate         float64 `env:"RATELIMIT_PER_IP_REFILL_RATE" env-default:"0.5"`
	PerIdentifierCapacity   int     `env:"RATELIMIT_PER_IDENTIFIER_CAPACITY" env-default:"10"`
	PerIdentifierRefillRate float64 `env:"RATELIMIT_PER_IDENTIFIER_REFILL_RATE" env-default:"0.167"`
	BucketTTL               string  `env:"RATELIMIT_BUCKET_TTL" env-default:"PT1H"`
}

func (r RateLimitConfig) ToRateLimitConfig() (ratelimit.Config, error) {
	ttl, err := ParseDuration(r.BucketTTL)
	if err != nil {
		return ratelimit.Config{}, err
	}
	cfg := ratelimit.DefaultConfig()
	cfg.Enabled = r.Enabled
	cfg.PerIPCapacity = r.PerIPCapacity
	cfg.PerIPRefillRate = r.PerIPRefillRate
	cfg.PerIdentifierCapacity = r.PerIdentifierCapacity
	cfg.PerIdentifierRefillRate = r.PerIdentifierRefillRate
	cfg.BucketTTL = ttl
	return cfg, nil
}
