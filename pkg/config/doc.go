// Package config loads and validates the credential service configuration.
//
// Configuration comes from environment variables, optionally seeded from a
// file, through cleanenv struct tags. Durations accept ISO-8601 (PT15M, P2D)
// as well as Go duration strings (15m, 48h).
//
// # Loading
//
//	cfg, err := config.Load("")
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(registry.Tags()); err != nil {
//		return err
//	}
//	authConfig, err := cfg.AuthConfig()
//
// Validate collects every problem rather than stopping at the first one, so
// a misconfigured deployment reports all of its errors at startup:
//
//	configuration validation failed:
//	  - CREDENTIAL_DEFAULT_ALGORITHM: must be one of [...], got "scrypt"
//	  - DEFAULT_ADMIN_USERNAME: default admin is not allowed in production
//
// # Credential settings
//
//	CREDENTIAL_DEFAULT_ALGORITHM    encoder tag for new passwords (argon2id)
//	CREDENTIAL_MIGRATE_LEGACY       from:to pairs re-encoded on login
//	UNIQUE_IDENTIFIER_FIELD         email or username
//	TEMP_TOKEN_TTL                  lifetime of admin-issued temp tokens
//	PASSWORD_EXPIRY_DAYS            0 disables password expiry
//	AUTO_LOGIN_TOKEN_LIFETIME       lifetime of auto-login tokens
//	LOCKOUT_THRESHOLD               0 disables lockout
//	LOCKOUT_DURATION                how long a locked account stays locked
//	DEFAULT_ADMIN_USERNAME          development-only admin account
//	DEFAULT_ADMIN_PASSWORD
//
// # Validation helpers
//
// The Require* helpers return nil on success so they compose with
// CollectErrors:
//
//	errs := config.CollectErrors(
//		config.RequireNonEmpty("EMAIL_HOST", cfg.Host),
//		config.RequireValidPort("EMAIL_PORT", cfg.Port),
//	)
package config
