package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/simple-credential/pkg/auth"
	"github.com/tendant/simple-credential/pkg/encoder"
	"github.com/tendant/simple-credential/pkg/identity"
	"github.com/tendant/simple-credential/pkg/lockout"
)

// CredentialConfig controls how passwords and tokens are stored.
type CredentialConfig struct {
	DefaultAlgorithm string `env:"CREDENTIAL_DEFAULT_ALGORITHM" env-default:"argon2id"`
	MigrateLegacy    string `env:"CREDENTIAL_MIGRATE_LEGACY" env-default:"md5:md5_v2.4,sha1:sha1_v2.4"`
	PBKDF2Iterations int    `env:"CREDENTIAL_PBKDF2_ITERATIONS" env-default:"0"`
	BcryptCost       int    `env:"CREDENTIAL_BCRYPT_COST" env-default:"0"`

	// DatabaseHash registers the db_native encoder backed by Postgres.
	DatabaseHash bool `env:"CREDENTIAL_DATABASE_HASH" env-default:"false"`

	UniqueIdentifierField string `env:"UNIQUE_IDENTIFIER_FIELD" env-default:"email"`
	TempTokenTTL          string `env:"TEMP_TOKEN_TTL" env-default:"PT2H"`
	PasswordExpiryDays    int    `env:"PASSWORD_EXPIRY_DAYS" env-default:"0"`

	AutoLoginTokenLifetime string `env:"AUTO_LOGIN_TOKEN_LIFETIME" env-default:"P2D"`
	ResetLinkBaseURL       string `env:"RESET_LINK_BASE_URL" env-default:"http://localhost:3000/password/reset"`
	NotifyPasswordChange   bool   `env:"NOTIFY_PASSWORD_CHANGE" env-default:"false"`
	LoginRecordingEnabled  bool   `env:"LOGIN_RECORDING_ENABLED" env-default:"true"`
}

// EncoderOptions returns the registry options for the configured cost
// parameters. Zero values keep the encoder defaults.
func (c CredentialConfig) EncoderOptions() []encoder.Option {
	var opts []encoder.Option
	if c.PBKDF2Iterations > 0 {
		opts = append(opts, encoder.WithPBKDF2Iterations(c.PBKDF2Iterations))
	}
	if c.BcryptCost > 0 {
		opts = append(opts, encoder.WithBcryptCost(c.BcryptCost))
	}
	return opts
}

func (c CredentialConfig) IdentifierField() (identity.Field, error) {
	return identity.ParseField(c.UniqueIdentifierField)
}

func (c CredentialConfig) TempTokenDuration() (time.Duration, error) {
	return ParseDuration(c.TempTokenTTL)
}

type LockoutConfig struct {
	// Threshold of zero disables lockout.
	Threshold int    `env:"LOCKOUT_THRESHOLD" env-default:"0"`
	Duration  string `env:"LOCKOUT_DURATION" env-default:"PT15M"`
}

func (l LockoutConfig) Policy() (lockout.Policy, error) {
	d, err := ParseDuration(l.Duration)
	if err != nil {
		return lockout.Policy{}, err
	}
	return lockout.Policy{Threshold: l.Threshold, Duration: d}, nil
}

type RememberMeConfig struct {
	TokenExpiryDays     int  `env:"REMEMBER_ME_TOKEN_EXPIRY_DAYS" env-default:"30"`
	DeviceExpiryDays    int  `env:"REMEMBER_ME_DEVICE_EXPIRY_DAYS" env-default:"365"`
	LogoutAcrossDevices bool `env:"REMEMBER_ME_LOGOUT_ACROSS_DEVICES" env-default:"false"`
}

// DefaultAdminConfig enables a configuration-only administrator when both
// fields are set. Development use only.
type DefaultAdminConfig struct {
	Username string `env:"DEFAULT_ADMIN_USERNAME"`
	Password string `env:"DEFAULT_ADMIN_PASSWORD"`
}

// SecurityConfig is the complete configuration of the credential service.
type SecurityConfig struct {
	AppEnv string `env:"APP_ENV" env-default:"development"`

	Credential         CredentialConfig
	Lockout            LockoutConfig
	RememberMe         RememberMeConfig
	DefaultAdmin       DefaultAdminConfig
	PasswordComplexity PasswordComplexityConfig
	Session            SessionConfig
	RateLimit          RateLimitConfig
	Database           DatabaseConfig
	Email              EmailConfig
}

// Load reads the configuration from path when given, otherwise from the
// environment only.
func Load(path string) (SecurityConfig, error) {
	var cfg SecurityConfig
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return SecurityConfig{}, fmt.Errorf("failed to read configuration: %w", err)
	}
	return cfg, nil
}

func (c SecurityConfig) Environment() Environment {
	return ParseEnvironment(c.AppEnv)
}

// Validate checks the configuration against the tags of the encoder
// registry the service will run with.
func (c SecurityConfig) Validate(registeredTags []string) error {
	return Validate(
		func() ValidationErrors { return c.validateCredential(registeredTags) },
		c.validateDurations,
		c.validateDefaultAdmin,
		c.validateSession,
		c.PasswordComplexity.validate,
		c.Database.validate,
		c.Email.validate,
	)
}

func (c SecurityConfig) validateCredential(registeredTags []string) ValidationErrors {
	cc := c.Credential
	errs := CollectErrors(
		RequireNonEmpty("CREDENTIAL_DEFAULT_ALGORITHM", cc.DefaultAlgorithm),
		WhenSet(cc.DefaultAlgorithm, func() *ValidationError {
			return RequireSelectableAlgorithm("CREDENTIAL_DEFAULT_ALGORITHM", cc.DefaultAlgorithm, registeredTags)
		}),
		RequireOneOf("UNIQUE_IDENTIFIER_FIELD", cc.UniqueIdentifierField, []string{string(identity.FieldEmail), string(identity.FieldUsername)}),
		RequireNonNegative("PASSWORD_EXPIRY_DAYS", cc.PasswordExpiryDays),
		RequireNonNegative("LOCKOUT_THRESHOLD", c.Lockout.Threshold),
		RequirePositive("REMEMBER_ME_TOKEN_EXPIRY_DAYS", c.RememberMe.TokenExpiryDays),
		RequirePositive("REMEMBER_ME_DEVICE_EXPIRY_DAYS", c.RememberMe.DeviceExpiryDays),
	)

	migrations, err := ParseMigrationMap(cc.MigrateLegacy)
	if err != nil {
		return append(errs, ValidationError{Field: "CREDENTIAL_MIGRATE_LEGACY", Message: err.Error()})
	}
	for from, to := range migrations {
		if v := RequireSelectableAlgorithm("CREDENTIAL_MIGRATE_LEGACY", to, registeredTags); v != nil {
			v.Message = fmt.Sprintf("target of %q: %s", from, v.Message)
			errs = append(errs, *v)
		}
	}

	if cc.NotifyPasswordChange || c.Email.Enabled {
		if v := RequireValidURL("RESET_LINK_BASE_URL", cc.ResetLinkBaseURL); v != nil {
			errs = append(errs, *v)
		}
	}
	return errs
}

func (c SecurityConfig) validateDurations() ValidationErrors {
	return CollectErrors(
		RequireDuration("LOCKOUT_DURATION", c.Lockout.Duration, c.Lockout.Threshold > 0),
		RequireDuration("TEMP_TOKEN_TTL", c.Credential.TempTokenTTL, false),
		RequireDuration("AUTO_LOGIN_TOKEN_LIFETIME", c.Credential.AutoLoginTokenLifetime, true),
		RequireDuration("SESSION_EXPIRY", c.Session.Expiry, true),
		RequireDuration("RATELIMIT_BUCKET_TTL", c.RateLimit.BucketTTL, false),
	)
}

func (c SecurityConfig) validateDefaultAdmin() ValidationErrors {
	a := c.DefaultAdmin
	if a.Username == "" && a.Password == "" {
		return nil
	}
	errs := CollectErrors(
		RequireNonEmpty("DEFAULT_ADMIN_USERNAME", a.Username),
		RequireNonEmpty("DEFAULT_ADMIN_PASSWORD", a.Password),
	)
	if c.Environment() == Production {
		errs = append(errs, ValidationError{Field: "DEFAULT_ADMIN_USERNAME", Message: "default admin is not allowed in production"})
	}
	return errs
}

func (c SecurityConfig) validateSession() ValidationErrors {
	errs := CollectErrors(RequireNonEmpty("JWT_SECRET", c.Session.Secret))
	if c.Environment() == Production && c.Session.Secret == defaultJWTSecret {
		errs = append(errs, ValidationError{Field: "JWT_SECRET", Message: "must be changed from the default in production"})
	}
	return errs
}

// AuthConfig builds the immutable configuration of the authentication
// service. Validate should have been called first.
func (c SecurityConfig) AuthConfig() (auth.Config, error) {
	migrations, err := ParseMigrationMap(c.Credential.MigrateLegacy)
	if err != nil {
		return auth.Config{}, err
	}
	lifetime, err := ParseDuration(c.Credential.AutoLoginTokenLifetime)
	if err != nil {
		return auth.Config{}, err
	}

	cfg := auth.DefaultConfig()
	cfg.MigrateLegacy = migrations
	cfg.DefaultAdmin = auth.DefaultAdmin{Identifier: c.DefaultAdmin.Username, Password: c.DefaultAdmin.Password}
	cfg.AutoLoginLifetime = lifetime
	cfg.ResetLinkBaseURL = c.Credential.ResetLinkBaseURL
	cfg.NotifyPasswordChange = c.Credential.NotifyPasswordChange
	cfg.LogoutAcrossDevices = c.RememberMe.LogoutAcrossDevices
	cfg.HistoryCheckCount = c.PasswordComplexity.HistoryCheckCount
	return cfg, nil
}
