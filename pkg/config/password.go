package config

import (
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/tendant/simple-credential/pkg/passwordpolicy"
)

// PasswordComplexityConfig holds password policy configuration from
// environment variables. Field names match passwordpolicy.Policy.
type PasswordComplexityConfig struct {
	Enabled             bool   `env:"PASSWORD_POLICY_ENABLED" env-default:"true"`
	MinLength           int    `env:"PASSWORD_COMPLEXITY_REQUIRED_LENGTH" env-default:"8"`
	RequireUppercase    bool   `env:"PASSWORD_COMPLEXITY_REQUIRE_UPPERCASE" env-default:"true"`
	RequireLowercase    bool   `env:"PASSWORD_COMPLEXITY_REQUIRE_LOWERCASE" env-default:"true"`
	RequireDigit        bool   `env:"PASSWORD_COMPLEXITY_REQUIRE_DIGIT" env-default:"true"`
	RequireSpecialChar  bool   `env:"PASSWORD_COMPLEXITY_REQUIRE_NON_ALPHANUMERIC" env-default:"true"`
	MinCharacterClasses int    `env:"PASSWORD_COMPLEXITY_MIN_CHARACTER_CLASSES" env-default:"0"`
	DisallowCommonPwds  bool   `env:"PASSWORD_COMPLEXITY_DISALLOW_COMMON_PWDS" env-default:"true"`
	MaxRepeatedChars    int    `env:"PASSWORD_COMPLEXITY_MAX_REPEATED_CHARS" env-default:"3"`
	HistoryCheckCount   int    `env:"PASSWORD_COMPLEXITY_HISTORY_CHECK_COUNT" env-default:"0"`
	CommonPasswordsPath string `env:"PASSWORD_COMPLEXITY_COMMON_PASSWORDS_PATH"`
}

// ToPasswordPolicy converts the configuration to a passwordpolicy.Policy
func (c PasswordComplexityConfig) ToPasswordPolicy() (passwordpolicy.Policy, error) {
	var policy passwordpolicy.Policy
	if err := copier.Copy(&policy, &c); err != nil {
		return passwordpolicy.Policy{}, fmt.Errorf("failed to copy password policy: %w", err)
	}
	return policy, nil
}

func (c PasswordComplexityConfig) validate() ValidationErrors {
	errs := CollectErrors(
		RequireNonNegative("PASSWORD_COMPLEXITY_REQUIRED_LENGTH", c.MinLength),
		RequireNonNegative("PASSWORD_COMPLEXITY_MAX_REPEATED_CHARS", c.MaxRepeatedChars),
		RequireNonNegative("PASSWORD_COMPLEXITY_HISTORY_CHECK_COUNT", c.HistoryCheckCount),
		RequireNonNegative("PASSWORD_COMPLEXITY_MIN_CHARACTER_CLASSES", c.MinCharacterClasses),
	)
	// lowercase, uppercase, digits and punctuation
	if c.MinCharacterClasses > 4 {
		errs = append(errs, ValidationError{
			Field:   "PASSWORD_COMPLEXITY_MIN_CHARACTER_CLASSES",
			Message: fmt.Sprintf("must be at most 4, got %d", c.MinCharacterClasses),
		})
	}
	return errs
}

// DevelopmentDefaults returns relaxed password policy configuration for development
func DevelopmentDefaults() PasswordComplexityConfig {
	return PasswordComplexityConfig{
		Enabled:   false,
		MinLength: 1,
	}
}

// EnterpriseDefaults returns strict password policy configuration for compliance
func EnterpriseDefaults() PasswordComplexityConfig {
	return PasswordComplexityConfig{
		Enabled:            true,
		MinLength:          12,
		RequireUppercase:   true,
		RequireLowercase:   true,
		RequireDigit:       true,
		RequireSpecialChar: true,
		DisallowCommonPwds: true,
		MaxRepeatedChars:   2,
		HistoryCheckCount:  5,
	}
}
