package auth

import (
	"time"

	"github.com/tendant/simple-credential/pkg/credential"
)

// DefaultAdmin is the development-only administrator whose password lives in
// configuration. It is never hashed or stored.
type DefaultAdmin struct {
	Identifier string
	Password   string
}

func (a DefaultAdmin) Enabled() bool {
	return a.Identifier != "" && a.Password != ""
}

// Config is fixed at construction.
type Config struct {
	// MigrateLegacy maps a legacy algorithm tag to the tag a record is
	// re-encoded with on its next successful login.
	MigrateLegacy map[string]string

	DefaultAdmin DefaultAdmin

	AutoLoginLifetime    time.Duration
	ResetLinkBaseURL     string
	NotifyPasswordChange bool

	// LogoutAcrossDevices revokes every remember-me token on logout instead
	// of only the current device's.
	LogoutAcrossDevices bool

	// HistoryCheckCount is how many previous passwords may not be reused.
	HistoryCheckCount int
}

func DefaultConfig() Config {
	return Config{
		MigrateLegacy:     map[string]string{},
		AutoLoginLifetime: credential.DefaultAutoLoginLifetime,
	}
}

func (c Config) migrationTarget(tag string) (string, bool) {
	target, ok := c.MigrateLegacy[tag]
	if !ok || target == "" || target == tag {
		return "", false
	}
	return target, true
}
