package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// Environment represents different deployment environments
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
	Test        Environment = "test"
)

// ParseEnvironment maps APP_ENV values to an Environment, defaulting to
// development.
func ParseEnvironment(env string) Environment {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	case "test", "testing":
		return Test
	default:
		return Development
	}
}

// ParseDuration accepts ISO-8601 durations (PT15M, P2D) and falls back to Go
// duration strings (15m, 48h).
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	if iso, err := duration.Parse(s); err == nil {
		return iso.ToTimeDuration(), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: expected ISO-8601 (PT15M) or Go format (15m)", s)
	}
	return d, nil
}

// ParseMigrationMap parses "from:to" pairs separated by commas, e.g.
// "md5:md5_v2.4,sha1:sha1_v2.4".
func ParseMigrationMap(s string) (map[string]string, error) {
	m := map[string]string{}
	for _, pair := range splitAndTrim(s, ",") {
		from, to, ok := strings.Cut(pair, ":")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid migration entry %q: expected from:to", pair)
		}
		if _, dup := m[from]; dup {
			return nil, fmt.Errorf("duplicate migration entry for %q", from)
		}
		m[from] = to
	}
	return m, nil
}

// splitAndTrim splits a string by separator and trims each part
// Empty parts are filtered out
func splitAndTrim(s, sep string) []string {
	var parts []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
