// Package passwordpolicy checks candidate passwords against complexity rules
// and a list of commonly used passwords.
package passwordpolicy

import (
	"bufio"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	cerrors "github.com/tendant/simple-credential/pkg/errors"
)

//go:embed common_passwords.txt
var embeddedCommonPasswords string

// Policy defines the requirements for password complexity. Field names match
// config.PasswordComplexityConfig so the two can be copied field by field.
type Policy struct {
	Enabled             bool
	MinLength           int
	RequireUppercase    bool
	RequireLowercase    bool
	RequireDigit        bool
	RequireSpecialChar  bool
	MinCharacterClasses int
	DisallowCommonPwds  bool
	MaxRepeatedChars    int
	HistoryCheckCount   int
	CommonPasswordsPath string
}

// DefaultPolicy returns a default password policy
func DefaultPolicy() Policy {
	return Policy{
		Enabled:            true,
		MinLength:          8,
		RequireUppercase:   true,
		RequireLowercase:   true,
		RequireDigit:       true,
		RequireSpecialChar: true,
		DisallowCommonPwds: true,
		MaxRepeatedChars:   3,
		HistoryCheckCount:  5,
	}
}

var (
	upperRe   = regexp.MustCompile(`[A-Z]`)
	lowerRe   = regexp.MustCompile(`[a-z]`)
	digitRe   = regexp.MustCompile(`[0-9]`)
	specialRe = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// Checker verifies passwords against a Policy.
type Checker struct {
	policy          Policy
	commonPasswords map[string]bool
}

func NewChecker(policy Policy) *Checker {
	return &Checker{
		policy:          policy,
		commonPasswords: loadCommonPasswords(policy.CommonPasswordsPath),
	}
}

func (c *Checker) Policy() Policy {
	return c.policy
}

// Check returns a PasswordComplexity error describing the first rule the
// password breaks.
func (c *Checker) Check(password string) error {
	if !c.policy.Enabled {
		return nil
	}
	p := c.policy

	if len(password) < p.MinLength {
		return complexity(fmt.Sprintf("password must be at least %d characters long", p.MinLength))
	}
	if p.RequireUppercase && !upperRe.MatchString(password) {
		return complexity("password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !lowerRe.MatchString(password) {
		return complexity("password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !digitRe.MatchString(password) {
		return complexity("password must contain at least one digit")
	}
	if p.RequireSpecialChar && !specialRe.MatchString(password) {
		return complexity("password must contain at least one special character")
	}
	if p.MinCharacterClasses > 0 && characterClasses(password) < p.MinCharacterClasses {
		return complexity(fmt.Sprintf("password must mix at least %d of: lowercase, uppercase, digits, punctuation", p.MinCharacterClasses))
	}
	if p.DisallowCommonPwds && c.commonPasswords[strings.ToLower(password)] {
		return complexity("password is too common, please choose a more secure password")
	}
	if p.MaxRepeatedChars > 0 && hasRepeatedChars(password, p.MaxRepeatedChars+1) {
		return complexity(fmt.Sprintf("password cannot contain more than %d consecutive repeated characters", p.MaxRepeatedChars))
	}
	return nil
}

func complexity(msg string) error {
	return cerrors.New(cerrors.ErrCodePasswordComplexity, msg)
}

func characterClasses(password string) int {
	n := 0
	for _, re := range []*regexp.Regexp{lowerRe, upperRe, digitRe, specialRe} {
		if re.MatchString(password) {
			n++
		}
	}
	return n
}

// hasRepeatedChars reports whether password has a run of n identical bytes.
func hasRepeatedChars(password string, n int) bool {
	run := 1
	for i := 1; i < len(password); i++ {
		if password[i] == password[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// loadCommonPasswords reads one password per line from filePath, or the
// built-in list when filePath is empty or unreadable.
func loadCommonPasswords(filePath string) map[string]bool {
	content := embeddedCommonPasswords
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			slog.Warn("Failed to read common passwords file, using built-in list", "path", filePath, "error", err)
		} else {
			content = string(data)
		}
	}

	result := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		result[strings.ToLower(line)] = true
	}
	return result
}
