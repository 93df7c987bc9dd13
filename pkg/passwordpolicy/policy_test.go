package passwordpolicy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cerrors "github.com/tendant/simple-credential/pkg/errors"
)

func TestCheck(t *testing.T) {
	checker := NewChecker(DefaultPolicy())

	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{"Valid", "Tr0ub4dor&3", ""},
		{"TooShort", "Ab1!", "at least 8 characters"},
		{"NoUppercase", "tr0ub4dor&3", "uppercase"},
		{"NoLowercase", "TR0UB4DOR&3", "lowercase"},
		{"NoDigit", "Troubador&x", "digit"},
		{"NoSpecial", "Tr0ub4dor33", "special"},
		{"Repeated", "Tr0ub4dorrrr&3", "consecutive"},
		{"ThreeRepeatsAllowed", "Tr0ub4dorrr&3", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.Check(tt.password)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, cerrors.IsCode(err, cerrors.ErrCodePasswordComplexity))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCommonPasswords(t *testing.T) {
	policy := Policy{Enabled: true, DisallowCommonPwds: true}

	assert.Error(t, NewChecker(policy).Check("Password1"))
	assert.NoError(t, NewChecker(policy).Check("not-in-any-list"))

	t.Run("FromFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "common.txt")
		require.NoError(t, os.WriteFile(path, []byte("hunter2\n"), 0o600))
		policy.CommonPasswordsPath = path

		checker := NewChecker(policy)
		assert.Error(t, checker.Check("Hunter2"))
		assert.NoError(t, checker.Check("password1"))
	})
}

func TestMinCharacterClasses(t *testing.T) {
	checker := NewChecker(Policy{Enabled: true, MinCharacterClasses: 3})
	assert.Error(t, checker.Check("onlylower"))
	assert.NoError(t, checker.Check("lower1UPPER"))
}

func TestDisabledPolicyAcceptsAnything(t *testing.T) {
	assert.NoError(t, NewChecker(Policy{MinLength: 50}).Check(""))
}
