package errors

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccountLocked(t *testing.T) {
	t.Run("RoundsUpMinutes", func(t *testing.T) {
		err := AccountLocked(14*time.Minute + 10*time.Second)
		assert.Equal(t, ErrCodeAccountLocked, err.Code)
		assert.Contains(t, err.Message, "15 minutes")
		assert.Equal(t, (14*time.Minute + 10*time.Second).String(), err.Details["retry_after"])
	})

	t.Run("SingleMinute", func(t *testing.T) {
		err := AccountLocked(20 * time.Second)
		assert.Contains(t, err.Message, "1 minute.")
	})
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := New(ErrCodeNoPasswordSet, "no password")
	wrapped := fmt.Errorf("checking password: %w", inner)

	assert.True(t, IsCode(wrapped, ErrCodeNoPasswordSet))
	assert.False(t, IsCode(wrapped, ErrCodeInvalidCredentials))
	assert.Equal(t, ErrCodeNoPasswordSet, GetCode(wrapped))
	assert.Equal(t, ErrCodeInternal, GetCode(fmt.Errorf("plain")))
}

func TestLoginFailuresShareStatus(t *testing.T) {
	for _, code := range []ErrorCode{ErrCodeInvalidCredentials, ErrCodeNoPasswordSet, ErrCodeUnknownAlgorithm} {
		assert.Equal(t, http.StatusUnauthorized, MapErrorCodeToHTTPStatus(code), string(code))
	}
	assert.Equal(t, http.StatusLocked, AccountLocked(time.Minute).HTTPStatusCode())
	assert.Equal(t, http.StatusInternalServerError, MapErrorCodeToHTTPStatus(ErrCodeMisconfigured))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "nothing %d", 1))
}
