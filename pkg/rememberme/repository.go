package rememberme

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrTokenNotFound = errors.New("remember-me token not found")

// Token is the stored form of a remember-me credential. Only the hash of the
// token handed to the client is kept.
type Token struct {
	ID         uuid.UUID `json:"id"`
	IdentityID uuid.UUID `json:"identity_id"`
	DeviceID   string    `json:"device_id"`
	TokenHash  string    `json:"-"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsExpired reports whether the token can no longer be used at now.
func (t Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Repository stores at most one token per identity and device.
type Repository interface {
	// Replace stores t, replacing any token of the same identity and device.
	Replace(ctx context.Context, t Token) error
	// Swap replaces the token of t's identity and device only while its
	// stored hash is still oldHash. Otherwise it returns ErrTokenNotFound.
	Swap(ctx context.Context, oldHash string, t Token) error
	Find(ctx context.Context, identityID uuid.UUID, deviceID string) (Token, error)
	// Delete removes the token of one device. Missing tokens are not an error.
	Delete(ctx context.Context, identityID uuid.UUID, deviceID string) error
	DeleteByIdentity(ctx context.Context, identityID uuid.UUID) error
}
