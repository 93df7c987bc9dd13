// Package rememberme issues long-lived per-device login tokens. A token is
// handed to the client once; only its hash, computed with the identity's own
// credential settings, is stored.
package rememberme

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTokenExpiryDays  = 30
	DefaultDeviceExpiryDays = 365
)

// Hasher protects a raw token for storage. The result must be a pure
// function of identity and token while the identity's credential settings
// stay the same.
type Hasher interface {
	HashToken(ctx context.Context, identityID uuid.UUID, token string) (string, error)
}

// TokenSource produces random hex tokens.
type TokenSource interface {
	Token(alg string) (string, error)
}

// Issued is returned to the caller after Issue or Renew. Token is the only
// copy of the raw token.
type Issued struct {
	IdentityID      uuid.UUID `json:"identity_id"`
	DeviceID        string    `json:"device_id"`
	Token           string    `json:"token"`
	ExpiresAt       time.Time `json:"expires_at"`
	DeviceExpiresAt time.Time `json:"device_expires_at"`
}

type Manager struct {
	repo             Repository
	hasher           Hasher
	tokens           TokenSource
	tokenExpiryDays  int
	deviceExpiryDays int
	now              func() time.Time
}

type Option func(*Manager)

func WithTokenExpiryDays(days int) Option {
	return func(m *Manager) {
		m.tokenExpiryDays = days
	}
}

// WithDeviceExpiryDays sets how long the client should keep the device id.
func WithDeviceExpiryDays(days int) Option {
	return func(m *Manager) {
		m.deviceExpiryDays = days
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(repo Repository, hasher Hasher, tokens TokenSource, opts ...Option) *Manager {
	m := &Manager{
		repo:             repo,
		hasher:           hasher,
		tokens:           tokens,
		tokenExpiryDays:  DefaultTokenExpiryDays,
		deviceExpiryDays: DefaultDeviceExpiryDays,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue creates a token for identityID on deviceID, replacing any earlier
// token of that device. An empty deviceID gets a freshly generated one.
func (m *Manager) Issue(ctx context.Context, identityID uuid.UUID, deviceID string) (Issued, error) {
	if deviceID == "" {
		id, err := m.tokens.Token("sha1")
		if err != nil {
			return Issued{}, fmt.Errorf("failed to generate device id: %w", err)
		}
		deviceID = id
	}

	t, issued, err := m.next(ctx, identityID, deviceID)
	if err != nil {
		return Issued{}, err
	}
	if err := m.repo.Replace(ctx, t); err != nil {
		return Issued{}, err
	}

	slog.Info("Remember-me token issued", "identity_id", identityID, "device_id", deviceID)
	return issued, nil
}

// next generates a fresh token for deviceID without storing it.
func (m *Manager) next(ctx context.Context, identityID uuid.UUID, deviceID string) (Token, Issued, error) {
	raw, err := m.tokens.Token("sha1")
	if err != nil {
		return Token{}, Issued{}, fmt.Errorf("failed to generate remember-me token: %w", err)
	}
	hash, err := m.hasher.HashToken(ctx, identityID, raw)
	if err != nil {
		return Token{}, Issued{}, fmt.Errorf("failed to hash remember-me token: %w", err)
	}

	now := m.now().UTC()
	t := Token{
		ID:         uuid.New(),
		IdentityID: identityID,
		DeviceID:   deviceID,
		TokenHash:  hash,
		ExpiresAt:  now.AddDate(0, 0, m.tokenExpiryDays),
		CreatedAt:  now,
	}
	return t, Issued{
		IdentityID:      identityID,
		DeviceID:        deviceID,
		Token:           raw,
		ExpiresAt:       t.ExpiresAt,
		DeviceExpiresAt: now.AddDate(0, 0, m.deviceExpiryDays),
	}, nil
}

// Validate reports whether token is the live token of identityID on deviceID.
func (m *Manager) Validate(ctx context.Context, identityID uuid.UUID, deviceID, token string) (bool, error) {
	_, ok, err := m.match(ctx, identityID, deviceID, token)
	return ok, err
}

// match returns the stored token when token is its live counterpart.
func (m *Manager) match(ctx context.Context, identityID uuid.UUID, deviceID, token string) (Token, bool, error) {
	if deviceID == "" || token == "" {
		return Token{}, false, nil
	}
	stored, err := m.repo.Find(ctx, identityID, deviceID)
	if errors.Is(err, ErrTokenNotFound) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, err
	}
	if stored.IsExpired(m.now()) {
		slog.Debug("Remember-me token expired", "identity_id", identityID, "device_id", deviceID)
		return Token{}, false, nil
	}

	hash, err := m.hasher.HashToken(ctx, identityID, token)
	if err != nil {
		return Token{}, false, fmt.Errorf("failed to hash remember-me token: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(hash), []byte(stored.TokenHash)) != 1 {
		return Token{}, false, nil
	}
	return stored, true, nil
}

// Renew validates token and rotates it for the same device. The presented
// token stops working. Of several concurrent renewals with the same token
// only one succeeds; the others get ErrTokenNotFound.
func (m *Manager) Renew(ctx context.Context, identityID uuid.UUID, deviceID, token string) (Issued, error) {
	stored, ok, err := m.match(ctx, identityID, deviceID, token)
	if err != nil {
		return Issued{}, err
	}
	if !ok {
		return Issued{}, ErrTokenNotFound
	}

	t, issued, err := m.next(ctx, identityID, deviceID)
	if err != nil {
		return Issued{}, err
	}
	if err := m.repo.Swap(ctx, stored.TokenHash, t); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			slog.Warn("Remember-me token already rotated", "identity_id", identityID, "device_id", deviceID)
		}
		return Issued{}, err
	}

	slog.Info("Remember-me token renewed", "identity_id", identityID, "device_id", deviceID)
	return issued, nil
}

// Revoke deletes the token of deviceID, or every token of identityID when
// deviceID is empty. Revoking a missing token is not an error.
func (m *Manager) Revoke(ctx context.Context, identityID uuid.UUID, deviceID string) error {
	if deviceID == "" {
		return m.repo.DeleteByIdentity(ctx, identityID)
	}
	return m.repo.Delete(ctx, identityID, deviceID)
}

func (m *Manager) DeleteByIdentity(ctx context.Context, identityID uuid.UUID) error {
	return m.repo.DeleteByIdentity(ctx, identityID)
}
