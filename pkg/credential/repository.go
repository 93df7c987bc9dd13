package credential

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRecordNotFound = errors.New("credential record not found")

	// ErrDuplicateValue is returned when a write would break uniqueness of a
	// salt, temp token or auto-login token. Callers regenerate and retry.
	ErrDuplicateValue = errors.New("credential value already in use")
)

// Record holds the security-sensitive fields of one identity. It is created
// lazily on the first write and owned exclusively by that identity.
type Record struct {
	ID               uuid.UUID  `json:"id"`
	IdentityID       uuid.UUID  `json:"identity_id"`
	EncodedPassword  string     `json:"encoded_password"`
	Salt             string     `json:"salt"`
	AlgorithmTag     string     `json:"algorithm_tag"`
	FailedLoginCount int        `json:"failed_login_count"`
	LockedUntil      *time.Time `json:"locked_until,omitempty"`
	PasswordExpiry   *time.Time `json:"password_expiry,omitempty"` // date, UTC midnight
	TempToken        string     `json:"temp_token,omitempty"`
	TempTokenExpiry  *time.Time `json:"temp_token_expiry,omitempty"`
	AutoLoginToken   string     `json:"auto_login_token,omitempty"`
	AutoLoginExpiry  *time.Time `json:"auto_login_expiry,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// HasPassword reports whether a password has ever been set.
func (r Record) HasPassword() bool {
	return r.EncodedPassword != ""
}

// IsLockedOut reports whether a lock is still running at now.
func (r Record) IsLockedOut(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// IsPasswordExpired reports whether the calendar date of now has reached the
// password expiry date.
func (r Record) IsPasswordExpired(now time.Time) bool {
	if r.PasswordExpiry == nil {
		return false
	}
	return !dateOf(now).Before(dateOf(*r.PasswordExpiry))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Repository persists credential records.
type Repository interface {
	// Get returns the record of identityID or ErrRecordNotFound.
	Get(ctx context.Context, identityID uuid.UUID) (Record, error)

	// FindByTempToken returns the record holding token, expired or not.
	FindByTempToken(ctx context.Context, token string) (Record, error)

	// Update applies fn to the current record of identityID while holding an
	// exclusive lock on it, then persists the result. Concurrent updates of
	// the same identity are serialized. When no record exists fn receives a
	// new empty record. If fn returns an error nothing is written.
	Update(ctx context.Context, identityID uuid.UUID, fn func(*Record) error) (Record, error)

	// Insert stores rec if identityID has no record yet and reports whether
	// it did.
	Insert(ctx context.Context, rec Record) (bool, error)

	DeleteByIdentity(ctx context.Context, identityID uuid.UUID) error
}
