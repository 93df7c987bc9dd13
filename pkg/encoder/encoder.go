package encoder

import (
	"context"
	"crypto/subtle"
	"errors"
)

var (
	// ErrUnknownAlgorithm is returned when a tag names no registered encoder.
	ErrUnknownAlgorithm = errors.New("encoder: unknown algorithm")

	// ErrNotSelectable is returned when a read-only encoder is asked to
	// protect a new credential.
	ErrNotSelectable = errors.New("encoder: algorithm is not selectable for new credentials")

	// ErrInvalidHash is returned when a stored encoding cannot be parsed.
	ErrInvalidHash = errors.New("encoder: invalid stored hash")
)

// Encoder turns a cleartext password into its stored form and checks a
// presented password against a stored form.
type Encoder interface {
	// Encode returns the stored form of password under salt.
	Encode(ctx context.Context, password, salt string) (string, error)

	// Verify reports whether password matches stored. A mismatch is
	// (false, nil); errors are reserved for malformed input or I/O.
	Verify(ctx context.Context, stored, password, salt string) (bool, error)

	// GenerateSalt returns a fresh salt. ok is false for encoders that do not
	// use a salt, in which case the record keeps an empty salt.
	GenerateSalt() (salt string, ok bool, err error)
}

// Selectable is implemented by encoders that may or may not be used for new
// credentials. Encoders that do not implement it are selectable.
type Selectable interface {
	Selectable() bool
}

// IsSelectable reports whether e may encode a newly set password.
func IsSelectable(e Encoder) bool {
	if s, ok := e.(Selectable); ok {
		return s.Selectable()
	}
	return true
}

// Repeatable is implemented by encoders whose Encode output is not a pure
// function of password and salt. Encoders that do not implement it are
// assumed repeatable.
type Repeatable interface {
	Repeatable() bool
}

// IsRepeatable reports whether encoding the same input twice yields the same
// output, which is required when an encoding is used as a lookup key.
func IsRepeatable(e Encoder) bool {
	if r, ok := e.(Repeatable); ok {
		return r.Repeatable()
	}
	return true
}

// SaltSource supplies salts for salted encoders.
type SaltSource interface {
	Salt() (string, error)
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
