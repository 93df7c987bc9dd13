package encoder

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id derives the key from the password and the record's salt, so the
// same inputs always produce the same encoding. Parameters are embedded in the
// encoding and read back on Verify, which lets them be raised later without
// breaking stored hashes.
type Argon2id struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	keyLength   uint32
	salts       SaltSource
}

// NewArgon2id returns an Argon2id encoder with 64MB memory, 3 passes and
// 2 lanes.
func NewArgon2id(salts SaltSource) *Argon2id {
	return &Argon2id{
		memory:      64 * 1024,
		iterations:  3,
		parallelism: 2,
		keyLength:   32,
		salts:       salts,
	}
}

func (a *Argon2id) Encode(_ context.Context, password, salt string) (string, error) {
	key := argon2.IDKey([]byte(password), []byte(salt), a.iterations, a.memory, a.parallelism, a.keyLength)

	// Format: $argon2id$v=19$m=65536,t=3,p=2$<hash>
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		argon2.Version, a.memory, a.iterations, a.parallelism,
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func (a *Argon2id) Verify(_ context.Context, stored, password, salt string) (bool, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 5 || parts[1] != "argon2id" {
		return false, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrInvalidHash
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, ErrInvalidHash
	}

	want, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrInvalidHash
	}

	got := argon2.IDKey([]byte(password), []byte(salt), iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

func (a *Argon2id) GenerateSalt() (string, bool, error) {
	salt, err := a.salts.Salt()
	if err != nil {
		return "", false, err
	}
	return salt, true, nil
}
