package encoder

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const pbkdf2Prefix = "pbkdf2_sha256"

// PBKDF2SHA256 encodes as pbkdf2_sha256$<iterations>$<base64 key>.
type PBKDF2SHA256 struct {
	iterations int
	keyLength  int
	salts      SaltSource
}

func NewPBKDF2SHA256(iterations int, salts SaltSource) *PBKDF2SHA256 {
	if iterations <= 0 {
		iterations = 600000
	}
	return &PBKDF2SHA256{iterations: iterations, keyLength: 32, salts: salts}
}

func (p *PBKDF2SHA256) Encode(_ context.Context, password, salt string) (string, error) {
	key := pbkdf2.Key([]byte(password), []byte(salt), p.iterations, p.keyLength, sha256.New)
	return fmt.Sprintf("%s$%d$%s", pbkdf2Prefix, p.iterations, base64.RawStdEncoding.EncodeToString(key)), nil
}

func (p *PBKDF2SHA256) Verify(_ context.Context, stored, password, salt string) (bool, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 3 || parts[0] != pbkdf2Prefix {
		return false, ErrInvalidHash
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return false, ErrInvalidHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return false, ErrInvalidHash
	}
	got := pbkdf2.Key([]byte(password), []byte(salt), iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

func (p *PBKDF2SHA256) GenerateSalt() (string, bool, error) {
	salt, err := p.salts.Salt()
	if err != nil {
		return "", false, err
	}
	return salt, true, nil
}
