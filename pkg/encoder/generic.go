package encoder

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
)

var digests = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// GenericHash encodes as the hex digest of password+salt under a named hash.
type GenericHash struct {
	algorithm string
	newHash   func() hash.Hash
	salts     SaltSource
}

// NewGenericHash returns a GenericHash for md5, sha1, sha256 or sha512.
func NewGenericHash(algorithm string, salts SaltSource) (*GenericHash, error) {
	newHash, ok := digests[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: hash %q", ErrUnknownAlgorithm, algorithm)
	}
	return &GenericHash{algorithm: algorithm, newHash: newHash, salts: salts}, nil
}

// Algorithm returns the hash name this encoder applies.
func (g *GenericHash) Algorithm() string {
	return g.algorithm
}

func (g *GenericHash) digest(password, salt string) string {
	h := g.newHash()
	h.Write([]byte(password + salt))
	return hex.EncodeToString(h.Sum(nil))
}

func (g *GenericHash) Encode(_ context.Context, password, salt string) (string, error) {
	return g.digest(password, salt), nil
}

func (g *GenericHash) Verify(_ context.Context, stored, password, salt string) (bool, error) {
	return equal(stored, g.digest(password, salt)), nil
}

func (g *GenericHash) GenerateSalt() (string, bool, error) {
	salt, err := g.salts.Salt()
	if err != nil {
		return "", false, err
	}
	return salt, true, nil
}
