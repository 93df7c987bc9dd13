// Package random is the shared secure random source for tokens, salts and
// device ids. A Generator holds no mutable state and is safe for concurrent use.
package random

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// SaltLength is the maximum length of a generated salt.
const SaltLength = 50

const entropyBytes = 64

var hashes = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// Generator produces hex tokens from a cryptographically secure source.
type Generator struct {
	source io.Reader
}

// New returns a Generator reading from crypto/rand.
func New() *Generator {
	return &Generator{source: rand.Reader}
}

// NewWithSource returns a Generator reading from source. Tests use it to make
// output predictable; production code should call New.
func NewWithSource(source io.Reader) *Generator {
	return &Generator{source: source}
}

// Token returns the hex digest of fresh random bytes under the named hash
// (md5, sha1, sha256, sha512).
func (g *Generator) Token(alg string) (string, error) {
	newHash, ok := hashes[alg]
	if !ok {
		return "", fmt.Errorf("random: unsupported token algorithm %q", alg)
	}
	buf := make([]byte, entropyBytes)
	if _, err := io.ReadFull(g.source, buf); err != nil {
		return "", fmt.Errorf("random: read entropy: %w", err)
	}
	h := newHash()
	h.Write(buf)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Salt returns a new salt: a sha1 token truncated to SaltLength.
func (g *Generator) Salt() (string, error) {
	token, err := g.Token("sha1")
	if err != nil {
		return "", err
	}
	if len(token) > SaltLength {
		token = token[:SaltLength]
	}
	return token, nil
}
