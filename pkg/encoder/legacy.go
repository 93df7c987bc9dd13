package encoder

import (
	"context"
	"math/big"
)

const (
	legacyLength = 64
	// Only this many leading characters of a legacy encoding were ever
	// reproducible across platforms, so only they are compared.
	legacyCompareLength = 10
)

// LegacyHashV1 re-encodes a GenericHash hex digest in base 36 and truncates it
// to 64 characters.
//
// Records written by the historical implementation went through a lossy
// floating point base conversion, so Verify compares the first 10 characters
// only. Two different passwords whose encodings share that prefix both verify.
// This is a known reduction in collision resistance kept so existing hashes
// keep working; such records are migrated to a modern encoder on login.
type LegacyHashV1 struct {
	inner *GenericHash
}

// NewLegacyHashV1 wraps a GenericHash for the named algorithm.
func NewLegacyHashV1(algorithm string, salts SaltSource) (*LegacyHashV1, error) {
	inner, err := NewGenericHash(algorithm, salts)
	if err != nil {
		return nil, err
	}
	return &LegacyHashV1{inner: inner}, nil
}

func (l *LegacyHashV1) encode(password, salt string) string {
	n, ok := new(big.Int).SetString(l.inner.digest(password, salt), 16)
	if !ok {
		return ""
	}
	out := n.Text(36)
	if len(out) > legacyLength {
		out = out[:legacyLength]
	}
	return out
}

func (l *LegacyHashV1) Encode(_ context.Context, password, salt string) (string, error) {
	return l.encode(password, salt), nil
}

func (l *LegacyHashV1) Verify(_ context.Context, stored, password, salt string) (bool, error) {
	return equal(prefix(stored, legacyCompareLength), prefix(l.encode(password, salt), legacyCompareLength)), nil
}

func (l *LegacyHashV1) GenerateSalt() (string, bool, error) {
	return l.inner.GenerateSalt()
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
