package encoder

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Blowfish stores a bcrypt hash. bcrypt embeds its own random salt, so the
// record salt is unused and Encode is not repeatable; Verify is the only way
// to compare.
type Blowfish struct {
	cost int
}

func NewBlowfish(cost int) *Blowfish {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Blowfish{cost: cost}
}

func (b *Blowfish) Encode(_ context.Context, password, _ string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (b *Blowfish) Verify(_ context.Context, stored, password, _ string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *Blowfish) GenerateSalt() (string, bool, error) {
	return "", false, nil
}

func (b *Blowfish) Repeatable() bool {
	return false
}
