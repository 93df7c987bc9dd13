package encoder

import "context"

// None stores the cleartext as-is. It exists only so that very old records can
// still be read; it is never selectable for a new password.
type None struct{}

func (None) Encode(_ context.Context, password, _ string) (string, error) {
	return password, nil
}

func (None) Verify(_ context.Context, stored, password, _ string) (bool, error) {
	return equal(stored, password), nil
}

func (None) GenerateSalt() (string, bool, error) {
	return "", false, nil
}

func (None) Selectable() bool {
	return false
}
