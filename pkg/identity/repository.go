package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrIdentityExists   = errors.New("identity already exists")
)

// Field names the attribute used as the unique login identifier.
type Field string

const (
	FieldEmail    Field = "email"
	FieldUsername Field = "username"
)

// ParseField validates a configured identifier field.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldEmail, FieldUsername:
		return f, nil
	case "":
		return FieldEmail, nil
	default:
		return "", fmt.Errorf("unsupported identifier field %q", s)
	}
}

// Identity is an account capable of authenticating. Its credential record is
// looked up by identity id; the identity holds no reference to it.
type Identity struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email,omitempty"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Identifier returns the value of field for this identity.
func (i Identity) Identifier(field Field) string {
	if field == FieldUsername {
		return i.Username
	}
	return i.Email
}

// Repository persists identities. Identifier lookups are case-insensitive.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (Identity, error)
	FindByIdentifier(ctx context.Context, field Field, value string) (Identity, error)
	Save(ctx context.Context, identity Identity) (Identity, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
