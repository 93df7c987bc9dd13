package passwordhistory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is an immutable snapshot of a password that was set for an
// identity. Entries are never updated; they disappear only with the identity.
type Entry struct {
	ID              uuid.UUID `json:"id"`
	IdentityID      uuid.UUID `json:"identity_id"`
	EncodedPassword string    `json:"encoded_password"`
	AlgorithmTag    string    `json:"algorithm_tag"`
	Salt            string    `json:"salt"`
	CreatedAt       time.Time `json:"created_at"`
}

// Repository stores history entries.
type Repository interface {
	Append(ctx context.Context, entry Entry) error
	// Recent returns up to limit entries of identityID, newest first.
	Recent(ctx context.Context, identityID uuid.UUID, limit int) ([]Entry, error)
	DeleteByIdentity(ctx context.Context, identityID uuid.UUID) error
}
