// Package loginattempt records every authentication attempt, successful or
// not, for audit.
package loginattempt

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Record is an immutable audit entry. IdentityID is nil when the attempted
// identifier did not resolve to an identity.
type Record struct {
	ID            uuid.UUID  `json:"id"`
	Identifier    string     `json:"identifier"`
	IdentityID    *uuid.UUID `json:"identity_id,omitempty"`
	Status        Status     `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	SourceAddress string     `json:"source_address,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Sink persists audit records.
type Sink interface {
	Write(ctx context.Context, rec Record) error
	// ListByIdentity returns up to limit records of identityID, newest first.
	ListByIdentity(ctx context.Context, identityID uuid.UUID, limit int) ([]Record, error)
}
