// Package passwordhistory keeps an append-only log of the passwords each
// identity has used and answers whether a candidate password is a reuse.
package passwordhistory

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-credential/pkg/credential"
	"github.com/tendant/simple-credential/pkg/encoder"
)

// Log appends entries on every password change and checks reuse against the
// most recent ones.
type Log struct {
	repo     Repository
	registry *encoder.Registry
}

func NewLog(repo Repository, registry *encoder.Registry) *Log {
	return &Log{repo: repo, registry: registry}
}

// Append records a credential.HistoryEntry. Log satisfies
// credential.HistoryAppender.
func (l *Log) Append(ctx context.Context, e credential.HistoryEntry) error {
	return l.repo.Append(ctx, Entry{
		IdentityID:      e.IdentityID,
		EncodedPassword: e.EncodedPassword,
		AlgorithmTag:    e.AlgorithmTag,
		Salt:            e.Salt,
		CreatedAt:       e.CreatedAt,
	})
}

// List returns up to limit entries, newest first. A limit of zero returns
// the whole history.
func (l *Log) List(ctx context.Context, identityID uuid.UUID, limit int) ([]Entry, error) {
	return l.repo.Recent(ctx, identityID, limit)
}

// IsReused reports whether password matches any of the last n entries. Each
// entry is verified with the algorithm and salt it was stored with. Entries
// whose algorithm is no longer registered are skipped.
func (l *Log) IsReused(ctx context.Context, identityID uuid.UUID, password string, n int) (bool, error) {
	if n <= 0 {
		return false, nil
	}
	entries, err := l.repo.Recent(ctx, identityID, n)
	if err != nil {
		return false, err
	}

	for _, e := range entries {
		enc, err := l.registry.Lookup(e.AlgorithmTag)
		if err != nil {
			slog.Warn("Skipping history entry with unregistered algorithm", "identity_id", identityID, "algorithm", e.AlgorithmTag)
			continue
		}
		match, err := enc.Verify(ctx, e.EncodedPassword, password, e.Salt)
		if err != nil {
			slog.Error("Error checking password history item", "identity_id", identityID, "error", err)
			continue
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

func (l *Log) DeleteByIdentity(ctx context.Context, identityID uuid.UUID) error {
	return l.repo.DeleteByIdentity(ctx, identityID)
}
