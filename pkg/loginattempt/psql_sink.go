package loginattempt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by a pgx pool, connection or transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

type PostgresSink struct {
	db DBTX
}

func NewPostgresSink(db DBTX) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO login_attempts (id, identifier, identity_id, status, reason, source_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Identifier, rec.IdentityID, string(rec.Status), rec.Reason, rec.SourceAddress, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

func (s *PostgresSink) ListByIdentity(ctx context.Context, identityID uuid.UUID, limit int) ([]Record, error) {
	query := `
		SELECT id, identifier, identity_id, status, reason, source_address, created_at
		FROM login_attempts
		WHERE identity_id = $1
		ORDER BY created_at DESC`
	args := []interface{}{identityID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		var status string
		err := row.Scan(&rec.ID, &rec.Identifier, &rec.IdentityID, &status, &rec.Reason, &rec.SourceAddress, &rec.CreatedAt)
		rec.Status = Status(status)
		return rec, err
	})
}
