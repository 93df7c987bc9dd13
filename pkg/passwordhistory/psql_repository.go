package passwordhistory

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

type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO password_history (id, identity_id, encoded_password, algorithm_tag, salt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.IdentityID, entry.EncodedPassword, entry.AlgorithmTag, entry.Salt, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append password history: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Recent(ctx context.Context, identityID uuid.UUID, limit int) ([]Entry, error) {
	query := `
		SELECT id, identity_id, encoded_password, algorithm_tag, salt, created_at
		FROM password_history
		WHERE identity_id = $1
		ORDER BY created_at DESC, id`
	args := []interface{}{identityID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query password history: %w", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Entry])
	if err != nil {
		return nil, fmt.Errorf("failed to scan password history: %w", err)
	}
	return entries, nil
}

func (r *PostgresRepository) DeleteByIdentity(ctx context.Context, identityID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM password_history WHERE identity_id = $1`, identityID); err != nil {
		return fmt.Errorf("failed to delete password history: %w", err)
	}
	return nil
}
