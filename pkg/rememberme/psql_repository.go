package rememberme

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by a pgx pool, connection or transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Replace(ctx context.Context, t Token) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO remember_me_tokens (id, identity_id, device_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity_id, device_id) DO UPDATE SET
			id = EXCLUDED.id,
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at`,
		t.ID, t.IdentityID, t.DeviceID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store remember-me token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Swap(ctx context.Context, oldHash string, t Token) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE remember_me_tokens
		SET id = $4, token_hash = $5, expires_at = $6, created_at = $7
		WHERE identity_id = $1 AND device_id = $2 AND token_hash = $3`,
		t.IdentityID, t.DeviceID, oldHash, t.ID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to rotate remember-me token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, identityID uuid.UUID, deviceID string) (Token, error) {
	var t Token
	err := r.db.QueryRow(ctx, `
		SELECT id, identity_id, device_id, token_hash, expires_at, created_at
		FROM remember_me_tokens
		WHERE identity_id = $1 AND device_id = $2`,
		identityID, deviceID,
	).Scan(&t.ID, &t.IdentityID, &t.DeviceID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrTokenNotFound
		}
		return Token{}, fmt.Errorf("failed to find remember-me token: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, identityID uuid.UUID, deviceID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM remember_me_tokens WHERE identity_id = $1 AND device_id = $2`, identityID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to delete remember-me token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByIdentity(ctx context.Context, identityID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM remember_me_tokens WHERE identity_id = $1`, identityID); err != nil {
		return fmt.Errorf("failed to delete remember-me tokens: %w", err)
	}
	return nil
}
