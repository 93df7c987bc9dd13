package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by a pgx pool, connection or transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository implements Repository using PostgreSQL. Deleting an
// identity cascades to its credential record, password history and
// remember-me tokens through foreign keys.
type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const identityColumns = `id, COALESCE(email, ''), COALESCE(username, ''), display_name, created_at`

func scanIdentity(row pgx.Row) (Identity, error) {
	var i Identity
	err := row.Scan(&i.ID, &i.Email, &i.Username, &i.DisplayName, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, err
	}
	return i, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id uuid.UUID) (Identity, error) {
	identity, err := scanIdentity(r.db.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrIdentityNotFound) {
		slog.Error("Failed to find identity", "identity_id", id, "error", err)
		return Identity{}, fmt.Errorf("failed to find identity: %w", err)
	}
	return identity, err
}

func (r *PostgresRepository) FindByIdentifier(ctx context.Context, field Field, value string) (Identity, error) {
	var query string
	switch field {
	case FieldUsername:
		query = `SELECT ` + identityColumns + ` FROM identities WHERE lower(username) = lower($1)`
	default:
		query = `SELECT ` + identityColumns + ` FROM identities WHERE lower(email) = lower($1)`
	}

	identity, err := scanIdentity(r.db.QueryRow(ctx, query, value))
	if err != nil && !errors.Is(err, ErrIdentityNotFound) {
		slog.Error("Failed to find identity by identifier", "field", field, "error", err)
		return Identity{}, fmt.Errorf("failed to find identity: %w", err)
	}
	return identity, err
}

func (r *PostgresRepository) Save(ctx context.Context, identity Identity) (Identity, error) {
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}

	query := `
		INSERT INTO identities (id, email, username, display_name)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, username = EXCLUDED.username, display_name = EXCLUDED.display_name
		RETURNING ` + identityColumns

	saved, err := scanIdentity(r.db.QueryRow(ctx, query,
		identity.ID, identity.Email, identity.Username, identity.DisplayName))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Identity{}, ErrIdentityExists
		}
		return Identity{}, fmt.Errorf("failed to save identity: %w", err)
	}
	return saved, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdentityNotFound
	}
	return nil
}
