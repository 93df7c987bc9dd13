package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository implements Repository using PostgreSQL. Update locks the
// row with SELECT ... FOR UPDATE inside a transaction.
type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, identity_id, encoded_password, COALESCE(salt, ''), algorithm_tag,
	failed_login_count, locked_until, password_expiry,
	COALESCE(temp_token, ''), temp_token_expiry, COALESCE(auto_login_token, ''), auto_login_expiry, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.IdentityID,
		&rec.EncodedPassword,
		&rec.Salt,
		&rec.AlgorithmTag,
		&rec.FailedLoginCount,
		&rec.LockedUntil,
		&rec.PasswordExpiry,
		&rec.TempToken,
		&rec.TempTokenExpiry,
		&rec.AutoLoginToken,
		&rec.AutoLoginExpiry,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresRepository) Get(ctx context.Context, identityID uuid.UUID) (Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM credential_records WHERE identity_id = $1`, identityID))
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		slog.Error("Failed to get credential record", "identity_id", identityID, "error", err)
		return Record{}, fmt.Errorf("failed to get credential record: %w", err)
	}
	return rec, err
}

func (r *PostgresRepository) FindByTempToken(ctx context.Context, token string) (Record, error) {
	if token == "" {
		return Record{}, ErrRecordNotFound
	}
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM credential_records WHERE temp_token = $1`, token))
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return Record{}, fmt.Errorf("failed to find credential record by temp token: %w", err)
	}
	return rec, err
}

func (r *PostgresRepository) Update(ctx context.Context, identityID uuid.UUID, fn func(*Record) error) (Record, error) {
	var out Record
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		// Make sure there is a row to lock.
		_, err := tx.Exec(ctx,
			`INSERT INTO credential_records (id, identity_id) VALUES ($1, $2) ON CONFLICT (identity_id) DO NOTHING`,
			uuid.New(), identityID)
		if err != nil {
			return fmt.Errorf("failed to create credential record: %w", err)
		}

		rec, err := scanRecord(tx.QueryRow(ctx,
			`SELECT `+recordColumns+` FROM credential_records WHERE identity_id = $1 FOR UPDATE`, identityID))
		if err != nil {
			return fmt.Errorf("failed to lock credential record: %w", err)
		}

		id := rec.ID
		if err := fn(&rec); err != nil {
			return err
		}
		rec.ID, rec.IdentityID = id, identityID

		out, err = scanRecord(tx.QueryRow(ctx, `
			UPDATE credential_records SET
				encoded_password = $2,
				salt = NULLIF($3, ''),
				algorithm_tag = $4,
				failed_login_count = $5,
				locked_until = $6,
				password_expiry = $7,
				temp_token = NULLIF($8, ''),
				temp_token_expiry = $9,
				auto_login_token = NULLIF($10, ''),
				auto_login_expiry = $11,
				updated_at = now()
			WHERE id = $1
			RETURNING `+recordColumns,
			rec.ID,
			rec.EncodedPassword,
			rec.Salt,
			rec.AlgorithmTag,
			rec.FailedLoginCount,
			rec.LockedUntil,
			rec.PasswordExpiry,
			rec.TempToken,
			rec.TempTokenExpiry,
			rec.AutoLoginToken,
			rec.AutoLoginExpiry,
		))
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrDuplicateValue
		}
		return Record{}, err
	}
	return out, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, rec Record) (bool, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO credential_records (
			id, identity_id, encoded_password, salt, algorithm_tag, failed_login_count,
			locked_until, password_expiry, temp_token, temp_token_expiry, auto_login_token, auto_login_expiry
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, NULLIF($9, ''), $10, NULLIF($11, ''), $12)
		ON CONFLICT (identity_id) DO NOTHING`,
		rec.ID,
		rec.IdentityID,
		rec.EncodedPassword,
		rec.Salt,
		rec.AlgorithmTag,
		rec.FailedLoginCount,
		rec.LockedUntil,
		rec.PasswordExpiry,
		rec.TempToken,
		rec.TempTokenExpiry,
		rec.AutoLoginToken,
		rec.AutoLoginExpiry,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, ErrDuplicateValue
		}
		return false, fmt.Errorf("failed to insert credential record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) DeleteByIdentity(ctx context.Context, identityID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM credential_records WHERE identity_id = $1`, identityID); err != nil {
		return fmt.Errorf("failed to delete credential record: %w", err)
	}
	return nil
}
