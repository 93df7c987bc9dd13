package encoder

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// NativeHasher computes a password hash inside the database engine.
type NativeHasher interface {
	NativeHash(ctx context.Context, password string) (string, error)
}

// DatabaseNativeHash delegates to the database's built-in password function.
// It uses no salt.
type DatabaseNativeHash struct {
	hasher NativeHasher
}

func NewDatabaseNativeHash(hasher NativeHasher) *DatabaseNativeHash {
	return &DatabaseNativeHash{hasher: hasher}
}

func (d *DatabaseNativeHash) Encode(ctx context.Context, password, _ string) (string, error) {
	return d.hasher.NativeHash(ctx, password)
}

func (d *DatabaseNativeHash) Verify(ctx context.Context, stored, password, _ string) (bool, error) {
	encoded, err := d.hasher.NativeHash(ctx, password)
	if err != nil {
		return false, err
	}
	return equal(stored, encoded), nil
}

func (d *DatabaseNativeHash) GenerateSalt() (string, bool, error) {
	return "", false, nil
}

// Querier is the subset of a pgx pool or transaction used for native hashing.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresNativeHasher hashes with PostgreSQL's built-in md5() function.
type PostgresNativeHasher struct {
	db Querier
}

func NewPostgresNativeHasher(db Querier) *PostgresNativeHasher {
	return &PostgresNativeHasher{db: db}
}

func (p *PostgresNativeHasher) NativeHash(ctx context.Context, password string) (string, error) {
	var out string
	if err := p.db.QueryRow(ctx, `SELECT md5($1::text)`, password).Scan(&out); err != nil {
		return "", fmt.Errorf("failed to compute native hash: %w", err)
	}
	return out, nil
}
