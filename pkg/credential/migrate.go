package credential

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LegacyMember carries the credential columns of a member row from the
// previous release.
type LegacyMember struct {
	IdentityID         uuid.UUID
	Password           string
	PasswordEncryption string
	Salt               string
	PasswordExpiry     *time.Time
	LockedOutUntil     *time.Time
	FailedLoginCount   int
	TempIDHash         string
	TempIDExpired      *time.Time
	AutoLoginHash      string
	AutoLoginExpired   *time.Time
}

// Record converts the legacy columns into a credential record. Hashes are
// carried over as stored; nothing is re-encoded.
func (m LegacyMember) Record() Record {
	return Record{
		IdentityID:       m.IdentityID,
		EncodedPassword:  m.Password,
		Salt:             m.Salt,
		AlgorithmTag:     m.PasswordEncryption,
		FailedLoginCount: m.FailedLoginCount,
		LockedUntil:      m.LockedOutUntil,
		PasswordExpiry:   m.PasswordExpiry,
		TempToken:        m.TempIDHash,
		TempTokenExpiry:  m.TempIDExpired,
		AutoLoginToken:   m.AutoLoginHash,
		AutoLoginExpiry:  m.AutoLoginExpired,
	}
}

// LegacySource lists members that do not have a credential record yet.
type LegacySource interface {
	PendingMembers(ctx context.Context) ([]LegacyMember, error)
}

// MigrateLegacyMembers copies legacy credential columns into new records for
// every pending member. Members that gained a record in the meantime are
// skipped. It returns the number of records created.
func MigrateLegacyMembers(ctx context.Context, source LegacySource, repo Repository) (int, error) {
	members, err := source.PendingMembers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list legacy members: %w", err)
	}

	migrated := 0
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return migrated, err
		}
		if m.FailedLoginCount < 0 {
			m.FailedLoginCount = 0
		}
		inserted, err := repo.Insert(ctx, m.Record())
		if err != nil {
			slog.Error("Failed to migrate legacy member", "identity_id", m.IdentityID, "error", err)
			return migrated, fmt.Errorf("failed to migrate member %s: %w", m.IdentityID, err)
		}
		if inserted {
			migrated++
		}
	}
	slog.Info("Legacy member migration finished", "pending", len(members), "migrated", migrated)
	return migrated, nil
}

// PostgresLegacySource reads the legacy_members table.
type PostgresLegacySource struct {
	db DB
}

func NewPostgresLegacySource(db DB) *PostgresLegacySource {
	return &PostgresLegacySource{db: db}
}

func (s *PostgresLegacySource) PendingMembers(ctx context.Context) ([]LegacyMember, error) {
	rows, err := s.db.Query(ctx, `
		SELECT m.id, COALESCE(m.password, ''), COALESCE(m.password_encryption, ''), COALESCE(m.salt, ''),
		       m.password_expiry, m.locked_out_until, COALESCE(m.failed_login_count, 0),
		       COALESCE(m.temp_id_hash, ''), m.temp_id_expired,
		       COALESCE(m.auto_login_hash, ''), m.auto_login_expired
		FROM legacy_members m
		LEFT JOIN credential_records c ON c.identity_id = m.id
		WHERE c.id IS NULL
		ORDER BY m.id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (LegacyMember, error) {
		var m LegacyMember
		err := row.Scan(
			&m.IdentityID,
			&m.Password,
			&m.PasswordEncryption,
			&m.Salt,
			&m.PasswordExpiry,
			&m.LockedOutUntil,
			&m.FailedLoginCount,
			&m.TempIDHash,
			&m.TempIDExpired,
			&m.AutoLoginHash,
			&m.AutoLoginExpired,
		)
		return m, err
	})
}
