package loginattempt

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-credential/pkg/db/dbtest"
	"github.com/tendant/simple-credential/pkg/identity"
)

func TestPostgresSink(t *testing.T) {
	pool := dbtest.NewPool(t)
	sink := NewPostgresSink(pool)
	ctx := context.Background()

	saved, err := identity.NewPostgresRepository(pool).Save(ctx, identity.Identity{Email: "audit@example.com"})
	require.NoError(t, err)

	r := NewRecorder(sink)
	r.Record(ctx, Attempt{Identifier: "audit@example.com", IdentityID: &saved.ID, Success: false, Reason: "invalid_credentials"})
	time.Sleep(time.Millisecond)
	r.Record(ctx, Attempt{Identifier: "audit@example.com", IdentityID: &saved.ID, Success: true, SourceAddress: "127.0.0.1"})
	r.Record(ctx, Attempt{Identifier: "nobody@example.com"})

	records, err := sink.ListByIdentity(ctx, saved.ID, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, StatusSuccess, records[0].Status)
	assert.Equal(t, "127.0.0.1", records[0].SourceAddress)
	assert.Equal(t, StatusFailure, records[1].Status)
	assert.Equal(t, "invalid_credentials", records[1].Reason)

	var unresolved int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM login_attempts WHERE identity_id IS NULL`).Scan(&unresolved))
	assert.Equal(t, 1, unresolved)

	_, err = sink.ListByIdentity(ctx, uuid.New(), 1)
	assert.NoError(t, err)
}
