package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-credential/pkg/db/dbtest"
)

func TestPostgresRepository(t *testing.T) {
	repo := NewPostgresRepository(dbtest.NewPool(t))
	ctx := context.Background()

	saved, err := repo.Save(ctx, Identity{Email: "Pg@Example.com", DisplayName: "Pg"})
	require.NoError(t, err)
	assert.False(t, saved.CreatedAt.IsZero())
	assert.Empty(t, saved.Username)

	t.Run("FindByIdentifier", func(t *testing.T) {
		found, err := repo.FindByIdentifier(ctx, FieldEmail, "pg@example.com")
		require.NoError(t, err)
		assert.Equal(t, saved.ID, found.ID)

		_, err = repo.FindByIdentifier(ctx, FieldUsername, "pg")
		assert.ErrorIs(t, err, ErrIdentityNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		saved.Username = "pg"
		updated, err := repo.Save(ctx, saved)
		require.NoError(t, err)
		assert.Equal(t, "pg", updated.Username)
	})

	t.Run("UniqueEmail", func(t *testing.T) {
		_, err := repo.Save(ctx, Identity{Email: "PG@example.com"})
		assert.ErrorIs(t, err, ErrIdentityExists)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, saved.ID))
		_, err := repo.FindByID(ctx, saved.ID)
		assert.ErrorIs(t, err, ErrIdentityNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, saved.ID), ErrIdentityNotFound)
	})
}
