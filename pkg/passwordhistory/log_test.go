package passwordhistory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-credential/pkg/credential"
	"github.com/tendant/simple-credential/pkg/encoder"
	"github.com/tendant/simple-credential/pkg/random"
)

func setupLog(t *testing.T) (*Log, *credential.Store) {
	t.Helper()
	registry, err := encoder.NewDefaultRegistry(encoder.TagSHA256, random.New())
	require.NoError(t, err)

	log := NewLog(NewInMemoryRepository(), registry)
	store := credential.NewStore(credential.NewInMemoryRepository(), registry, random.New(),
		credential.WithHistory(log))
	return log, store
}

func TestIsReused(t *testing.T) {
	ctx := context.Background()
	log, store := setupLog(t)
	id := uuid.New()

	for _, p := range []string{"one", "two", "three"} {
		_, err := store.UpdatePassword(ctx, id, p)
		require.NoError(t, err)
	}

	entries, err := log.List(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	t.Run("WithinWindow", func(t *testing.T) {
		reused, err := log.IsReused(ctx, id, "two", 2)
		require.NoError(t, err)
		assert.True(t, reused)
	})

	t.Run("OutsideWindow", func(t *testing.T) {
		reused, err := log.IsReused(ctx, id, "one", 2)
		require.NoError(t, err)
		assert.False(t, reused)
	})

	t.Run("Disabled", func(t *testing.T) {
		reused, err := log.IsReused(ctx, id, "three", 0)
		require.NoError(t, err)
		assert.False(t, reused)
	})

	t.Run("OtherIdentity", func(t *testing.T) {
		reused, err := log.IsReused(ctx, uuid.New(), "three", 5)
		require.NoError(t, err)
		assert.False(t, reused)
	})
}

func TestUnregisteredAlgorithmIsSkipped(t *testing.T) {
	ctx := context.Background()
	log, _ := setupLog(t)
	id := uuid.New()
	require.NoError(t, log.repo.Append(ctx, Entry{IdentityID: id, EncodedPassword: "x", AlgorithmTag: "crc32", CreatedAt: time.Now()}))

	reused, err := log.IsReused(ctx, id, "x", 5)
	require.NoError(t, err)
	assert.False(t, reused)
}

func TestRecentIsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	id := uuid.New()
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Append(ctx, Entry{IdentityID: id, EncodedPassword: p}))
	}

	entries, err := repo.Recent(ctx, id, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].EncodedPassword)
	assert.Equal(t, "b", entries[1].EncodedPassword)

	require.NoError(t, repo.DeleteByIdentity(ctx, id))
	entries, err = repo.Recent(ctx, id, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
