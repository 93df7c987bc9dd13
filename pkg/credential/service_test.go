package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-credential/pkg/encoder"
	cerrors "github.com/tendant/simple-credential/pkg/errors"
	"github.com/tendant/simple-credential/pkg/lockout"
	"github.com/tendant/simple-credential/pkg/random"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequence returns the queued values in order, then falls back to a real
// generator.
type sequence struct {
	mu     sync.Mutex
	values []string
	next   *random.Generator
}

func (s *sequence) pop() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return "", false
	}
	v := s.values[0]
	s.values = s.values[1:]
	return v, true
}

func (s *sequence) Salt() (string, error) {
	if v, ok := s.pop(); ok {
		return v, nil
	}
	return s.next.Salt()
}

func (s *sequence) Token(alg string) (string, error) {
	if v, ok := s.pop(); ok {
		return v, nil
	}
	return s.next.Token(alg)
}

type recordingHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

func (h *recordingHistory) Append(_ context.Context, entry HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return nil
}

func messageOf(err error) string {
	var e *cerrors.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

type failingHistory struct{}

func (failingHistory) Append(context.Context, HistoryEntry) error {
	return fmt.Errorf("history table unavailable")
}

// countingEncoder counts Verify calls on the default encoder.
type countingEncoder struct {
	encoder.Encoder
	verifies atomic.Int32
}

func (c *countingEncoder) Verify(ctx context.Context, stored, password, salt string) (bool, error) {
	c.verifies.Add(1)
	return c.Encoder.Verify(ctx, stored, password, salt)
}

type fixture struct {
	store    *Store
	repo     *InMemoryRepository
	registry *encoder.Registry
	clock    *testClock
	history  *recordingHistory
	salts    *sequence
	tokens   *sequence
}

func setupStore(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		repo:    NewInMemoryRepository(),
		clock:   &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		history: &recordingHistory{},
		salts:   &sequence{next: random.New()},
		tokens:  &sequence{next: random.New()},
	}
	registry, err := encoder.NewDefaultRegistry(encoder.TagPBKDF2SHA256, f.salts,
		encoder.WithPBKDF2Iterations(1000),
		encoder.WithBcryptCost(4))
	require.NoError(t, err)
	f.registry = registry

	base := []Option{
		WithClock(f.clock.Now),
		WithHistory(f.history),
		WithLockoutPolicy(lockout.Policy{Threshold: 5, Duration: 15 * time.Minute}),
		WithTempTokenTTL(2 * time.Hour),
	}
	f.store = NewStore(f.repo, registry, f.tokens, append(base, opts...)...)
	return f
}

func TestCheckPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("NoRecord", func(t *testing.T) {
		f := setupStore(t)
		_, err := f.store.CheckPassword(ctx, uuid.New(), "secret")
		require.Error(t, err)
		assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeNoPasswordSet))
		assert.Equal(t, cerrors.GenericLoginMessage, messageOf(err))
	})

	t.Run("CorrectAndWrongPassword", func(t *testing.T) {
		f := setupStore(t)
		id := uuid.New()
		_, err := f.store.UpdatePassword(ctx, id, "secret")
		require.NoError(t, err)

		rec, err := f.store.CheckPassword(ctx, id, "secret")
		require.NoError(t, err)
		assert.Equal(t, encoder.TagPBKDF2SHA256, rec.AlgorithmTag)

		_, err = f.store.CheckPassword(ctx, id, "guess")
		require.Error(t, err)
		assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeInvalidCredentials))
		assert.Equal(t, cerrors.GenericLoginMessage, messageOf(err))
	})

	t.Run("UnknownAlgorithmIsGeneric", func(t *testing.T) {
		f := setupStore(t)
		id := uuid.New()
		_, err := f.repo.Insert(ctx, Record{IdentityID: id, EncodedPassword: "abc", AlgorithmTag: "crc32"})
		require.NoError(t, err)

		_, err = f.store.CheckPassword(ctx, id, "secret")
		require.Error(t, err)
		assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeUnknownAlgorithm))
		assert.ErrorIs(t, err, encoder.ErrUnknownAlgorithm)
		assert.Equal(t, cerrors.GenericLoginMessage, messageOf(err))
	})

	t.Run("RecordWithoutPassword", func(t *testing.T) {
		f := setupStore(t)
		id := uuid.New()
		_, err := f.store.RegisterFailedLogin(ctx, id)
		require.NoError(t, err)

		_, err = f.store.CheckPassword(ctx, id, "")
		assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeNoPasswordSet))
	})

	t.Run("MissingPasswordRunsDummyVerify", func(t *testing.T) {
		encoders, err := encoder.DefaultEncoders(random.New(), encoder.WithPBKDF2Iterations(1000))
		require.NoError(t, err)
		counting := &countingEncoder{Encoder: encoders[encoder.TagPBKDF2SHA256]}
		encoders[encoder.TagPBKDF2SHA256] = counting
		registry, err := encoder.NewRegistry(encoder.TagPBKDF2SHA256, encoders)
		require.NoError(t, err)
		repo := NewInMemoryRepository()
		store := NewStore(repo, registry, random.New())

		_, err = store.CheckPassword(ctx, uuid.New(), "secret")
		require.Error(t, err)
		assert.Equal(t, int32(1), counting.verifies.Load(), "no record")

		id := uuid.New()
		_, err = repo.Insert(ctx, Record{IdentityID: id})
		require.NoError(t, err)
		_, err = store.CheckPassword(ctx, id, "secret")
		assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeNoPasswordSet))
		assert.Equal(t, int32(2), counting.verifies.Load(), "record without password")

		store.VerifyDummy(ctx, "secret")
		assert.Equal(t, int32(3), counting.verifies.Load())
	})
}

func TestLockout(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t)
	id := uuid.New()
	_, err := f.store.UpdatePassword(ctx, id, "secret")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := f.store.RegisterFailedLogin(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, f.store.CanLogin(ctx, id))

	rec, err := f.store.RegisterFailedLogin(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.FailedLoginCount)

	locked, err := f.store.IsLockedOut(ctx, id)
	require.NoError(t, err)
	assert.True(t, locked)

	_, err = f.store.CheckPassword(ctx, id, "secret")
	require.Error(t, err)
	assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeAccountLocked))
	assert.Contains(t, err.Error(), "15 minutes")

	f.clock.Advance(15 * time.Minute)
	require.NoError(t, f.store.CanLogin(ctx, id))
	_, err = f.store.CheckPassword(ctx, id, "secret")
	require.NoError(t, err)

	rec, err = f.store.RegisterSuccessfulLogin(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, rec.FailedLoginCount)
}

func TestLockoutDisabledStillCounts(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t, WithLockoutPolicy(lockout.Policy{}))
	id := uuid.New()

	for i := 0; i < 10; i++ {
		_, err := f.store.RegisterFailedLogin(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, f.store.CanLogin(ctx, id))

	rec, err := f.store.RegisterSuccessfulLogin(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.FailedLoginCount)
}

func TestConcurrentFailuresAreNotLost(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t, WithLockoutPolicy(lockout.Policy{Threshold: 1000, Duration: time.Minute}))
	id := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.store.RegisterFailedLogin(ctx, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 50, rec.FailedLoginCount)
}

func TestRegisterFailedLoginIgnoresCancellation(t *testing.T) {
	f := setupStore(t)
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := f.store.RegisterFailedLogin(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.FailedLoginCount)
}

func TestUpdatePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("AppendsHistory", func(t *testing.T) {
		f := setupStore(t)
		id := uuid.New()
		rec, err := f.store.UpdatePassword(ctx, id, "first")
		require.NoError(t, err)
		_, err = f.store.UpdatePassword(ctx, id, "second")
		require.NoError(t, err)

		require.Len(t, f.history.entries, 2)
		assert.Equal(t, rec.EncodedPassword, f.history.entries[0].EncodedPassword)
		assert.Equal(t, rec.Salt, f.history.entries[0].Salt)
		assert.Equal(t, id, f.history.entries[1].IdentityID)
	})

	t.Run("ExplicitAlgorithm", func(t *testing.T) {
		f := setupStore(t)
		id := uuid.New()
		rec, err := f.store.UpdatePasswordWith(ctx, id, "secret", encoder.TagMD5V24)
		require.NoError(t, err)
		assert.Equal(t, encoder.TagMD5V24, rec.AlgorithmTag)
		assert.NotEmpty(t, rec.Salt)

		_, err = f.store.CheckPassword(ctx, id, "secret")
		assert.NoError(t, err)
	})

	t.Run("HistoryFailureIsNotReturned", func(t *testing.T) {
		f := setupStore(t, WithHistory(failingHistory{}))
		id := uuid.New()
		rec, err := f.store.UpdatePassword(ctx, id, "secret")
		require.NoError(t, err)
		assert.NotEmpty(t, rec.EncodedPassword)

		_, err = f.store.CheckPassword(ctx, id, "secret")
		assert.NoError(t, err)
	})

	t.Run("MigrationSkipsHistory", func(t *testing.T) {
		f := setupStore(t)
		id := uuid.New()
		_, err := f.store.UpdatePasswordWith(ctx, id, "secret", encoder.TagSHA1)
		require.NoError(t, err)
		require.Len(t, f.history.entries, 1)

		rec, err := f.store.MigratePassword(ctx, id, "secret", encoder.TagSHA1V24)
		require.NoError(t, err)
		assert.Equal(t, encoder.TagSHA1V24, rec.AlgorithmTag)
		assert.Len(t, f.history.entries, 1)

		_, err = f.store.CheckPassword(ctx, id, "secret")
		assert.NoError(t, err)
	})

	t.Run("NoneIsRefused", func(t *testing.T) {
		f := setupStore(t)
		_, err := f.store.UpdatePasswordWith(ctx, uuid.New(), "secret", encoder.TagNone)
		assert.ErrorIs(t, err, encoder.ErrNotSelectable)
	})

	t.Run("UnsaltedEncoderKeepsEmptySalt", func(t *testing.T) {
		f := setupStore(t)
		rec, err := f.store.UpdatePasswordWith(ctx, uuid.New(), "secret", encoder.TagBlowfish)
		require.NoError(t, err)
		assert.Empty(t, rec.Salt)
	})

	t.Run("SaltCollisionIsRetried", func(t *testing.T) {
		f := setupStore(t)
		f.salts.values = []string{"same-salt", "same-salt", "other-salt"}

		first, err := f.store.UpdatePassword(ctx, uuid.New(), "secret")
		require.NoError(t, err)
		second, err := f.store.UpdatePassword(ctx, uuid.New(), "secret")
		require.NoError(t, err)
		assert.Equal(t, "same-salt", first.Salt)
		assert.Equal(t, "other-salt", second.Salt)
	})

	t.Run("CancelledBeforeWrite", func(t *testing.T) {
		f := setupStore(t)
		id := uuid.New()
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := f.store.UpdatePassword(cctx, id, "secret")
		assert.ErrorIs(t, err, context.Canceled)
		_, err = f.repo.Get(ctx, id)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})
}

func TestPasswordExpiry(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t, WithPasswordExpiryDays(30))
	id := uuid.New()

	rec, err := f.store.UpdatePassword(ctx, id, "secret")
	require.NoError(t, err)
	require.NotNil(t, rec.PasswordExpiry)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), *rec.PasswordExpiry)

	expired, err := f.store.IsPasswordExpired(ctx, id)
	require.NoError(t, err)
	assert.False(t, expired)

	f.clock.Advance(30 * 24 * time.Hour)
	expired, err = f.store.IsPasswordExpired(ctx, id)
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestTempToken(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t)
	id := uuid.New()

	token, err := f.store.RegenerateTempToken(ctx, id)
	require.NoError(t, err)
	assert.Len(t, token, 40)

	rec, err := f.store.ResolveTempToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, id, rec.IdentityID)

	t.Run("Unknown", func(t *testing.T) {
		_, err := f.store.ResolveTempToken(ctx, "nope")
		assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeTokenNotFound))
	})

	t.Run("ReplacedTokenIsGone", func(t *testing.T) {
		next, err := f.store.RegenerateTempToken(ctx, id)
		require.NoError(t, err)
		_, err = f.store.ResolveTempToken(ctx, token)
		assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeTokenNotFound))
		token = next
	})

	t.Run("Expired", func(t *testing.T) {
		f.clock.Advance(2 * time.Hour)
		_, err := f.store.ResolveTempToken(ctx, token)
		assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeTokenExpired))
	})

	t.Run("CollisionIsRetried", func(t *testing.T) {
		g := setupStore(t)
		g.tokens.values = []string{"dup", "dup", "fresh"}
		a, err := g.store.RegenerateTempToken(ctx, uuid.New())
		require.NoError(t, err)
		b, err := g.store.RegenerateTempToken(ctx, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, "dup", a)
		assert.Equal(t, "fresh", b)
	})

	t.Run("ZeroTTLNeverExpires", func(t *testing.T) {
		g := setupStore(t, WithTempTokenTTL(0))
		tok, err := g.store.RegenerateTempToken(ctx, uuid.New())
		require.NoError(t, err)
		g.clock.Advance(24 * 365 * time.Hour)
		_, err = g.store.ResolveTempToken(ctx, tok)
		assert.NoError(t, err)
	})
}

func TestEncryptWithRecordSettings(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t)

	t.Run("Empty", func(t *testing.T) {
		got, err := f.store.EncryptWithRecordSettings(ctx, Record{AlgorithmTag: encoder.TagSHA1V24}, "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("NoAlgorithmUsesFallback", func(t *testing.T) {
		got, err := f.store.EncryptWithRecordSettings(ctx, Record{}, "token")
		require.NoError(t, err)
		assert.NotEqual(t, "token", got)

		want, err := f.store.EncryptWithRecordSettings(ctx, Record{AlgorithmTag: encoder.TagSHA256}, "token")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("NoneUsesFallback", func(t *testing.T) {
		rec := Record{AlgorithmTag: encoder.TagNone, Salt: "salt"}
		got, err := f.store.EncryptWithRecordSettings(ctx, rec, "token")
		require.NoError(t, err)
		assert.NotEqual(t, "token", got)

		want, err := f.store.EncryptWithRecordSettings(ctx, Record{AlgorithmTag: encoder.TagSHA256, Salt: "salt"}, "token")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("UsesRecordSalt", func(t *testing.T) {
		a, err := f.store.EncryptWithRecordSettings(ctx, Record{AlgorithmTag: encoder.TagSHA1V24, Salt: "one"}, "token")
		require.NoError(t, err)
		b, err := f.store.EncryptWithRecordSettings(ctx, Record{AlgorithmTag: encoder.TagSHA1V24, Salt: "two"}, "token")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
		assert.NotEqual(t, "token", a)
	})

	t.Run("BlowfishFallsBackToRepeatableHash", func(t *testing.T) {
		rec := Record{AlgorithmTag: encoder.TagBlowfish}
		a, err := f.store.EncryptWithRecordSettings(ctx, rec, "token")
		require.NoError(t, err)
		b, err := f.store.EncryptWithRecordSettings(ctx, rec, "token")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestAutoLoginToken(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t)
	id := uuid.New()
	_, err := f.store.UpdatePassword(ctx, id, "secret")
	require.NoError(t, err)

	token, err := f.store.GenerateAutoLoginToken(ctx, id, 0)
	require.NoError(t, err)

	rec, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, token, rec.AutoLoginToken, "raw token must not be stored")
	require.NotNil(t, rec.AutoLoginExpiry)
	assert.Equal(t, f.clock.Now().Add(DefaultAutoLoginLifetime), *rec.AutoLoginExpiry)

	require.NoError(t, f.store.ValidateAutoLoginToken(ctx, id, token))
	assert.True(t, cerrors.IsCode(f.store.ValidateAutoLoginToken(ctx, id, "other"), cerrors.ErrCodeTokenNotFound))

	f.clock.Advance(DefaultAutoLoginLifetime)
	assert.True(t, cerrors.IsCode(f.store.ValidateAutoLoginToken(ctx, id, token), cerrors.ErrCodeTokenExpired))

	require.NoError(t, f.store.ClearAutoLoginToken(ctx, id))
	assert.True(t, cerrors.IsCode(f.store.ValidateAutoLoginToken(ctx, id, token), cerrors.ErrCodeTokenNotFound))
}

func TestTokensAreNeverStoredRaw(t *testing.T) {
	ctx := context.Background()

	t.Run("NoneRecord", func(t *testing.T) {
		f := setupStore(t)
		id := uuid.New()
		_, err := f.repo.Insert(ctx, Record{IdentityID: id, EncodedPassword: "secret", AlgorithmTag: encoder.TagNone})
		require.NoError(t, err)

		token, err := f.store.GenerateAutoLoginToken(ctx, id, 0)
		require.NoError(t, err)
		rec, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.NotEqual(t, token, rec.AutoLoginToken)
		require.NoError(t, f.store.ValidateAutoLoginToken(ctx, id, token))

		hash, err := f.store.HashToken(ctx, id, "remember")
		require.NoError(t, err)
		assert.NotEqual(t, "remember", hash)
	})

	t.Run("NoPasswordRecord", func(t *testing.T) {
		f := setupStore(t)
		id := uuid.New()

		token, err := f.store.GenerateAutoLoginToken(ctx, id, 0)
		require.NoError(t, err)
		rec, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.NotEmpty(t, rec.AutoLoginToken)
		assert.NotEqual(t, token, rec.AutoLoginToken)
		require.NoError(t, f.store.ValidateAutoLoginToken(ctx, id, token))

		hash, err := f.store.HashToken(ctx, id, "remember")
		require.NoError(t, err)
		assert.NotEqual(t, "remember", hash)
	})
}

func TestMigrateLegacyMembers(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	existing := uuid.New()
	_, err := repo.Insert(ctx, Record{IdentityID: existing, EncodedPassword: "kept", AlgorithmTag: encoder.TagSHA256})
	require.NoError(t, err)

	until := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	members := []LegacyMember{
		{IdentityID: uuid.New(), Password: "abc", PasswordEncryption: encoder.TagMD5, Salt: "s1", FailedLoginCount: 2, LockedOutUntil: &until},
		{IdentityID: uuid.New(), Password: "def", PasswordEncryption: encoder.TagSHA1V24, Salt: "s2", TempIDHash: "tmp"},
		{IdentityID: existing, Password: "overwrite", PasswordEncryption: encoder.TagMD5},
	}

	migrated, err := MigrateLegacyMembers(ctx, staticSource(members), repo)
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)

	rec, err := repo.Get(ctx, members[0].IdentityID)
	require.NoError(t, err)
	assert.Equal(t, "abc", rec.EncodedPassword)
	assert.Equal(t, encoder.TagMD5, rec.AlgorithmTag)
	assert.Equal(t, 2, rec.FailedLoginCount)
	assert.Equal(t, until, *rec.LockedUntil)

	rec, err = repo.FindByTempToken(ctx, "tmp")
	require.NoError(t, err)
	assert.Equal(t, members[1].IdentityID, rec.IdentityID)

	rec, err = repo.Get(ctx, existing)
	require.NoError(t, err)
	assert.Equal(t, "kept", rec.EncodedPassword)
}

type staticSource []LegacyMember

func (s staticSource) PendingMembers(context.Context) ([]LegacyMember, error) {
	return s, nil
}

func TestInMemoryUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	id := uuid.New()

	_, err := repo.Update(ctx, id, func(r *Record) error {
		r.EncodedPassword = "x"
		return fmt.Errorf("boom")
	})
	require.Error(t, err)
	_, err = repo.Get(ctx, id)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
