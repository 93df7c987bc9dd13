package credential

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-credential/pkg/encoder"
	cerrors "github.com/tendant/simple-credential/pkg/errors"
	"github.com/tendant/simple-credential/pkg/lockout"
)

const (
	// DefaultAutoLoginLifetime is how long a password reset token stays valid.
	DefaultAutoLoginLifetime = 48 * time.Hour

	maxRegenerateAttempts = 5

	// tokenHashFallback encodes tokens for records whose algorithm cannot
	// reproduce an encoding.
	tokenHashFallback = encoder.TagSHA256
)

// TokenSource produces random hex tokens.
type TokenSource interface {
	Token(alg string) (string, error)
}

// HistoryEntry is a snapshot of a newly set password.
type HistoryEntry struct {
	IdentityID      uuid.UUID
	EncodedPassword string
	AlgorithmTag    string
	Salt            string
	CreatedAt       time.Time
}

// HistoryAppender receives a snapshot after every password change.
type HistoryAppender interface {
	Append(ctx context.Context, entry HistoryEntry) error
}

// Store applies credential operations to the record of one identity at a
// time. Every mutation goes through Repository.Update so concurrent logins
// for the same identity cannot lose counter updates.
type Store struct {
	repo               Repository
	registry           *encoder.Registry
	tokens             TokenSource
	policy             lockout.Policy
	tempTokenTTL       time.Duration
	passwordExpiryDays int
	history            HistoryAppender
	now                func() time.Time

	dummyMu   sync.Mutex
	dummyEnc  encoder.Encoder
	dummyHash string
	dummySalt string
}

type Option func(*Store)

func WithLockoutPolicy(policy lockout.Policy) Option {
	return func(s *Store) {
		s.policy = policy
	}
}

// WithTempTokenTTL sets the temp token lifetime. Zero means temp tokens
// never expire.
func WithTempTokenTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.tempTokenTTL = ttl
	}
}

// WithPasswordExpiryDays sets how long a new password stays valid. Zero
// means passwords never expire.
func WithPasswordExpiryDays(days int) Option {
	return func(s *Store) {
		s.passwordExpiryDays = days
	}
}

func WithHistory(history HistoryAppender) Option {
	return func(s *Store) {
		s.history = history
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(repo Repository, registry *encoder.Registry, tokens TokenSource, opts ...Option) *Store {
	s := &Store{
		repo:     repo,
		registry: registry,
		tokens:   tokens,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.dummy(context.Background()); err != nil {
		slog.Warn("Failed to prepare dummy password hash", "error", err)
	}
	return s
}

// dummy returns the default encoder together with a hash of a random value
// made with it. It is built once; a failed build is retried on the next call.
func (s *Store) dummy(ctx context.Context) (encoder.Encoder, error) {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()
	if s.dummyEnc != nil {
		return s.dummyEnc, nil
	}
	_, enc := s.registry.Default()
	salt, salted, err := enc.GenerateSalt()
	if err != nil {
		return nil, err
	}
	if !salted {
		salt = ""
	}
	value, err := s.tokens.Token("sha1")
	if err != nil {
		return nil, err
	}
	hash, err := enc.Encode(ctx, value, salt)
	if err != nil {
		return nil, err
	}
	s.dummyEnc, s.dummyHash, s.dummySalt = enc, hash, salt
	return enc, nil
}

// VerifyDummy runs password through the default encoder against a hash that
// can never match. Login paths that have nothing to verify call it so they
// take as long as a real verification.
func (s *Store) VerifyDummy(ctx context.Context, password string) {
	enc, err := s.dummy(ctx)
	if err != nil {
		slog.Warn("Dummy password verification skipped", "error", err)
		return
	}
	_, _ = enc.Verify(ctx, s.dummyHash, password, s.dummySalt)
}

// LockoutPolicy returns the configured policy.
func (s *Store) LockoutPolicy() lockout.Policy {
	return s.policy
}

// Get returns the record of identityID.
func (s *Store) Get(ctx context.Context, identityID uuid.UUID) (Record, error) {
	return s.repo.Get(ctx, identityID)
}

// CanLogin reports an AccountLocked error while a lock is running.
func (s *Store) CanLogin(ctx context.Context, identityID uuid.UUID) error {
	rec, err := s.repo.Get(ctx, identityID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.canLogin(rec)
}

func (s *Store) canLogin(rec Record) error {
	decision := s.policy.Evaluate(rec.FailedLoginCount, rec.LockedUntil, s.now())
	if !decision.Allowed {
		return cerrors.AccountLocked(decision.RetryAfter)
	}
	return nil
}

// IsLockedOut reports whether the identity has a running lock.
func (s *Store) IsLockedOut(ctx context.Context, identityID uuid.UUID) (bool, error) {
	rec, err := s.repo.Get(ctx, identityID)
	if errors.Is(err, ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.IsLockedOut(s.now()), nil
}

// IsPasswordExpired reports whether the identity must change its password.
func (s *Store) IsPasswordExpired(ctx context.Context, identityID uuid.UUID) (bool, error) {
	rec, err := s.repo.Get(ctx, identityID)
	if errors.Is(err, ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.IsPasswordExpired(s.now()), nil
}

// CheckPassword verifies password for identityID. A running lock is reported
// as AccountLocked; every other failure carries the generic login message and
// a code that tells the cause apart for logging and audit.
func (s *Store) CheckPassword(ctx context.Context, identityID uuid.UUID, password string) (Record, error) {
	rec, err := s.repo.Get(ctx, identityID)
	if errors.Is(err, ErrRecordNotFound) {
		s.VerifyDummy(ctx, password)
		return Record{}, cerrors.New(cerrors.ErrCodeNoPasswordSet, cerrors.GenericLoginMessage)
	}
	if err != nil {
		return Record{}, cerrors.InternalWrap(err, "failed to load credential record")
	}

	if err := s.canLogin(rec); err != nil {
		return rec, err
	}
	if !rec.HasPassword() {
		s.VerifyDummy(ctx, password)
		return rec, cerrors.New(cerrors.ErrCodeNoPasswordSet, cerrors.GenericLoginMessage)
	}

	enc, err := s.registry.Lookup(rec.AlgorithmTag)
	if err != nil {
		slog.Error("Credential record names an unregistered algorithm", "identity_id", identityID, "algorithm", rec.AlgorithmTag)
		return rec, cerrors.Wrap(err, cerrors.ErrCodeUnknownAlgorithm, cerrors.GenericLoginMessage)
	}

	ok, err := enc.Verify(ctx, rec.EncodedPassword, password, rec.Salt)
	if err != nil {
		slog.Warn("Password verification failed", "identity_id", identityID, "algorithm", rec.AlgorithmTag, "error", err)
		return rec, cerrors.Wrap(err, cerrors.ErrCodeInvalidCredentials, cerrors.GenericLoginMessage)
	}
	if !ok {
		return rec, cerrors.InvalidCredentials()
	}
	return rec, nil
}

// UpdatePassword encodes password with the default algorithm under a fresh
// salt, resets the password expiry and appends a history entry.
func (s *Store) UpdatePassword(ctx context.Context, identityID uuid.UUID, password string) (Record, error) {
	tag, _ := s.registry.Default()
	return s.UpdatePasswordWith(ctx, identityID, password, tag)
}

// UpdatePasswordWith is UpdatePassword with an explicit algorithm.
func (s *Store) UpdatePasswordWith(ctx context.Context, identityID uuid.UUID, password, tag string) (Record, error) {
	return s.setPassword(ctx, identityID, password, tag, true)
}

// MigratePassword re-encodes a verified password with tag after a login on a
// legacy algorithm. The password itself is unchanged, so no history entry is
// written.
func (s *Store) MigratePassword(ctx context.Context, identityID uuid.UUID, password, tag string) (Record, error) {
	return s.setPassword(ctx, identityID, password, tag, false)
}

func (s *Store) setPassword(ctx context.Context, identityID uuid.UUID, password, tag string, record bool) (Record, error) {
	enc, err := s.registry.Lookup(tag)
	if err != nil {
		return Record{}, cerrors.Wrap(err, cerrors.ErrCodeUnknownAlgorithm, "password algorithm is not registered")
	}
	if !encoder.IsSelectable(enc) {
		return Record{}, cerrors.Wrapf(encoder.ErrNotSelectable, cerrors.ErrCodeMisconfigured, "algorithm %q cannot protect new passwords", tag)
	}

	var rec Record
	for attempt := 0; attempt < maxRegenerateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}

		salt, salted, err := enc.GenerateSalt()
		if err != nil {
			return Record{}, cerrors.InternalWrap(err, "failed to generate salt")
		}
		if !salted {
			salt = ""
		}
		encoded, err := enc.Encode(ctx, password, salt)
		if err != nil {
			return Record{}, cerrors.InternalWrap(err, "failed to encode password")
		}

		now := s.now()
		rec, err = s.repo.Update(ctx, identityID, func(r *Record) error {
			r.EncodedPassword = encoded
			r.Salt = salt
			r.AlgorithmTag = tag
			r.PasswordExpiry = s.passwordExpiry(now)
			return nil
		})
		if errors.Is(err, ErrDuplicateValue) {
			slog.Warn("Salt collision, regenerating", "identity_id", identityID)
			continue
		}
		if err != nil {
			return Record{}, cerrors.InternalWrap(err, "failed to store password")
		}

		slog.Info("Password updated", "identity_id", identityID, "algorithm", tag)
		if record && s.history != nil {
			entry := HistoryEntry{
				IdentityID:      identityID,
				EncodedPassword: rec.EncodedPassword,
				AlgorithmTag:    rec.AlgorithmTag,
				Salt:            rec.Salt,
				CreatedAt:       now,
			}
			if err := s.history.Append(context.WithoutCancel(ctx), entry); err != nil {
				// The password is already stored; history is best effort.
				slog.Error("Failed to append password history", "identity_id", identityID, "error", err)
			}
		}
		return rec, nil
	}
	return Record{}, cerrors.New(cerrors.ErrCodeInternal, "could not generate a unique salt")
}

func (s *Store) passwordExpiry(now time.Time) *time.Time {
	if s.passwordExpiryDays <= 0 {
		return nil
	}
	expiry := dateOf(now).AddDate(0, 0, s.passwordExpiryDays)
	return &expiry
}

// RegisterFailedLogin counts a failed attempt and locks the record once the
// threshold is reached. It runs to completion even if ctx is cancelled.
func (s *Store) RegisterFailedLogin(ctx context.Context, identityID uuid.UUID) (Record, error) {
	ctx = context.WithoutCancel(ctx)
	rec, err := s.repo.Update(ctx, identityID, func(r *Record) error {
		r.FailedLoginCount, r.LockedUntil = s.policy.AfterFailure(r.FailedLoginCount, r.LockedUntil, s.now())
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to register failed login: %w", err)
	}
	if rec.IsLockedOut(s.now()) {
		slog.Warn("Identity locked out", "identity_id", identityID, "failed_count", rec.FailedLoginCount, "locked_until", rec.LockedUntil)
	}
	return rec, nil
}

// RegisterSuccessfulLogin forgives past failures when lockout is active. It
// runs to completion even if ctx is cancelled.
func (s *Store) RegisterSuccessfulLogin(ctx context.Context, identityID uuid.UUID) (Record, error) {
	if !s.policy.Enabled() {
		rec, err := s.repo.Get(ctx, identityID)
		if errors.Is(err, ErrRecordNotFound) {
			return Record{IdentityID: identityID}, nil
		}
		return rec, err
	}
	ctx = context.WithoutCancel(ctx)
	rec, err := s.repo.Update(ctx, identityID, func(r *Record) error {
		r.FailedLoginCount = s.policy.AfterSuccess(r.FailedLoginCount)
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to register successful login: %w", err)
	}
	return rec, nil
}

// RegenerateTempToken issues a new temp token for silent re-authentication.
func (s *Store) RegenerateTempToken(ctx context.Context, identityID uuid.UUID) (string, error) {
	for attempt := 0; attempt < maxRegenerateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		token, err := s.tokens.Token("sha1")
		if err != nil {
			return "", cerrors.InternalWrap(err, "failed to generate temp token")
		}

		var expiry *time.Time
		if s.tempTokenTTL > 0 {
			t := s.now().Add(s.tempTokenTTL)
			expiry = &t
		}
		_, err = s.repo.Update(ctx, identityID, func(r *Record) error {
			r.TempToken = token
			r.TempTokenExpiry = expiry
			return nil
		})
		if errors.Is(err, ErrDuplicateValue) {
			continue
		}
		if err != nil {
			return "", cerrors.InternalWrap(err, "failed to store temp token")
		}
		return token, nil
	}
	return "", cerrors.New(cerrors.ErrCodeInternal, "could not generate a unique temp token")
}

// ResolveTempToken returns the record holding a live temp token.
func (s *Store) ResolveTempToken(ctx context.Context, token string) (Record, error) {
	rec, err := s.repo.FindByTempToken(ctx, token)
	if errors.Is(err, ErrRecordNotFound) {
		return Record{}, cerrors.New(cerrors.ErrCodeTokenNotFound, "temp token not found")
	}
	if err != nil {
		return Record{}, cerrors.InternalWrap(err, "failed to resolve temp token")
	}
	if rec.TempTokenExpiry != nil && !s.now().Before(*rec.TempTokenExpiry) {
		return Record{}, cerrors.New(cerrors.ErrCodeTokenExpired, "temp token expired")
	}
	return rec, nil
}

// EncryptWithRecordSettings encodes value with the record's own algorithm and
// salt, the way every stored token is protected. Records without an
// algorithm, or whose algorithm cannot produce a stable hash, use the
// SHA-256 fallback so a raw token is never stored.
func (s *Store) EncryptWithRecordSettings(ctx context.Context, rec Record, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	tag := rec.AlgorithmTag
	if tag == "" {
		tag = tokenHashFallback
	}
	enc, err := s.registry.Lookup(tag)
	if err != nil {
		return "", cerrors.Wrap(err, cerrors.ErrCodeUnknownAlgorithm, "record algorithm is not registered")
	}
	if !encoder.IsRepeatable(enc) || !encoder.IsSelectable(enc) {
		if enc, err = s.registry.Lookup(tokenHashFallback); err != nil {
			return "", cerrors.Wrap(err, cerrors.ErrCodeUnknownAlgorithm, "token fallback algorithm is not registered")
		}
	}
	return enc.Encode(ctx, value, rec.Salt)
}

// GenerateAutoLoginToken stores the hash of a new password reset token and
// returns the raw token. A lifetime of zero uses DefaultAutoLoginLifetime.
func (s *Store) GenerateAutoLoginToken(ctx context.Context, identityID uuid.UUID, lifetime time.Duration) (string, error) {
	if lifetime <= 0 {
		lifetime = DefaultAutoLoginLifetime
	}
	rec, err := s.repo.Get(ctx, identityID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return "", cerrors.InternalWrap(err, "failed to load credential record")
	}

	for attempt := 0; attempt < maxRegenerateAttempts; attempt++ {
		token, err := s.tokens.Token("sha1")
		if err != nil {
			return "", cerrors.InternalWrap(err, "failed to generate auto-login token")
		}
		hash, err := s.EncryptWithRecordSettings(ctx, rec, token)
		if err != nil {
			return "", err
		}
		expiry := s.now().Add(lifetime)
		_, err = s.repo.Update(ctx, identityID, func(r *Record) error {
			if r.AlgorithmTag != rec.AlgorithmTag || r.Salt != rec.Salt {
				return errRecordChanged
			}
			r.AutoLoginToken = hash
			r.AutoLoginExpiry = &expiry
			return nil
		})
		switch {
		case errors.Is(err, ErrDuplicateValue):
			continue
		case errors.Is(err, errRecordChanged):
			// Password changed underneath us; hash again with the new settings.
			if rec, err = s.repo.Get(ctx, identityID); err != nil {
				return "", cerrors.InternalWrap(err, "failed to reload credential record")
			}
			continue
		case err != nil:
			return "", cerrors.InternalWrap(err, "failed to store auto-login token")
		}
		return token, nil
	}
	return "", cerrors.New(cerrors.ErrCodeInternal, "could not generate a unique auto-login token")
}

var errRecordChanged = errors.New("credential record changed")

// ValidateAutoLoginToken checks a presented reset token against the stored
// hash and its expiry.
func (s *Store) ValidateAutoLoginToken(ctx context.Context, identityID uuid.UUID, token string) error {
	rec, err := s.repo.Get(ctx, identityID)
	if errors.Is(err, ErrRecordNotFound) {
		return cerrors.New(cerrors.ErrCodeTokenNotFound, "auto-login token not found")
	}
	if err != nil {
		return cerrors.InternalWrap(err, "failed to load credential record")
	}
	if rec.AutoLoginToken == "" || token == "" {
		return cerrors.New(cerrors.ErrCodeTokenNotFound, "auto-login token not found")
	}
	hash, err := s.EncryptWithRecordSettings(ctx, rec, token)
	if err != nil {
		return err
	}
	if !encoderEqual(hash, rec.AutoLoginToken) {
		return cerrors.New(cerrors.ErrCodeTokenNotFound, "auto-login token not found")
	}
	if rec.AutoLoginExpiry == nil || !s.now().Before(*rec.AutoLoginExpiry) {
		return cerrors.New(cerrors.ErrCodeTokenExpired, "auto-login token expired")
	}
	return nil
}

// ClearAutoLoginToken invalidates any outstanding reset token.
func (s *Store) ClearAutoLoginToken(ctx context.Context, identityID uuid.UUID) error {
	_, err := s.repo.Update(ctx, identityID, func(r *Record) error {
		r.AutoLoginToken = ""
		r.AutoLoginExpiry = nil
		return nil
	})
	if err != nil {
		return cerrors.InternalWrap(err, "failed to clear auto-login token")
	}
	return nil
}

// DeleteByIdentity removes the record; identity deletion cascades here.
func (s *Store) DeleteByIdentity(ctx context.Context, identityID uuid.UUID) error {
	return s.repo.DeleteByIdentity(ctx, identityID)
}

func encoderEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashToken protects a token for storage with the settings of identityID's
// record.
func (s *Store) HashToken(ctx context.Context, identityID uuid.UUID, token string) (string, error) {
	rec, err := s.repo.Get(ctx, identityID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return "", cerrors.InternalWrap(err, "failed to load credential record")
	}
	return s.EncryptWithRecordSettings(ctx, rec, token)
}
