// Package auth is the single entry point for member authentication. It
// resolves the identity for an attempt, gates it on lockout, verifies the
// password, upgrades legacy hashes and records every attempt for audit.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-credential/pkg/credential"
	cerrors "github.com/tendant/simple-credential/pkg/errors"
	"github.com/tendant/simple-credential/pkg/identity"
	"github.com/tendant/simple-credential/pkg/loginattempt"
	"github.com/tendant/simple-credential/pkg/notification"
	"github.com/tendant/simple-credential/pkg/passwordhistory"
	"github.com/tendant/simple-credential/pkg/passwordpolicy"
	"github.com/tendant/simple-credential/pkg/rememberme"
	"github.com/tendant/simple-credential/pkg/session"
)

// Notifier delivers account notices. *notification.NotificationManager
// satisfies it.
type Notifier interface {
	Send(noticeType notification.NoticeType, data notification.NotificationData) error
}

// Credentials is what a login form submits. TempToken, when set, replaces
// the identifier and password.
type Credentials struct {
	Identifier    string
	Password      string
	TempToken     string
	Remember      bool
	DeviceID      string
	SourceAddress string
}

// RememberMeCredentials is what a returning client presents for auto login.
type RememberMeCredentials struct {
	IdentityID    uuid.UUID
	DeviceID      string
	Token         string
	SourceAddress string
}

// Result describes a finished attempt. On failure only Message is set and it
// never reveals why the attempt failed, except for a running lockout.
type Result struct {
	Success         bool
	Identity        identity.Identity
	Method          session.Method
	Message         string
	PasswordExpired bool
	TempToken       string
	RememberMe      *rememberme.Issued
}

type Service struct {
	cfg        Config
	identities *identity.Service
	store      *credential.Store
	history    *passwordhistory.Log
	recorder   *loginattempt.Recorder
	rememberMe *rememberme.Manager
	policy     *passwordpolicy.Checker
	notifier   Notifier
	now        func() time.Time
}

type Option func(*Service)

func WithHistory(history *passwordhistory.Log) Option {
	return func(s *Service) {
		s.history = history
	}
}

func WithRecorder(recorder *loginattempt.Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

func WithRememberMe(manager *rememberme.Manager) Option {
	return func(s *Service) {
		s.rememberMe = manager
	}
}

func WithPasswordPolicy(checker *passwordpolicy.Checker) Option {
	return func(s *Service) {
		s.policy = checker
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(cfg Config, identities *identity.Service, store *credential.Store, opts ...Option) *Service {
	if cfg.MigrateLegacy == nil {
		cfg.MigrateLegacy = map[string]string{}
	}
	s := &Service{
		cfg:        cfg,
		identities: identities,
		store:      store,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate runs one login attempt. The returned error carries a code
// from pkg/errors; its message is safe to show to the requester.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	creds.Identifier = strings.TrimSpace(creds.Identifier)

	switch {
	case creds.TempToken != "":
		return s.authenticateTempToken(ctx, creds)
	case s.isDefaultAdmin(creds.Identifier):
		return s.authenticateDefaultAdmin(ctx, creds)
	default:
		return s.authenticatePassword(ctx, creds)
	}
}

func (s *Service) isDefaultAdmin(identifier string) bool {
	return s.cfg.DefaultAdmin.Enabled() && identifier == s.cfg.DefaultAdmin.Identifier
}

func (s *Service) authenticateTempToken(ctx context.Context, creds Credentials) (Result, error) {
	rec, err := s.store.ResolveTempToken(ctx, creds.TempToken)
	if err != nil {
		slog.Info("Temp token login rejected", "code", cerrors.GetCode(err))
		return s.fail(ctx, creds, nil, err)
	}
	ident, err := s.identities.Get(ctx, rec.IdentityID)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return s.fail(ctx, creds, nil, cerrors.New(cerrors.ErrCodeTokenNotFound, "temp token not found"))
		}
		return Result{}, cerrors.InternalWrap(err, "failed to load identity")
	}
	if creds.Identifier == "" {
		creds.Identifier = ident.Identifier(s.identities.IdentifierField())
	}
	if err := s.store.CanLogin(ctx, ident.ID); err != nil {
		return s.fail(ctx, creds, &ident.ID, err)
	}
	return s.succeed(ctx, creds, ident, session.MethodTempToken, false)
}

func (s *Service) authenticateDefaultAdmin(ctx context.Context, creds Credentials) (Result, error) {
	ident, err := s.identities.FindOrCreate(ctx, creds.Identifier, "Default Admin")
	if err != nil {
		return Result{}, cerrors.InternalWrap(err, "failed to resolve default admin")
	}
	if err := s.store.CanLogin(ctx, ident.ID); err != nil {
		slog.Warn("Default admin is locked out", "identity_id", ident.ID)
		return s.failAndCount(ctx, creds, ident.ID, err)
	}

	expected := s.cfg.DefaultAdmin.Password
	if subtle.ConstantTimeCompare([]byte(creds.Password), []byte(expected)) != 1 {
		slog.Info("Default admin login failed", "identity_id", ident.ID)
		return s.failAndCount(ctx, creds, ident.ID, cerrors.InvalidCredentials())
	}
	return s.succeed(ctx, creds, ident, session.MethodDefaultAdmin, true)
}

func (s *Service) authenticatePassword(ctx context.Context, creds Credentials) (Result, error) {
	if creds.Identifier == "" {
		return s.fail(ctx, creds, nil, cerrors.InvalidCredentials())
	}
	ident, err := s.identities.Find(ctx, creds.Identifier)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			slog.Info("Login attempt for unknown identifier")
			s.store.VerifyDummy(ctx, creds.Password)
			return s.fail(ctx, creds, nil, cerrors.InvalidCredentials())
		}
		return Result{}, cerrors.InternalWrap(err, "failed to look up identity")
	}

	rec, err := s.store.CheckPassword(ctx, ident.ID, creds.Password)
	if err != nil {
		switch cerrors.GetCode(err) {
		case cerrors.ErrCodeUnknownAlgorithm, cerrors.ErrCodeInternal:
			// Operator faults do not count against the member.
			return s.fail(ctx, creds, &ident.ID, err)
		}
		slog.Info("Password login failed", "identity_id", ident.ID, "code", cerrors.GetCode(err))
		return s.failAndCount(ctx, creds, ident.ID, err)
	}

	// Cleartext is only available here, so this is the one chance to move a
	// legacy hash to its successor.
	if target, ok := s.cfg.migrationTarget(rec.AlgorithmTag); ok {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if _, err := s.store.MigratePassword(ctx, ident.ID, creds.Password, target); err != nil {
			slog.Error("Failed to migrate legacy password", "identity_id", ident.ID, "from", rec.AlgorithmTag, "to", target, "error", err)
		} else {
			slog.Info("Migrated legacy password", "identity_id", ident.ID, "from", rec.AlgorithmTag, "to", target)
		}
	}
	return s.succeed(ctx, creds, ident, session.MethodPassword, true)
}

func (s *Service) succeed(ctx context.Context, creds Credentials, ident identity.Identity, method session.Method, primary bool) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if _, err := s.store.RegisterSuccessfulLogin(ctx, ident.ID); err != nil {
		slog.Error("Failed to register successful login", "identity_id", ident.ID, "error", err)
	}

	result := Result{
		Success:  true,
		Identity: ident,
		Method:   method,
	}
	if primary {
		token, err := s.store.RegenerateTempToken(ctx, ident.ID)
		if err != nil {
			slog.Error("Failed to regenerate temp token", "identity_id", ident.ID, "error", err)
		}
		result.TempToken = token
	}
	if creds.Remember && s.rememberMe != nil {
		issued, err := s.rememberMe.Issue(ctx, ident.ID, creds.DeviceID)
		if err != nil {
			slog.Error("Failed to issue remember-me token", "identity_id", ident.ID, "error", err)
		} else {
			result.RememberMe = &issued
		}
	}
	expired, err := s.store.IsPasswordExpired(ctx, ident.ID)
	if err != nil {
		slog.Error("Failed to check password expiry", "identity_id", ident.ID, "error", err)
	}
	result.PasswordExpired = expired

	s.audit(ctx, creds.Identifier, &ident.ID, creds.SourceAddress, nil)
	slog.Info("Login succeeded", "identity_id", ident.ID, "method", method)
	return result, nil
}

// failAndCount registers the failure against identityID before reporting it.
func (s *Service) failAndCount(ctx context.Context, creds Credentials, identityID uuid.UUID, cause error) (Result, error) {
	if _, err := s.store.RegisterFailedLogin(ctx, identityID); err != nil {
		slog.Error("Failed to register failed login", "identity_id", identityID, "error", err)
	}
	return s.fail(ctx, creds, &identityID, cause)
}

func (s *Service) fail(ctx context.Context, creds Credentials, identityID *uuid.UUID, cause error) (Result, error) {
	s.audit(ctx, creds.Identifier, identityID, creds.SourceAddress, cause)
	userErr := publicError(cause)
	return Result{Message: userErr.Message}, userErr
}

// publicError reports every cause except lockout and token problems as
// InvalidCredentials with the generic login message. The real cause stays
// reachable through Unwrap for logging.
func publicError(err error) *cerrors.Error {
	switch cerrors.GetCode(err) {
	case cerrors.ErrCodeAccountLocked, cerrors.ErrCodeTokenExpired, cerrors.ErrCodeTokenNotFound:
		var e *cerrors.Error
		if errors.As(err, &e) {
			return e
		}
	}
	return cerrors.Wrap(err, cerrors.ErrCodeInvalidCredentials, cerrors.GenericLoginMessage)
}

func (s *Service) audit(ctx context.Context, identifier string, identityID *uuid.UUID, source string, cause error) {
	if s.recorder == nil {
		return
	}
	attempt := loginattempt.Attempt{
		Identifier:    identifier,
		IdentityID:    identityID,
		Success:       cause == nil,
		SourceAddress: source,
	}
	if cause != nil {
		attempt.Reason = string(cerrors.GetCode(cause))
		if identityID == nil && attempt.Reason == string(cerrors.ErrCodeInvalidCredentials) {
			attempt.Reason = "unknown_identifier"
		}
	}
	s.recorder.Record(ctx, attempt)
}

// CanLogin reports an AccountLocked error while identityID is locked out.
func (s *Service) CanLogin(ctx context.Context, identityID uuid.UUID) error {
	return s.store.CanLogin(ctx, identityID)
}

func (s *Service) IsLockedOut(ctx context.Context, identityID uuid.UUID) (bool, error) {
	return s.store.IsLockedOut(ctx, identityID)
}

func (s *Service) IsPasswordExpired(ctx context.Context, identityID uuid.UUID) (bool, error) {
	return s.store.IsPasswordExpired(ctx, identityID)
}

// ChangePassword sets a new password after checking it against the password
// policy and recent history. Any outstanding reset token is invalidated.
func (s *Service) ChangePassword(ctx context.Context, identityID uuid.UUID, newPassword string) error {
	if s.policy != nil {
		if err := s.policy.Check(newPassword); err != nil {
			return err
		}
	}
	if s.history != nil && s.cfg.HistoryCheckCount > 0 {
		reused, err := s.history.IsReused(ctx, identityID, newPassword, s.cfg.HistoryCheckCount)
		if err != nil {
			return cerrors.InternalWrap(err, "failed to check password history")
		}
		if reused {
			return cerrors.New(cerrors.ErrCodePasswordReused, "new password cannot match any of your recent passwords")
		}
	}

	if _, err := s.store.UpdatePassword(ctx, identityID, newPassword); err != nil {
		return err
	}
	if err := s.store.ClearAutoLoginToken(context.WithoutCancel(ctx), identityID); err != nil {
		slog.Error("Failed to clear auto-login token", "identity_id", identityID, "error", err)
	}

	if s.cfg.NotifyPasswordChange {
		s.notifyPasswordChanged(ctx, identityID)
	}
	return nil
}

// ChangePasswordWithCurrent is ChangePassword for a member who must prove
// the current password first.
func (s *Service) ChangePasswordWithCurrent(ctx context.Context, identityID uuid.UUID, current, newPassword string) error {
	if _, err := s.store.CheckPassword(ctx, identityID, current); err != nil {
		if cerrors.IsCode(err, cerrors.ErrCodeAccountLocked) {
			return err
		}
		return cerrors.Wrap(err, cerrors.ErrCodeInvalidCredentials, "the current password you have entered is not correct")
	}
	return s.ChangePassword(ctx, identityID, newPassword)
}

func (s *Service) notifyPasswordChanged(ctx context.Context, identityID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	ident, err := s.identities.Get(ctx, identityID)
	if err != nil || ident.Email == "" {
		slog.Warn("Cannot send password change notice", "identity_id", identityID, "error", err)
		return
	}
	err = s.notifier.Send(notification.PasswordChangedNotice, notification.NotificationData{
		To: ident.Email,
		Data: map[string]string{
			"DisplayName": displayName(ident),
			"ChangedAt":   s.now().UTC().Format(time.RFC1123),
		},
	})
	if err != nil {
		slog.Error("Failed to send password change notice", "identity_id", identityID, "error", err)
	}
}

// RequestPasswordReset emails a reset link to the identity with identifier.
// Unknown identifiers are not reported so the response cannot be used to
// discover accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, identifier string) error {
	ident, err := s.identities.Find(ctx, identifier)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			slog.Info("Password reset requested for unknown identifier")
			return nil
		}
		return cerrors.InternalWrap(err, "failed to look up identity")
	}
	if ident.Email == "" {
		slog.Warn("Identity has no email address for password reset", "identity_id", ident.ID)
		return nil
	}
	if s.notifier == nil {
		return cerrors.New(cerrors.ErrCodeMisconfigured, "password reset is not available")
	}

	token, err := s.store.GenerateAutoLoginToken(ctx, ident.ID, s.cfg.AutoLoginLifetime)
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.autoLoginLifetime())
	err = s.notifier.Send(notification.PasswordResetNotice, notification.NotificationData{
		To: ident.Email,
		Data: map[string]string{
			"DisplayName": displayName(ident),
			"ResetLink":   s.resetLink(ident.ID, token),
			"ExpiresAt":   expiresAt.UTC().Format(time.RFC1123),
		},
	})
	if err != nil {
		slog.Error("Failed to send password reset link", "identity_id", ident.ID, "error", err)
		return cerrors.InternalWrap(err, "failed to send password reset link")
	}
	slog.Info("Password reset link sent", "identity_id", ident.ID)
	return nil
}

func (s *Service) autoLoginLifetime() time.Duration {
	if s.cfg.AutoLoginLifetime > 0 {
		return s.cfg.AutoLoginLifetime
	}
	return credential.DefaultAutoLoginLifetime
}

func (s *Service) resetLink(identityID uuid.UUID, token string) string {
	q := url.Values{}
	q.Set("id", identityID.String())
	q.Set("token", token)
	base := s.cfg.ResetLinkBaseURL
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

// ResetPassword sets a new password for the holder of a valid reset token.
func (s *Service) ResetPassword(ctx context.Context, identityID uuid.UUID, token, newPassword string) error {
	if err := s.store.ValidateAutoLoginToken(ctx, identityID, token); err != nil {
		return err
	}
	return s.ChangePassword(ctx, identityID, newPassword)
}

// IssueRememberMe creates a remember-me token for a device, generating a
// device id when deviceID is empty.
func (s *Service) IssueRememberMe(ctx context.Context, identityID uuid.UUID, deviceID string) (rememberme.Issued, error) {
	if s.rememberMe == nil {
		return rememberme.Issued{}, cerrors.New(cerrors.ErrCodeMisconfigured, "remember me is not enabled")
	}
	issued, err := s.rememberMe.Issue(ctx, identityID, deviceID)
	if err != nil {
		return rememberme.Issued{}, cerrors.InternalWrap(err, "failed to issue remember-me token")
	}
	return issued, nil
}

func (s *Service) ValidateRememberMe(ctx context.Context, identityID uuid.UUID, deviceID, token string) (bool, error) {
	if s.rememberMe == nil {
		return false, nil
	}
	return s.rememberMe.Validate(ctx, identityID, deviceID, token)
}

// RevokeRememberMe deletes the token of deviceID, or all tokens when
// deviceID is empty. Revoking twice is not an error.
func (s *Service) RevokeRememberMe(ctx context.Context, identityID uuid.UUID, deviceID string) error {
	if s.rememberMe == nil {
		return nil
	}
	return s.rememberMe.Revoke(ctx, identityID, deviceID)
}

// AutoLogin signs a returning client in with its remember-me token and
// rotates the token for that device.
func (s *Service) AutoLogin(ctx context.Context, creds RememberMeCredentials) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	attempt := Credentials{DeviceID: creds.DeviceID, SourceAddress: creds.SourceAddress}
	notFound := cerrors.New(cerrors.ErrCodeTokenNotFound, "remember-me token not found")

	ident, err := s.identities.Get(ctx, creds.IdentityID)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return s.fail(ctx, attempt, nil, notFound)
		}
		return Result{}, cerrors.InternalWrap(err, "failed to load identity")
	}
	attempt.Identifier = ident.Identifier(s.identities.IdentifierField())

	ok, err := s.ValidateRememberMe(ctx, ident.ID, creds.DeviceID, creds.Token)
	if err != nil {
		return Result{}, cerrors.InternalWrap(err, "failed to validate remember-me token")
	}
	if !ok {
		return s.fail(ctx, attempt, &ident.ID, notFound)
	}
	if err := s.store.CanLogin(ctx, ident.ID); err != nil {
		return s.fail(ctx, attempt, &ident.ID, err)
	}

	renewed, err := s.rememberMe.Renew(ctx, ident.ID, creds.DeviceID, creds.Token)
	if errors.Is(err, rememberme.ErrTokenNotFound) {
		// Another request rotated the token first.
		return s.fail(ctx, attempt, &ident.ID, notFound)
	}
	if err != nil {
		return Result{}, cerrors.InternalWrap(err, "failed to renew remember-me token")
	}
	result, err := s.succeed(ctx, attempt, ident, session.MethodRememberMe, false)
	if err != nil {
		return result, err
	}
	result.RememberMe = &renewed
	return result, nil
}

// Logout revokes the remember-me token of the device, or of every device
// when configured to log out across devices.
func (s *Service) Logout(ctx context.Context, identityID uuid.UUID, deviceID string) error {
	var err error
	switch {
	case s.cfg.LogoutAcrossDevices:
		err = s.RevokeRememberMe(ctx, identityID, "")
	case deviceID != "":
		err = s.RevokeRememberMe(ctx, identityID, deviceID)
	}
	if err != nil {
		return cerrors.InternalWrap(err, "failed to revoke remember-me token")
	}
	slog.Info("Logged out", "identity_id", identityID, "all_devices", s.cfg.LogoutAcrossDevices)
	return nil
}

// SetPassword sets a password without policy or history checks. Used by
// operator tooling.
func (s *Service) SetPassword(ctx context.Context, identifier, password string) (identity.Identity, error) {
	ident, err := s.identities.Find(ctx, identifier)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("failed to find identity %q: %w", identifier, err)
	}
	if _, err := s.store.UpdatePassword(ctx, ident.ID, password); err != nil {
		return identity.Identity{}, err
	}
	return ident, nil
}

func displayName(ident identity.Identity) string {
	switch {
	case ident.DisplayName != "":
		return ident.DisplayName
	case ident.Username != "":
		return ident.Username
	default:
		return ident.Email
	}
}
