package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/simple-credential/pkg/identity"
	"github.com/tendant/simple-credential/pkg/random"
)

const generatedPasswordLength = 20

// MemberConfig describes a member created by an operator.
type MemberConfig struct {
	Email       string
	Username    string
	DisplayName string

	// Password is generated when empty. A supplied password must satisfy
	// the password policy.
	Password string
}

type MemberResult struct {
	Identity          identity.Identity
	Password          string // only populated if generated
	PasswordGenerated bool
}

// CreateMember creates an identity and sets its first password.
func CreateMember(ctx context.Context, svc *Services, cfg MemberConfig) (*MemberResult, error) {
	ident, err := svc.Identities.Create(ctx, identity.Identity{
		Email:       cfg.Email,
		Username:    cfg.Username,
		DisplayName: cfg.DisplayName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	result := &MemberResult{Identity: ident}
	if cfg.Password == "" {
		password, err := generatePassword()
		if err != nil {
			return nil, err
		}
		if _, err := svc.Store.UpdatePassword(ctx, ident.ID, password); err != nil {
			return nil, fmt.Errorf("failed to set generated password: %w", err)
		}
		result.Password = password
		result.PasswordGenerated = true
	} else if err := svc.Auth.ChangePassword(ctx, ident.ID, cfg.Password); err != nil {
		// Leave no identity behind without a usable password.
		if delErr := svc.Identities.Delete(context.WithoutCancel(ctx), ident.ID); delErr != nil {
			slog.Error("Failed to remove identity after password was rejected", "identity_id", ident.ID, "error", delErr)
		}
		return nil, err
	}

	slog.Info("Member created",
		"identity_id", ident.ID,
		"field", svc.Identities.IdentifierField(),
		"password_generated", result.PasswordGenerated)
	return result, nil
}

// SetPassword replaces the password of the member with identifier, skipping
// policy and history checks.
func SetPassword(ctx context.Context, svc *Services, identifier, password string) (identity.Identity, error) {
	if password == "" {
		return identity.Identity{}, fmt.Errorf("password must not be empty")
	}
	ident, err := svc.Auth.SetPassword(ctx, identifier, password)
	if err != nil {
		return identity.Identity{}, err
	}
	slog.Info("Password set by operator", "identity_id", ident.ID)
	return ident, nil
}

// TempTokenResult is a freshly issued one-time login token.
type TempTokenResult struct {
	Identity  identity.Identity
	Token     string
	ExpiresAt time.Time
}

// IssueTempToken gives the member with identifier a temporary login token
// replacing any previous one.
func IssueTempToken(ctx context.Context, svc *Services, identifier string) (*TempTokenResult, error) {
	ident, err := svc.Identities.Find(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity %q: %w", identifier, err)
	}
	token, err := svc.Store.RegenerateTempToken(ctx, ident.ID)
	if err != nil {
		return nil, err
	}
	rec, err := svc.Store.Get(ctx, ident.ID)
	if err != nil {
		return nil, err
	}
	result := &TempTokenResult{Identity: ident, Token: token}
	if rec.TempTokenExpiry != nil {
		result.ExpiresAt = *rec.TempTokenExpiry
	}
	slog.Info("Temp token issued", "identity_id", ident.ID, "expires_at", result.ExpiresAt)
	return result, nil
}

func generatePassword() (string, error) {
	token, err := random.New().Token("sha256")
	if err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return token[:generatedPasswordLength], nil
}
