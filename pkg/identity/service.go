package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Dependent is a store holding rows owned by an identity. Dependents are
// cleared before the identity itself is removed.
type Dependent interface {
	DeleteByIdentity(ctx context.Context, identityID uuid.UUID) error
}

type Service struct {
	repo       Repository
	field      Field
	dependents []Dependent
}

type Option func(*Service)

// WithIdentifierField selects the attribute used for login lookups.
func WithIdentifierField(field Field) Option {
	return func(s *Service) {
		s.field = field
	}
}

// WithDependents registers stores to clear when an identity is deleted.
func WithDependents(dependents ...Dependent) Option {
	return func(s *Service) {
		s.dependents = append(s.dependents, dependents...)
	}
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, field: FieldEmail}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IdentifierField returns the configured login identifier attribute.
func (s *Service) IdentifierField() Field {
	return s.field
}

func (s *Service) Create(ctx context.Context, identity Identity) (Identity, error) {
	identity.Email = strings.TrimSpace(identity.Email)
	identity.Username = strings.TrimSpace(identity.Username)
	if identity.Identifier(s.field) == "" {
		return Identity{}, fmt.Errorf("identity %s is required", s.field)
	}
	identity.ID = uuid.Nil
	return s.repo.Save(ctx, identity)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Identity, error) {
	return s.repo.FindByID(ctx, id)
}

// Find looks up an identity by the configured identifier field.
func (s *Service) Find(ctx context.Context, identifier string) (Identity, error) {
	return s.repo.FindByIdentifier(ctx, s.field, strings.TrimSpace(identifier))
}

// FindOrCreate returns the identity with identifier, creating it when absent.
// Used for the default administrator, which exists only as configuration
// until its first login.
func (s *Service) FindOrCreate(ctx context.Context, identifier, displayName string) (Identity, error) {
	identity, err := s.Find(ctx, identifier)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return Identity{}, err
	}

	identity = Identity{DisplayName: displayName}
	if s.field == FieldUsername {
		identity.Username = identifier
	} else {
		identity.Email = identifier
	}
	created, err := s.Create(ctx, identity)
	if errors.Is(err, ErrIdentityExists) {
		// Lost a race with a concurrent creator.
		return s.Find(ctx, identifier)
	}
	if err == nil {
		slog.Info("Created identity on demand", "identity_id", created.ID)
	}
	return created, err
}

// Delete removes the identity and everything it owns.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return err
	}
	for _, d := range s.dependents {
		if err := d.DeleteByIdentity(ctx, id); err != nil {
			return fmt.Errorf("failed to delete data owned by identity: %w", err)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("Identity deleted", "identity_id", id)
	return nil
}
