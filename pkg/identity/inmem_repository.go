package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]Identity
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		identities: make(map[uuid.UUID]Identity),
	}
}

func (r *InMemoryRepository) FindByID(_ context.Context, id uuid.UUID) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identities[id]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return identity, nil
}

func (r *InMemoryRepository) FindByIdentifier(_ context.Context, field Field, value string) (Identity, error) {
	if value == "" {
		return Identity{}, ErrIdentityNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, identity := range r.identities {
		if strings.EqualFold(identity.Identifier(field), value) {
			return identity, nil
		}
	}
	return Identity{}, ErrIdentityNotFound
}

// Save inserts or updates identity. Email and username must stay unique.
func (r *InMemoryRepository) Save(_ context.Context, identity Identity) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	for id, other := range r.identities {
		if id == identity.ID {
			continue
		}
		if identity.Email != "" && strings.EqualFold(other.Email, identity.Email) {
			return Identity{}, ErrIdentityExists
		}
		if identity.Username != "" && strings.EqualFold(other.Username, identity.Username) {
			return Identity{}, ErrIdentityExists
		}
	}

	if existing, ok := r.identities[identity.ID]; ok {
		identity.CreatedAt = existing.CreatedAt
	} else if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}
	r.identities[identity.ID] = identity
	return identity, nil
}

func (r *InMemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.identities[id]; !ok {
		return ErrIdentityNotFound
	}
	delete(r.identities, id)
	return nil
}
