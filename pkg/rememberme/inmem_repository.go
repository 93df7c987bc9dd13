package rememberme

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type deviceKey struct {
	identityID uuid.UUID
	deviceID   string
}

// InMemoryRepository implements Repository using in-memory storage.
type InMemoryRepository struct {
	mu     sync.RWMutex
	tokens map[deviceKey]Token
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		tokens: make(map[deviceKey]Token),
	}
}

func (r *InMemoryRepository) Replace(_ context.Context, t Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.tokens[deviceKey{t.IdentityID, t.DeviceID}] = t
	return nil
}

func (r *InMemoryRepository) Swap(_ context.Context, oldHash string, t Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := deviceKey{t.IdentityID, t.DeviceID}
	cur, ok := r.tokens[key]
	if !ok || cur.TokenHash != oldHash {
		return ErrTokenNotFound
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.tokens[key] = t
	return nil
}

func (r *InMemoryRepository) Find(_ context.Context, identityID uuid.UUID, deviceID string) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[deviceKey{identityID, deviceID}]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return t, nil
}

func (r *InMemoryRepository) Delete(_ context.Context, identityID uuid.UUID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, deviceKey{identityID, deviceID})
	return nil
}

func (r *InMemoryRepository) DeleteByIdentity(_ context.Context, identityID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k := range r.tokens {
		if k.identityID == identityID {
			delete(r.tokens, k)
		}
	}
	return nil
}
