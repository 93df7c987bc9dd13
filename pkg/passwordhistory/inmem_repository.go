package passwordhistory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries map[uuid.UUID][]Entry
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		entries: make(map[uuid.UUID][]Entry),
	}
}

func (r *InMemoryRepository) Append(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	r.entries[entry.IdentityID] = append(r.entries[entry.IdentityID], entry)
	return nil
}

func (r *InMemoryRepository) Recent(_ context.Context, identityID uuid.UUID, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.entries[identityID]
	out := make([]Entry, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, history[i])
	}
	return out, nil
}

func (r *InMemoryRepository) DeleteByIdentity(_ context.Context, identityID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, identityID)
	return nil
}
