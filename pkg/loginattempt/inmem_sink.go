package loginattempt

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemorySink keeps records in memory. Useful for tests and single-process
// deployments.
type InMemorySink struct {
	mu      sync.RWMutex
	records []Record
}

func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

func (s *InMemorySink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	return nil
}

func (s *InMemorySink) ListByIdentity(_ context.Context, identityID uuid.UUID, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := len(s.records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if id := s.records[i].IdentityID; id != nil && *id == identityID {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

// All returns every record in write order.
func (s *InMemorySink) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
