package credential

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage. Each
// identity has its own mutex so Update calls on different identities proceed
// in parallel while calls on the same identity are serialized.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[uuid.UUID]Record),
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (r *InMemoryRepository) lockFor(identityID uuid.UUID) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	l, ok := r.locks[identityID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[identityID] = l
	}
	return l
}

func (r *InMemoryRepository) Get(_ context.Context, identityID uuid.UUID) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[identityID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

func (r *InMemoryRepository) FindByTempToken(_ context.Context, token string) (Record, error) {
	if token == "" {
		return Record{}, ErrRecordNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.records {
		if rec.TempToken == token {
			return cloneRecord(rec), nil
		}
	}
	return Record{}, ErrRecordNotFound
}

func (r *InMemoryRepository) Update(ctx context.Context, identityID uuid.UUID, fn func(*Record) error) (Record, error) {
	l := r.lockFor(identityID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	r.mu.RLock()
	rec, ok := r.records[identityID]
	r.mu.RUnlock()
	if !ok {
		rec = Record{ID: uuid.New(), IdentityID: identityID}
	}
	rec = cloneRecord(rec)
	id := rec.ID

	if err := fn(&rec); err != nil {
		return Record{}, err
	}
	rec.ID, rec.IdentityID = id, identityID
	rec.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts(rec) {
		return Record{}, ErrDuplicateValue
	}
	r.records[identityID] = rec
	return cloneRecord(rec), nil
}

func (r *InMemoryRepository) Insert(_ context.Context, rec Record) (bool, error) {
	l := r.lockFor(rec.IdentityID)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.IdentityID]; ok {
		return false, nil
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if r.conflicts(rec) {
		return false, ErrDuplicateValue
	}
	rec.UpdatedAt = time.Now().UTC()
	r.records[rec.IdentityID] = cloneRecord(rec)
	return true, nil
}

func (r *InMemoryRepository) DeleteByIdentity(_ context.Context, identityID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, identityID)
	return nil
}

// conflicts must be called with r.mu held.
func (r *InMemoryRepository) conflicts(rec Record) bool {
	for id, other := range r.records {
		if id == rec.IdentityID {
			continue
		}
		if rec.Salt != "" && other.Salt == rec.Salt {
			return true
		}
		if rec.TempToken != "" && other.TempToken == rec.TempToken {
			return true
		}
		if rec.AutoLoginToken != "" && other.AutoLoginToken == rec.AutoLoginToken {
			return true
		}
	}
	return false
}

func cloneRecord(rec Record) Record {
	rec.LockedUntil = cloneTime(rec.LockedUntil)
	rec.PasswordExpiry = cloneTime(rec.PasswordExpiry)
	rec.TempTokenExpiry = cloneTime(rec.TempTokenExpiry)
	rec.AutoLoginExpiry = cloneTime(rec.AutoLoginExpiry)
	return rec
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
