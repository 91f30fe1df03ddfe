// Package store persists locks. Execute serializes mutations per lock, not
// globally: two signers filling different slots on the same lock are
// serialized against each other, while unrelated locks proceed in parallel.
package store

import (
	"context"
	"sync"

	"reservemint/internal/lock/models"
	"reservemint/pkg/domain"
	"reservemint/pkg/platform/sentinel"
)

// LockStore is the persistence contract for locks.
type LockStore interface {
	Create(ctx context.Context, lock *models.Lock) error
	FindByID(ctx context.Context, id domain.LockID) (*models.Lock, error)
	FindByInjectionID(ctx context.Context, id domain.InjectionID) (*models.Lock, error)
	ListByStatus(ctx context.Context, status models.LockStatus) ([]*models.Lock, error)
	List(ctx context.Context) ([]*models.Lock, error)
	// Execute atomically runs validate then mutate under the lock's own
	// write lock; the quorum-completion check re-evaluates inside it.
	Execute(ctx context.Context, id domain.LockID,
		validate func(*models.Lock) error,
		mutate func(*models.Lock)) (*models.Lock, error)
}

type entry struct {
	mu   sync.Mutex
	lock *models.Lock
}

// InMemory is a LockStore with per-lock mutation locks.
type InMemory struct {
	mu      sync.RWMutex
	entries map[domain.LockID]*entry
}

// NewInMemory builds an empty in-memory lock store.
func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[domain.LockID]*entry)}
}

// Create stores a new lock.
func (s *InMemory) Create(_ context.Context, lock *models.Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[lock.ID]; exists {
		return sentinel.ErrConflict
	}
	s.entries[lock.ID] = &entry{lock: lock.Clone()}
	return nil
}

// FindByID returns a copy of the lock or sentinel.ErrNotFound.
func (s *InMemory) FindByID(_ context.Context, id domain.LockID) (*models.Lock, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lock.Clone(), nil
}

// FindByInjectionID returns the lock paired with an injection.
func (s *InMemory) FindByInjectionID(_ context.Context, id domain.InjectionID) (*models.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		e.mu.Lock()
		if e.lock.InjectionID == id {
			cp := e.lock.Clone()
			e.mu.Unlock()
			return cp, nil
		}
		e.mu.Unlock()
	}
	return nil, sentinel.ErrNotFound
}

// ListByStatus returns copies of locks in the given status.
func (s *InMemory) ListByStatus(ctx context.Context, status models.LockStatus) ([]*models.Lock, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, l := range all {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out, nil
}

// List returns copies of all locks.
func (s *InMemory) List(_ context.Context) ([]*models.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Lock, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		out = append(out, e.lock.Clone())
		e.mu.Unlock()
	}
	return out, nil
}

// Execute implements the per-lock atomic validate-then-mutate contract.
func (s *InMemory) Execute(_ context.Context, id domain.LockID,
	validate func(*models.Lock) error,
	mutate func(*models.Lock)) (*models.Lock, error) {

	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := validate(e.lock); err != nil {
		return nil, err
	}
	mutate(e.lock)
	return e.lock.Clone(), nil
}
