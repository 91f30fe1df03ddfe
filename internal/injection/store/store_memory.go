// Package store holds injection persistence and the rate-limit window
// stores backing the circuit breaker.
package store

import (
	"context"
	"sort"
	"sync"

	"reservemint/internal/injection/models"
	"reservemint/pkg/domain"
	"reservemint/pkg/platform/sentinel"
)

// InjectionStore persists injections. Execute runs validate under the
// store's lock for the injection and applies mutate only when validation
// passes, returning a copy of the mutated injection.
type InjectionStore interface {
	Create(ctx context.Context, injection *models.Injection) error
	FindByID(ctx context.Context, id domain.InjectionID) (*models.Injection, error)
	List(ctx context.Context) ([]*models.Injection, error)
	Execute(ctx context.Context, id domain.InjectionID,
		validate func(*models.Injection) error,
		mutate func(*models.Injection)) (*models.Injection, error)
}

type injectionEntry struct {
	mu        sync.Mutex
	injection *models.Injection
}

// InMemory is a mutex-guarded InjectionStore.
type InMemory struct {
	mu      sync.RWMutex
	entries map[domain.InjectionID]*injectionEntry
}

// NewInMemory builds an empty store.
func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[domain.InjectionID]*injectionEntry)}
}

// Create stores a copy of the injection.
func (s *InMemory) Create(_ context.Context, injection *models.Injection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[injection.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *injection
	s.entries[injection.ID] = &injectionEntry{injection: &cp}
	return nil
}

// FindByID returns a copy of the injection.
func (s *InMemory) FindByID(_ context.Context, id domain.InjectionID) (*models.Injection, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *e.injection
	return &cp, nil
}

// List returns copies of all injections, newest first.
func (s *InMemory) List(_ context.Context) ([]*models.Injection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Injection, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		cp := *e.injection
		e.mu.Unlock()
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Execute implements the per-injection atomic validate-then-mutate contract.
func (s *InMemory) Execute(_ context.Context, id domain.InjectionID,
	validate func(*models.Injection) error,
	mutate func(*models.Injection)) (*models.Injection, error) {

	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := validate(e.injection); err != nil {
		return nil, err
	}
	mutate(e.injection)
	cp := *e.injection
	return &cp, nil
}
