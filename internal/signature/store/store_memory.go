// Package store persists registered verification keys.
package store

import (
	"context"
	"sync"

	"reservemint/internal/signature/models"
	"reservemint/pkg/domain"
	"reservemint/pkg/platform/sentinel"
)

// KeyStore is the persistence contract for registered keys.
type KeyStore interface {
	Create(ctx context.Context, key *models.RegisteredKey) error
	FindByID(ctx context.Context, id domain.KeyID) (*models.RegisteredKey, error)
	// FindByOwnerAlgorithm returns the newest non-revoked key an owner
	// holds for an algorithm, or sentinel.ErrNotFound.
	FindByOwnerAlgorithm(ctx context.Context, owner string, alg models.Algorithm) (*models.RegisteredKey, error)
	Update(ctx context.Context, key *models.RegisteredKey) error
}

// InMemory is a mutex-guarded KeyStore.
type InMemory struct {
	mu   sync.RWMutex
	keys map[domain.KeyID]*models.RegisteredKey
}

// NewInMemory builds an empty in-memory key store.
func NewInMemory() *InMemory {
	return &InMemory{keys: make(map[domain.KeyID]*models.RegisteredKey)}
}

// Create stores a new key, rejecting ID reuse.
func (s *InMemory) Create(_ context.Context, key *models.RegisteredKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

// FindByID returns a copy of the key or sentinel.ErrNotFound.
func (s *InMemory) FindByID(_ context.Context, id domain.KeyID) (*models.RegisteredKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *key
	return &cp, nil
}

// FindByOwnerAlgorithm returns the newest live key for (owner, alg).
func (s *InMemory) FindByOwnerAlgorithm(_ context.Context, owner string, alg models.Algorithm) (*models.RegisteredKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *models.RegisteredKey
	for _, key := range s.keys {
		if key.Owner != owner || key.Algorithm != alg || key.Revoked() {
			continue
		}
		if newest == nil || key.CreatedAt.After(newest.CreatedAt) {
			newest = key
		}
	}
	if newest == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

// Update persists key changes or returns sentinel.ErrNotFound.
func (s *InMemory) Update(_ context.Context, key *models.RegisteredKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}
