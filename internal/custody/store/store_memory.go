// Package store persists custody accounts. The Execute callback pattern is
// the concurrency contract: validate and mutate run under the same lock
// (mutex here, FOR UPDATE in the Postgres variant) so the
// lockedBalance ≤ balance invariant holds under concurrent reservations.
package store

import (
	"context"
	"strings"
	"sync"

	"reservemint/internal/custody/models"
	"reservemint/pkg/domain"
	"reservemint/pkg/platform/sentinel"
)

// AccountStore is the persistence contract for custody accounts.
type AccountStore interface {
	// CreateIfRefAvailable stores a new account unless an active account
	// already holds the external reference (sentinel.ErrAlreadyUsed).
	CreateIfRefAvailable(ctx context.Context, account *models.CustodyAccount) error
	FindByID(ctx context.Context, id domain.AccountID) (*models.CustodyAccount, error)
	List(ctx context.Context) ([]*models.CustodyAccount, error)
	// Execute atomically runs validate then mutate against the stored
	// account, returning the mutated copy.
	Execute(ctx context.Context, id domain.AccountID,
		validate func(*models.CustodyAccount) error,
		mutate func(*models.CustodyAccount)) (*models.CustodyAccount, error)
}

// InMemory is a mutex-guarded AccountStore.
type InMemory struct {
	mu       sync.RWMutex
	accounts map[domain.AccountID]*models.CustodyAccount
}

// NewInMemory builds an empty in-memory account store.
func NewInMemory() *InMemory {
	return &InMemory{accounts: make(map[domain.AccountID]*models.CustodyAccount)}
}

// CreateIfRefAvailable implements AccountStore. External references compare
// case-insensitively; deactivated accounts release their reference.
func (s *InMemory) CreateIfRefAvailable(_ context.Context, account *models.CustodyAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ID]; exists {
		return sentinel.ErrConflict
	}
	ref := strings.ToLower(account.ExternalRef)
	for _, existing := range s.accounts {
		if existing.IsActive() && strings.ToLower(existing.ExternalRef) == ref {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

// FindByID returns a copy of the account or sentinel.ErrNotFound.
func (s *InMemory) FindByID(_ context.Context, id domain.AccountID) (*models.CustodyAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *account
	return &cp, nil
}

// List returns copies of all accounts.
func (s *InMemory) List(_ context.Context) ([]*models.CustodyAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.CustodyAccount, 0, len(s.accounts))
	for _, account := range s.accounts {
		cp := *account
		out = append(out, &cp)
	}
	return out, nil
}

// Execute implements the atomic validate-then-mutate contract.
func (s *InMemory) Execute(_ context.Context, id domain.AccountID,
	validate func(*models.CustodyAccount) error,
	mutate func(*models.CustodyAccount)) (*models.CustodyAccount, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(account); err != nil {
		return nil, err
	}
	mutate(account)
	cp := *account
	return &cp, nil
}
