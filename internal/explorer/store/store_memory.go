// Package store persists explorer entries. Entries double as their own
// outbox: each row carries a published flag, and the publish worker drains
// unpublished rows to the downstream topic.
package store

import (
	"context"
	"sync"

	"reservemint/internal/explorer/models"
	"reservemint/pkg/domain"
	"reservemint/pkg/platform/sentinel"
)

// EntryStore is the append-only entry surface plus the outbox contract
// the publish worker drains.
type EntryStore interface {
	Append(ctx context.Context, entry models.Entry) error
	FindByPublicationCode(ctx context.Context, code string) (models.Entry, error)
	ListByLockID(ctx context.Context, lockID domain.LockID) ([]models.Entry, error)
	Recent(ctx context.Context, n int) ([]models.Entry, error)
	Count(ctx context.Context) (int, error)
	TotalMinted(ctx context.Context) (domain.Amount, error)

	UnpublishedBatch(ctx context.Context, limit int) ([]models.Entry, error)
	MarkPublished(ctx context.Context, codes []string) error
}

// InMemory is a mutex-guarded EntryStore.
type InMemory struct {
	mu          sync.RWMutex
	entries     []models.Entry // append order
	byCode      map[string]int
	unpublished map[string]struct{}
}

// NewInMemory builds an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		byCode:      make(map[string]int),
		unpublished: make(map[string]struct{}),
	}
}

// Append implements EntryStore.
func (s *InMemory) Append(_ context.Context, entry models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[entry.PublicationCode]; ok {
		return sentinel.ErrConflict
	}
	s.byCode[entry.PublicationCode] = len(s.entries)
	s.entries = append(s.entries, entry)
	s.unpublished[entry.PublicationCode] = struct{}{}
	return nil
}

// FindByPublicationCode implements EntryStore.
func (s *InMemory) FindByPublicationCode(_ context.Context, code string) (models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byCode[code]
	if !ok {
		return models.Entry{}, sentinel.ErrNotFound
	}
	return s.entries[i], nil
}

// ListByLockID implements EntryStore. A partially-filled lock has one
// entry per consumption, in mint order.
func (s *InMemory) ListByLockID(_ context.Context, lockID domain.LockID) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Entry
	for _, e := range s.entries {
		if e.LockID == lockID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Recent implements EntryStore, newest first.
func (s *InMemory) Recent(_ context.Context, n int) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]models.Entry, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// Count implements EntryStore.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// TotalMinted implements EntryStore.
func (s *InMemory) TotalMinted(_ context.Context) (domain.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total domain.Amount
	for _, e := range s.entries {
		t, err := total.Add(e.AmountMinted)
		if err != nil {
			return 0, err
		}
		total = t
	}
	return total, nil
}

// UnpublishedBatch implements EntryStore, oldest first.
func (s *InMemory) UnpublishedBatch(_ context.Context, limit int) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Entry
	for _, e := range s.entries {
		if _, pending := s.unpublished[e.PublicationCode]; pending {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// MarkPublished implements EntryStore.
func (s *InMemory) MarkPublished(_ context.Context, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, code := range codes {
		delete(s.unpublished, code)
	}
	return nil
}
