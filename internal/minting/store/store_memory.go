// Package store persists mint requests and records.
package store

import (
	"context"
	"sort"
	"sync"

	"reservemint/internal/minting/models"
	"reservemint/pkg/domain"
	"reservemint/pkg/platform/sentinel"
)

// MintStore persists requests and their resulting records. Records are
// append-only; ExecuteRequest is the only request mutation.
type MintStore interface {
	CreateRequest(ctx context.Context, request *models.MintRequest) error
	FindRequest(ctx context.Context, id domain.MintRequestID) (*models.MintRequest, error)
	ExecuteRequest(ctx context.Context, id domain.MintRequestID,
		validate func(*models.MintRequest) error,
		mutate func(*models.MintRequest)) (*models.MintRequest, error)

	CreateRecord(ctx context.Context, record *models.MintRecord) error
	FindRecord(ctx context.Context, id domain.MintRecordID) (*models.MintRecord, error)
	ListRecordsByLock(ctx context.Context, lockID domain.LockID) ([]*models.MintRecord, error)
	ListReconciliationRequired(ctx context.Context) ([]*models.MintRecord, error)
	ClearReconciliation(ctx context.Context, id domain.MintRecordID) (*models.MintRecord, error)
}

// InMemory is a mutex-guarded MintStore.
type InMemory struct {
	mu       sync.RWMutex
	requests map[domain.MintRequestID]*models.MintRequest
	records  map[domain.MintRecordID]*models.MintRecord
}

// NewInMemory builds an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		requests: make(map[domain.MintRequestID]*models.MintRequest),
		records:  make(map[domain.MintRecordID]*models.MintRecord),
	}
}

// CreateRequest implements MintStore.
func (s *InMemory) CreateRequest(_ context.Context, request *models.MintRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[request.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *request
	s.requests[request.ID] = &cp
	return nil
}

// FindRequest implements MintStore.
func (s *InMemory) FindRequest(_ context.Context, id domain.MintRequestID) (*models.MintRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *request
	return &cp, nil
}

// ExecuteRequest implements the atomic validate-then-mutate contract.
func (s *InMemory) ExecuteRequest(_ context.Context, id domain.MintRequestID,
	validate func(*models.MintRequest) error,
	mutate func(*models.MintRequest)) (*models.MintRequest, error) {

	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(request); err != nil {
		return nil, err
	}
	mutate(request)
	cp := *request
	return &cp, nil
}

// CreateRecord implements MintStore.
func (s *InMemory) CreateRecord(_ context.Context, record *models.MintRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *record
	s.records[record.ID] = &cp
	return nil
}

// FindRecord implements MintStore.
func (s *InMemory) FindRecord(_ context.Context, id domain.MintRecordID) (*models.MintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

// ListRecordsByLock implements MintStore, oldest first.
func (s *InMemory) ListRecordsByLock(_ context.Context, lockID domain.LockID) ([]*models.MintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.MintRecord
	for _, record := range s.records {
		if record.LockID == lockID {
			cp := *record
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MintedAt.Before(out[j].MintedAt) })
	return out, nil
}

// ListReconciliationRequired implements MintStore.
func (s *InMemory) ListReconciliationRequired(_ context.Context) ([]*models.MintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.MintRecord
	for _, record := range s.records {
		if record.ReconciliationRequired {
			cp := *record
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MintedAt.Before(out[j].MintedAt) })
	return out, nil
}

// ClearReconciliation implements MintStore.
func (s *InMemory) ClearReconciliation(_ context.Context, id domain.MintRecordID) (*models.MintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	record.ReconciliationRequired = false
	cp := *record
	return &cp, nil
}
