// Package service exposes the explorer: the read-only audit surface
// reconstructing what was locked, consumed and minted.
package service

import (
	"context"
	"errors"
	"log/slog"

	explorermetrics "reservemint/internal/explorer/metrics"
	"reservemint/internal/explorer/models"
	"reservemint/internal/explorer/store"
	lockmodels "reservemint/internal/lock/models"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/platform/sentinel"
)

// LockLister supplies the lock population for statistics; satisfied by
// the lock store.
type LockLister interface {
	List(ctx context.Context) ([]*lockmodels.Lock, error)
}

// Statistics is the aggregate ledger view consumed by dashboards.
type Statistics struct {
	// TotalLocked is the summed face value of every lock that reached
	// reserve, including already-consumed value.
	TotalLocked domain.Amount `json:"total_locked"`
	// TotalAvailable is locked value not yet consumed by minting.
	TotalAvailable domain.Amount `json:"total_available"`
	// TotalConsumed is locked value spent on mints.
	TotalConsumed domain.Amount `json:"total_consumed"`
	// TotalMinted is the summed amount across all explorer entries. It
	// equals TotalConsumed when every consumption produced its entry;
	// divergence signals a reconciliation gap.
	TotalMinted domain.Amount `json:"total_minted"`
	LockCount   int           `json:"lock_count"`
	EntryCount  int           `json:"entry_count"`
}

// Explorer answers audit queries over entries and locks.
type Explorer struct {
	entries store.EntryStore
	locks   LockLister
	logger  *slog.Logger
	metrics *explorermetrics.Metrics
}

// Option configures the Explorer.
type Option func(*Explorer)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Explorer) { e.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *explorermetrics.Metrics) Option {
	return func(e *Explorer) { e.metrics = m }
}

// NewExplorer builds an explorer over the given stores.
func NewExplorer(entries store.EntryStore, locks LockLister, opts ...Option) *Explorer {
	e := &Explorer{
		entries: entries,
		locks:   locks,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Append records a new audit entry. Only the minting ledger calls this.
func (e *Explorer) Append(ctx context.Context, entry models.Entry) error {
	if err := e.entries.Append(ctx, entry); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Newf(dErrors.CodeConflict, "publication code %s already exists", entry.PublicationCode)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append explorer entry")
	}

	if e.metrics != nil {
		e.metrics.EntriesAppended.Inc()
		e.metrics.MintedMicros.Add(float64(entry.AmountMinted.Micros()))
	}
	e.logger.InfoContext(ctx, "explorer entry appended",
		"publication_code", entry.PublicationCode,
		"lock_id", entry.LockID,
		"amount", entry.AmountMinted,
	)
	return nil
}

// GetEntryByPublicationCode looks up one entry by its public code.
func (e *Explorer) GetEntryByPublicationCode(ctx context.Context, code string) (models.Entry, error) {
	if code == "" {
		return models.Entry{}, dErrors.New(dErrors.CodeInvalidInput, "publication code is required")
	}
	entry, err := e.entries.FindByPublicationCode(ctx, code)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Entry{}, dErrors.Newf(dErrors.CodeNotFound, "no entry with publication code %s", code)
	}
	if err != nil {
		return models.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "entry lookup failed")
	}
	return entry, nil
}

// GetEntriesByLock returns every entry minted against a lock, oldest
// first. A partially-filled lock has one entry per consumption.
func (e *Explorer) GetEntriesByLock(ctx context.Context, lockID domain.LockID) ([]models.Entry, error) {
	entries, err := e.entries.ListByLockID(ctx, lockID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "entry lookup failed")
	}
	return entries, nil
}

// GetRecentEntries returns the n newest entries.
func (e *Explorer) GetRecentEntries(ctx context.Context, n int) ([]models.Entry, error) {
	entries, err := e.entries.Recent(ctx, n)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "entry lookup failed")
	}
	return entries, nil
}

// GetStatistics aggregates the full ledger state.
func (e *Explorer) GetStatistics(ctx context.Context) (Statistics, error) {
	locks, err := e.locks.List(ctx)
	if err != nil {
		return Statistics{}, dErrors.Wrap(err, dErrors.CodeInternal, "lock listing failed")
	}

	var stats Statistics
	stats.LockCount = len(locks)
	for _, l := range locks {
		switch l.Status {
		case lockmodels.StatusReserved, lockmodels.StatusPartiallyConsumed, lockmodels.StatusFullyConsumed:
			if stats.TotalLocked, err = stats.TotalLocked.Add(l.TotalAmount); err != nil {
				return Statistics{}, err
			}
			if stats.TotalAvailable, err = stats.TotalAvailable.Add(l.AvailableAmount()); err != nil {
				return Statistics{}, err
			}
			if stats.TotalConsumed, err = stats.TotalConsumed.Add(l.ConsumedAmount); err != nil {
				return Statistics{}, err
			}
		}
	}

	if stats.TotalMinted, err = e.entries.TotalMinted(ctx); err != nil {
		return Statistics{}, dErrors.Wrap(err, dErrors.CodeInternal, "minted total failed")
	}
	if stats.EntryCount, err = e.entries.Count(ctx); err != nil {
		return Statistics{}, dErrors.Wrap(err, dErrors.CodeInternal, "entry count failed")
	}
	return stats, nil
}
