package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"reservemint/internal/injection/models"
	"reservemint/pkg/domain"
)

// Window store sentinels; the controller maps them to domain errors.
var (
	ErrBreakerOpen = errors.New("circuit breaker open")
	ErrCapExceeded = errors.New("window cap exceeded")
)

// WindowStore owns rate-limit window and circuit-breaker state, keyed by
// deployment policy (one global key or one key per custody account).
//
// Reserve is the atomic check-then-increment: it rolls the window forward
// when expired, rejects when the breaker is open or the cap would be
// exceeded, and otherwise records the amount. Refund compensates a
// reservation whose pipeline failed downstream.
type WindowStore interface {
	Reserve(ctx context.Context, key string, amount, cap domain.Amount, now time.Time, window time.Duration) (models.RateLimitWindow, error)
	Refund(ctx context.Context, key string, amount domain.Amount) error
	TripBreaker(ctx context.Context, key, reason string) error
	ResetBreaker(ctx context.Context, key string) error
	Snapshot(ctx context.Context, key string, cap domain.Amount, now time.Time, window time.Duration) (models.RateLimitWindow, error)
}

type windowState struct {
	start         time.Time
	used          domain.Amount
	breakerOpen   bool
	breakerReason string
}

// MemoryWindowStore is a mutex-guarded WindowStore for single-process
// deployments and tests.
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*windowState
}

// NewMemoryWindowStore builds an empty window store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{windows: make(map[string]*windowState)}
}

func (s *MemoryWindowStore) state(key string) *windowState {
	w, ok := s.windows[key]
	if !ok {
		w = &windowState{}
		s.windows[key] = w
	}
	return w
}

func (w *windowState) roll(now time.Time, window time.Duration) {
	if w.start.IsZero() || !now.Before(w.start.Add(window)) {
		w.start = now
		w.used = 0
	}
}

func (w *windowState) snapshot(key string, cap domain.Amount) models.RateLimitWindow {
	return models.RateLimitWindow{
		Key:                  key,
		WindowStart:          w.start,
		WindowAmountUsed:     w.used,
		DailyCap:             cap,
		CircuitBreakerOpen:   w.breakerOpen,
		CircuitBreakerReason: w.breakerReason,
	}
}

// Reserve implements WindowStore.
func (s *MemoryWindowStore) Reserve(_ context.Context, key string, amount, cap domain.Amount, now time.Time, window time.Duration) (models.RateLimitWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.state(key)
	if w.breakerOpen {
		return w.snapshot(key, cap), ErrBreakerOpen
	}
	w.roll(now, window)

	used, err := w.used.Add(amount)
	if err != nil || used > cap {
		return w.snapshot(key, cap), ErrCapExceeded
	}
	w.used = used
	return w.snapshot(key, cap), nil
}

// Refund implements WindowStore.
func (s *MemoryWindowStore) Refund(_ context.Context, key string, amount domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.state(key)
	if amount > w.used {
		w.used = 0
		return nil
	}
	w.used -= amount
	return nil
}

// TripBreaker implements WindowStore.
func (s *MemoryWindowStore) TripBreaker(_ context.Context, key, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.state(key)
	w.breakerOpen = true
	w.breakerReason = reason
	return nil
}

// ResetBreaker implements WindowStore.
func (s *MemoryWindowStore) ResetBreaker(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.state(key)
	w.breakerOpen = false
	w.breakerReason = ""
	return nil
}

// Snapshot implements WindowStore.
func (s *MemoryWindowStore) Snapshot(_ context.Context, key string, cap domain.Amount, now time.Time, window time.Duration) (models.RateLimitWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.state(key)
	w.roll(now, window)
	return w.snapshot(key, cap), nil
}
