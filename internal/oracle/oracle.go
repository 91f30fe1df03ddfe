// Package oracle defines the consumed PriceOracle contract. Feed ingestion
// is external; the ledger only reads a current USD-equivalent price and
// treats staleness as unavailability.
package oracle

import (
	"context"
	"sync"
	"time"

	dErrors "reservemint/pkg/domain-errors"
)

// Quote is a price observation for a reference currency.
type Quote struct {
	CurrencyCode string
	// PriceMicros is the USD price of one currency unit in 6-decimal
	// fixed point, matching domain.Amount's scale.
	PriceMicros uint64
	AsOf        time.Time
}

// PriceSource supplies current prices for supported reference currencies.
type PriceSource interface {
	CurrentPrice(ctx context.Context, currencyCode string) (Quote, error)
}

// StalenessGuard rejects quotes older than the configured threshold.
// A stale price is indistinguishable from a dead feed; both surface as
// upstream_unavailable so the injection fails closed.
type StalenessGuard struct {
	source    PriceSource
	threshold time.Duration
	timeout   time.Duration
}

// NewStalenessGuard wraps source with staleness and timeout enforcement.
func NewStalenessGuard(source PriceSource, threshold, timeout time.Duration) *StalenessGuard {
	return &StalenessGuard{source: source, threshold: threshold, timeout: timeout}
}

// CurrentPrice implements PriceSource.
func (g *StalenessGuard) CurrentPrice(ctx context.Context, currencyCode string) (Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	quote, err := g.source.CurrentPrice(ctx, currencyCode)
	if err != nil {
		return Quote{}, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "price oracle unreachable")
	}
	if age := time.Since(quote.AsOf); age > g.threshold {
		return Quote{}, dErrors.Newf(dErrors.CodeUpstreamUnavailable,
			"price for %s is stale by %s", currencyCode, age.Round(time.Second))
	}
	return quote, nil
}

// FixedSource serves pinned quotes; used in tests and development.
type FixedSource struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewFixedSource builds an empty fixed source.
func NewFixedSource() *FixedSource {
	return &FixedSource{quotes: make(map[string]Quote)}
}

// SetQuote pins the quote for a currency.
func (s *FixedSource) SetQuote(q Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.CurrencyCode] = q
}

// CurrentPrice implements PriceSource.
func (s *FixedSource) CurrentPrice(_ context.Context, currencyCode string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[currencyCode]
	if !ok {
		return Quote{}, dErrors.Newf(dErrors.CodeUpstreamUnavailable, "no price for currency %s", currencyCode)
	}
	return q, nil
}
