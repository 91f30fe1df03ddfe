package compliance

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
)

// Guard wraps a Gate with a bounded timeout and a small retry budget.
// IsAllowed is an idempotent read, so retrying is safe; a gate that stays
// unreachable surfaces as upstream_unavailable and the caller fails closed.
type Guard struct {
	gate       Gate
	timeout    time.Duration
	maxRetries uint64
}

// NewGuard wraps gate. timeout bounds each attempt.
func NewGuard(gate Gate, timeout time.Duration) *Guard {
	return &Guard{gate: gate, timeout: timeout, maxRetries: 2}
}

// IsAllowed implements Gate with timeout and retry semantics.
func (g *Guard) IsAllowed(ctx context.Context, principal string, amount domain.Amount, purpose Purpose) (Decision, error) {
	var decision Decision

	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		d, err := g.gate.IsAllowed(attemptCtx, principal, amount, purpose)
		if err != nil {
			return err
		}
		decision = d
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), g.maxRetries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return Decision{}, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "compliance gate unreachable")
	}
	return decision, nil
}
