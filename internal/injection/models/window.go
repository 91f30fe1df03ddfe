package models

import (
	"time"

	"reservemint/pkg/domain"
)

// RateLimitWindow is a snapshot of the rolling injection window and the
// circuit breaker guarding it. The stores own the authoritative state;
// this value is what callers observe.
type RateLimitWindow struct {
	Key                  string        `json:"key"`
	WindowStart          time.Time     `json:"window_start"`
	WindowAmountUsed     domain.Amount `json:"window_amount_used"`
	DailyCap             domain.Amount `json:"daily_cap"`
	CircuitBreakerOpen   bool          `json:"circuit_breaker_open"`
	CircuitBreakerReason string        `json:"circuit_breaker_reason,omitempty"`
}

// Remaining is the capacity left in the current window.
func (w RateLimitWindow) Remaining() domain.Amount {
	if w.WindowAmountUsed >= w.DailyCap {
		return 0
	}
	return w.DailyCap - w.WindowAmountUsed
}
