package compliance

import (
	"context"
	"sync"

	"reservemint/pkg/domain"
)

// StaticGate is a mutex-guarded allow/deny-list gate for tests and
// development. Principals default to allowed unless denied; an optional
// per-principal ceiling rejects movements above it.
type StaticGate struct {
	mu       sync.RWMutex
	denied   map[string]string        // principal -> reason
	ceilings map[string]domain.Amount // principal -> max single movement
}

// NewStaticGate builds an empty gate that allows everyone.
func NewStaticGate() *StaticGate {
	return &StaticGate{
		denied:   make(map[string]string),
		ceilings: make(map[string]domain.Amount),
	}
}

// Deny blocks a principal with a reason.
func (g *StaticGate) Deny(principal, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.denied[principal] = reason
}

// Allow removes a principal from the deny list.
func (g *StaticGate) Allow(principal string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.denied, principal)
}

// SetCeiling caps the single-movement amount for a principal.
func (g *StaticGate) SetCeiling(principal string, max domain.Amount) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ceilings[principal] = max
}

// IsAllowed implements Gate.
func (g *StaticGate) IsAllowed(_ context.Context, principal string, amount domain.Amount, _ Purpose) (Decision, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if reason, blocked := g.denied[principal]; blocked {
		return Decision{Allowed: false, Reason: reason}, nil
	}
	if max, ok := g.ceilings[principal]; ok && amount > max {
		return Decision{Allowed: false, Reason: "amount exceeds compliance ceiling"}, nil
	}
	return Decision{Allowed: true}, nil
}
