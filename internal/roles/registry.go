// Package roles defines the consumed RoleRegistry interface. The ledger
// only asks "does principal P hold role R"; granting, revocation scheduling
// and timelock delays live in the external governance system.
package roles

import (
	"context"
	"sync"
)

// Registry answers role-membership questions for privileged operations.
type Registry interface {
	HasRole(ctx context.Context, principal, role string) (bool, error)
}

// InMemory is a mutex-guarded role registry for tests and single-node
// deployments. Production deployments point Registry at the governance
// service instead.
type InMemory struct {
	mu     sync.RWMutex
	grants map[string]map[string]bool // role -> principal -> granted
}

// NewInMemory builds an empty in-memory registry.
func NewInMemory() *InMemory {
	return &InMemory{grants: make(map[string]map[string]bool)}
}

// Grant adds a principal to a role.
func (r *InMemory) Grant(role, principal string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grants[role] == nil {
		r.grants[role] = make(map[string]bool)
	}
	r.grants[role][principal] = true
}

// Revoke removes a principal from a role.
func (r *InMemory) Revoke(role, principal string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants[role], principal)
}

// HasRole reports whether principal holds role.
func (r *InMemory) HasRole(_ context.Context, principal, role string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grants[role][principal], nil
}
