// Package compliance defines the consumed ComplianceGate contract: may a
// principal move an amount for a purpose. KYC scoring, blacklist sourcing
// and watchlist refresh are external; the ledger only consumes the
// allow/deny answer and fails closed when the answer cannot be obtained.
package compliance

import (
	"context"

	"reservemint/pkg/domain"
)

// Purpose classifies what the checked movement is for.
type Purpose string

const (
	// PurposeInjection covers reserving custody value for minting.
	PurposeInjection Purpose = "injection"
	// PurposeMint covers releasing minted tokens to a beneficiary.
	PurposeMint Purpose = "mint"
)

// Decision is a gate verdict. Reason is populated only on denial.
type Decision struct {
	Allowed bool
	Reason  string
}

// Gate answers whether a principal may move an amount for a purpose.
//
// Implementations must never report Allowed on failure paths; an
// unreachable gate is an error, not an allow.
type Gate interface {
	IsAllowed(ctx context.Context, principal string, amount domain.Amount, purpose Purpose) (Decision, error)
}
