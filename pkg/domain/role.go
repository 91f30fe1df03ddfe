package domain

import dErrors "reservemint/pkg/domain-errors"

// SignerRole identifies one of the three independent signature slots on a
// lock. Slots are keyed by role, not by call order, so signatures collected
// out of order still land deterministically and a single compromised key can
// never fill more than one slot.
type SignerRole string

const (
	// RoleOperationalSigner is slot 1: the operations team key.
	RoleOperationalSigner SignerRole = "operational-signer"
	// RoleCustodialSigner is slot 2: the custodial/banking partner key.
	RoleCustodialSigner SignerRole = "custodial-signer"
	// RoleProtocolSigner is slot 3: the protocol key.
	RoleProtocolSigner SignerRole = "protocol-signer"
)

// SignerRoles lists the three quorum roles in slot order.
var SignerRoles = []SignerRole{RoleOperationalSigner, RoleCustodialSigner, RoleProtocolSigner}

// Valid reports whether the role is one of the three quorum roles.
func (r SignerRole) Valid() bool {
	switch r {
	case RoleOperationalSigner, RoleCustodialSigner, RoleProtocolSigner:
		return true
	}
	return false
}

// ParseSignerRole validates a raw role string.
func ParseSignerRole(raw string) (SignerRole, error) {
	r := SignerRole(raw)
	if !r.Valid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown signer role %q", raw)
	}
	return r, nil
}

// Operator roles gate privileged ledger operations. Role membership is
// answered by the external RoleRegistry; critical changes are expected to be
// wrapped by the external timelock before they reach these mutators.
const (
	// RoleInjectionOperator may initiate and cancel injections.
	RoleInjectionOperator = "injection-operator"
	// RoleMintOperator may create and execute mint requests.
	RoleMintOperator = "mint-operator"
	// RoleRiskAdmin may reset the circuit breaker and change rate caps.
	RoleRiskAdmin = "risk-admin"
	// RoleKeyAdmin may register and revoke verification keys.
	RoleKeyAdmin = "key-admin"
)
