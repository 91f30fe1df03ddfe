package models

import (
	"time"

	"reservemint/pkg/domain"
)

// Algorithm names a supported signature algorithm family.
type Algorithm string

const (
	// AlgorithmSecp256k1 is the classical elliptic-curve family
	// (DER-encoded ECDSA over secp256k1, 32-byte digests).
	AlgorithmSecp256k1 Algorithm = "secp256k1"
	// AlgorithmMLDSA65 is the post-quantum family (ML-DSA-65 / Dilithium,
	// NIST level 3).
	AlgorithmMLDSA65 Algorithm = "ml-dsa-65"
)

// Valid reports whether the algorithm is supported.
func (a Algorithm) Valid() bool {
	return a == AlgorithmSecp256k1 || a == AlgorithmMLDSA65
}

// Classical reports whether the algorithm belongs to the classical family.
func (a Algorithm) Classical() bool { return a == AlgorithmSecp256k1 }

// VerificationMode governs which algorithm families a signer's key must
// satisfy. A mode change migrates the deployment without touching keys or
// breaking locks already signed.
type VerificationMode string

const (
	// ModeClassicalOnly accepts classical keys only.
	ModeClassicalOnly VerificationMode = "classical-only"
	// ModeDualRequired demands a composite signature valid under both the
	// signer's classical and post-quantum keys.
	ModeDualRequired VerificationMode = "dual-required"
	// ModeQuantumPreferred requires the post-quantum key when the signer
	// has one registered, falling back to classical otherwise.
	ModeQuantumPreferred VerificationMode = "quantum-preferred"
)

// ParseVerificationMode validates a raw mode string.
func ParseVerificationMode(raw string) (VerificationMode, bool) {
	m := VerificationMode(raw)
	switch m {
	case ModeClassicalOnly, ModeDualRequired, ModeQuantumPreferred:
		return m, true
	}
	return "", false
}

// RegisteredKey is a verification public key bound to an owner principal.
//
// Invariants:
//   - KeyMaterial parses under Algorithm at registration time
//   - A revoked key never verifies again (revocation is terminal)
//   - ValidUntil is advisory until passed, then the key never verifies
type RegisteredKey struct {
	ID               domain.KeyID `json:"id"`
	Owner            string       `json:"owner"`
	Algorithm        Algorithm    `json:"algorithm"`
	KeyMaterial      []byte       `json:"key_material"`
	Label            string       `json:"label"`
	ValidUntil       time.Time    `json:"valid_until"`
	RevokedAt        *time.Time   `json:"revoked_at,omitempty"`
	RevocationReason string       `json:"revocation_reason,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Revoked reports whether the key has been revoked.
func (k *RegisteredKey) Revoked() bool { return k.RevokedAt != nil }

// ExpiredAt reports whether the key's validity window has passed at now.
func (k *RegisteredKey) ExpiredAt(now time.Time) bool {
	return !k.ValidUntil.IsZero() && now.After(k.ValidUntil)
}
