// Package signature verifies signatures of registered keys over message
// hashes. Two algorithm families sit behind one façade: classical ECDSA on
// secp256k1 and post-quantum ML-DSA-65, with a global verification mode
// (classical-only / dual-required / quantum-preferred) that lets a
// deployment migrate to post-quantum keys without breaking existing locks.
package signature

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"reservemint/internal/signature/models"
	"reservemint/internal/signature/store"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/platform/sentinel"
	"reservemint/pkg/requestcontext"
)

// Verification failure facts. Callers translate these into domain errors.
var (
	ErrUnknownKey        = errors.New("unknown key")
	ErrKeyRevoked        = errors.New("key revoked")
	ErrKeyExpired        = errors.New("key expired")
	ErrAlgorithmMismatch = errors.New("algorithm mismatch")
	ErrBadSignature      = errors.New("signature does not verify")
)

// Verifier owns the key registry and performs all signature checks.
type Verifier struct {
	keys   store.KeyStore
	mode   models.VerificationMode
	logger *slog.Logger
}

// Option configures the Verifier.
type Option func(*Verifier)

// WithLogger sets a logger for security-review events.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

// NewVerifier builds a Verifier over a key store in the given mode.
func NewVerifier(keys store.KeyStore, mode models.VerificationMode, opts ...Option) *Verifier {
	v := &Verifier{keys: keys, mode: mode, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Mode returns the active verification mode.
func (v *Verifier) Mode() models.VerificationMode { return v.mode }

// RegisterPublicKey validates and stores a public key for an owner.
// Key material that does not parse under the algorithm is rejected up
// front so Verify never sees malformed registry entries.
func (v *Verifier) RegisterPublicKey(ctx context.Context, owner string, alg models.Algorithm, keyMaterial []byte, validUntil, label string) (domain.KeyID, error) {
	if owner == "" {
		return domain.KeyID{}, dErrors.New(dErrors.CodeInvalidInput, "key owner is required")
	}
	if !alg.Valid() {
		return domain.KeyID{}, dErrors.Newf(dErrors.CodeInvalidInput, "unsupported algorithm %q", alg)
	}
	if err := checkKeyMaterial(alg, keyMaterial); err != nil {
		return domain.KeyID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "key material does not parse")
	}

	key := &models.RegisteredKey{
		ID:          domain.NewKeyID(),
		Owner:       owner,
		Algorithm:   alg,
		KeyMaterial: append([]byte(nil), keyMaterial...),
		Label:       label,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if validUntil != "" {
		t, err := parseRFC3339(validUntil)
		if err != nil {
			return domain.KeyID{}, dErrors.New(dErrors.CodeInvalidInput, "valid_until must be RFC3339")
		}
		key.ValidUntil = t
	}

	if err := v.keys.Create(ctx, key); err != nil {
		return domain.KeyID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store key")
	}

	v.logger.InfoContext(ctx, "public key registered",
		"key_id", key.ID,
		"owner", owner,
		"algorithm", alg,
		"label", label,
	)
	return key.ID, nil
}

// RevokePublicKey permanently revokes a key. Revocation is terminal; a
// revoked key can never verify again.
func (v *Verifier) RevokePublicKey(ctx context.Context, keyID domain.KeyID, reason string) error {
	key, err := v.keys.FindByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "key not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load key")
	}
	if key.Revoked() {
		return dErrors.New(dErrors.CodeConflict, "key already revoked")
	}

	now := requestcontext.Now(ctx)
	key.RevokedAt = &now
	key.RevocationReason = reason
	if err := v.keys.Update(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke key")
	}

	v.logger.WarnContext(ctx, "public key revoked",
		"key_id", keyID,
		"owner", key.Owner,
		"reason", reason,
	)
	return nil
}

// Verify checks sig over messageHash against the registered key, applying
// the global verification mode:
//
//   - classical-only: keyID must be a classical key; sig is a DER ECDSA
//     signature.
//   - quantum-preferred: if the key's owner holds an ML-DSA key, keyID must
//     reference it and sig is an ML-DSA signature; otherwise classical
//     rules apply.
//   - dual-required: keyID references the classical key and sig is a
//     composite blob `len16(classical) || classical || mldsa` that must
//     verify under both of the owner's keys.
func (v *Verifier) Verify(ctx context.Context, keyID domain.KeyID, messageHash, sig []byte) error {
	key, err := v.keys.FindByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ErrUnknownKey
		}
		return fmt.Errorf("load key: %w", err)
	}
	if key.Revoked() {
		return ErrKeyRevoked
	}
	if key.ExpiredAt(requestcontext.Now(ctx)) {
		return ErrKeyExpired
	}

	switch v.mode {
	case models.ModeClassicalOnly:
		if !key.Algorithm.Classical() {
			return ErrAlgorithmMismatch
		}
		return verifyOne(key, messageHash, sig)

	case models.ModeQuantumPreferred:
		quantum, qErr := v.keys.FindByOwnerAlgorithm(ctx, key.Owner, models.AlgorithmMLDSA65)
		if qErr == nil && !quantum.ExpiredAt(requestcontext.Now(ctx)) {
			// Owner has migrated: post-quantum key is mandatory.
			if key.Algorithm != models.AlgorithmMLDSA65 {
				return ErrAlgorithmMismatch
			}
			return verifyOne(key, messageHash, sig)
		}
		if !errors.Is(qErr, sentinel.ErrNotFound) && qErr != nil {
			return fmt.Errorf("load quantum key: %w", qErr)
		}
		if !key.Algorithm.Classical() {
			return ErrAlgorithmMismatch
		}
		return verifyOne(key, messageHash, sig)

	case models.ModeDualRequired:
		return v.verifyDual(ctx, key, messageHash, sig)

	default:
		return fmt.Errorf("unknown verification mode %q", v.mode)
	}
}

// VerifyFor resolves the signer's registered key under the active mode and
// verifies sig over messageHash against it. Callers that know a signer but
// not a key ID (the lock quorum) use this entry point.
func (v *Verifier) VerifyFor(ctx context.Context, owner string, messageHash, sig []byte) error {
	alg := models.AlgorithmSecp256k1
	if v.mode == models.ModeQuantumPreferred {
		if _, err := v.keys.FindByOwnerAlgorithm(ctx, owner, models.AlgorithmMLDSA65); err == nil {
			alg = models.AlgorithmMLDSA65
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("load quantum key: %w", err)
		}
	}

	key, err := v.keys.FindByOwnerAlgorithm(ctx, owner, alg)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ErrUnknownKey
		}
		return fmt.Errorf("load key: %w", err)
	}
	return v.Verify(ctx, key.ID, messageHash, sig)
}

// verifyDual checks a composite signature against the owner's classical and
// post-quantum keys. Both halves must verify; one compromised algorithm
// family is not enough to forge an authorization.
func (v *Verifier) verifyDual(ctx context.Context, key *models.RegisteredKey, messageHash, sig []byte) error {
	if !key.Algorithm.Classical() {
		return ErrAlgorithmMismatch
	}
	quantum, err := v.keys.FindByOwnerAlgorithm(ctx, key.Owner, models.AlgorithmMLDSA65)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ErrAlgorithmMismatch
		}
		return fmt.Errorf("load quantum key: %w", err)
	}
	if quantum.Revoked() {
		return ErrKeyRevoked
	}
	if quantum.ExpiredAt(requestcontext.Now(ctx)) {
		return ErrKeyExpired
	}

	classicalSig, quantumSig, err := splitComposite(sig)
	if err != nil {
		return err
	}
	if err := verifyOne(key, messageHash, classicalSig); err != nil {
		return err
	}
	return verifyOne(quantum, messageHash, quantumSig)
}

// verifyOne dispatches on the key's algorithm. Adding a family is an
// additive case, not a rewrite.
func verifyOne(key *models.RegisteredKey, messageHash, sig []byte) error {
	switch key.Algorithm {
	case models.AlgorithmSecp256k1:
		pub, err := secp256k1.ParsePubKey(key.KeyMaterial)
		if err != nil {
			return fmt.Errorf("parse secp256k1 key: %w", err)
		}
		parsed, err := secpecdsa.ParseDERSignature(sig)
		if err != nil {
			return ErrBadSignature
		}
		if !parsed.Verify(messageHash, pub) {
			return ErrBadSignature
		}
		return nil

	case models.AlgorithmMLDSA65:
		scheme := mldsa65.Scheme()
		pub, err := scheme.UnmarshalBinaryPublicKey(key.KeyMaterial)
		if err != nil {
			return fmt.Errorf("parse ml-dsa key: %w", err)
		}
		if !scheme.Verify(pub, messageHash, sig, nil) {
			return ErrBadSignature
		}
		return nil

	default:
		return ErrAlgorithmMismatch
	}
}

func checkKeyMaterial(alg models.Algorithm, material []byte) error {
	switch alg {
	case models.AlgorithmSecp256k1:
		_, err := secp256k1.ParsePubKey(material)
		return err
	case models.AlgorithmMLDSA65:
		_, err := mldsa65.Scheme().UnmarshalBinaryPublicKey(material)
		return err
	default:
		return ErrAlgorithmMismatch
	}
}

// CompositeSignature assembles the dual-required wire form from its halves.
func CompositeSignature(classical, quantum []byte) []byte {
	out := make([]byte, 2+len(classical)+len(quantum))
	binary.BigEndian.PutUint16(out, uint16(len(classical)))
	copy(out[2:], classical)
	copy(out[2+len(classical):], quantum)
	return out
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func splitComposite(sig []byte) (classical, quantum []byte, err error) {
	if len(sig) < 2 {
		return nil, nil, ErrBadSignature
	}
	n := int(binary.BigEndian.Uint16(sig))
	if len(sig) < 2+n {
		return nil, nil, ErrBadSignature
	}
	return sig[2 : 2+n], sig[2+n:], nil
}
