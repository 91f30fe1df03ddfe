package models

import (
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"

	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
)

// LockStatus is the authorization state of a lock.
//
// Transitions move forward only:
//
//	received → accepted → reserved → partially-consumed → fully-consumed
//	received/accepted → rejected (terminal)
type LockStatus string

const (
	StatusReceived          LockStatus = "received"
	StatusAccepted          LockStatus = "accepted"
	StatusReserved          LockStatus = "reserved"
	StatusPartiallyConsumed LockStatus = "partially-consumed"
	StatusFullyConsumed     LockStatus = "fully-consumed"
	StatusRejected          LockStatus = "rejected"
)

// SignatureSlot is one of the three role-bound signature positions.
// Keeping it a value type keeps lock copies deep and slot reuse
// structurally impossible: there is exactly one slot per role.
type SignatureSlot struct {
	Filled        bool      `json:"filled"`
	Signer        string    `json:"signer,omitempty"`
	SignatureHash string    `json:"signature_hash,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
}

// SignatureSet holds the three slots keyed by signer role.
type SignatureSet struct {
	Operational SignatureSlot `json:"operational"`
	Custodial   SignatureSlot `json:"custodial"`
	Protocol    SignatureSlot `json:"protocol"`
}

// Slot returns the slot for a role.
func (s *SignatureSet) Slot(role domain.SignerRole) SignatureSlot {
	switch role {
	case domain.RoleOperationalSigner:
		return s.Operational
	case domain.RoleCustodialSigner:
		return s.Custodial
	default:
		return s.Protocol
	}
}

func (s *SignatureSet) setSlot(role domain.SignerRole, slot SignatureSlot) {
	switch role {
	case domain.RoleOperationalSigner:
		s.Operational = slot
	case domain.RoleCustodialSigner:
		s.Custodial = slot
	default:
		s.Protocol = slot
	}
}

// Complete reports whether all three slots are filled.
func (s *SignatureSet) Complete() bool {
	return s.Operational.Filled && s.Custodial.Filled && s.Protocol.Filled
}

// SignerOf returns the role a signer already occupies, if any.
func (s *SignatureSet) SignerOf(signer string) (domain.SignerRole, bool) {
	for _, role := range domain.SignerRoles {
		if slot := s.Slot(role); slot.Filled && slot.Signer == signer {
			return role, true
		}
	}
	return "", false
}

// Consumption records one use of lock value for minting. MintReference is
// the caller-supplied idempotency key; replays are rejected.
type Consumption struct {
	ID            domain.ConsumptionID `json:"id"`
	Amount        domain.Amount        `json:"amount"`
	MintReference string               `json:"mint_reference"`
	Note          string               `json:"note,omitempty"`
	ConsumedAt    time.Time            `json:"consumed_at"`
}

// Lock represents reserved custody value pending three-signature
// authorization before it can be minted against.
//
// Invariants:
//   - ConsumedAmount ≤ TotalAmount at all times
//   - Status only advances (no regression) except the explicit rejection path
//   - Value is mintable only with all three slots filled and verified
type Lock struct {
	ID                domain.LockID      `json:"id"`
	InjectionID       domain.InjectionID `json:"injection_id"`
	AuthorizationCode string             `json:"authorization_code"`
	TotalAmount       domain.Amount      `json:"total_amount"`
	ConsumedAmount    domain.Amount      `json:"consumed_amount"`
	Beneficiary       string             `json:"beneficiary"`
	Status            LockStatus         `json:"status"`
	Signatures        SignatureSet       `json:"signatures"`
	// ApprovedTranche caps the next consumption when a partial amount has
	// been approved; zero means the full available amount is mintable.
	ApprovedTranche domain.Amount `json:"approved_tranche,omitempty"`
	Consumptions    []Consumption `json:"consumptions,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	RejectedReason  string        `json:"rejected_reason,omitempty"`
}

// NewLock builds a lock in the received state.
func NewLock(id domain.LockID, injectionID domain.InjectionID, authorizationCode string, amount domain.Amount, beneficiary string, now time.Time, ttl time.Duration) (*Lock, error) {
	if amount.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidAmount, "lock amount must be positive")
	}
	if beneficiary == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "beneficiary is required")
	}
	if authorizationCode == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "authorization code is required")
	}
	return &Lock{
		ID:                id,
		InjectionID:       injectionID,
		AuthorizationCode: authorizationCode,
		TotalAmount:       amount,
		Beneficiary:       beneficiary,
		Status:            StatusReceived,
		CreatedAt:         now,
		ExpiresAt:         now.Add(ttl),
		UpdatedAt:         now,
	}, nil
}

// AvailableAmount is the value not yet consumed by minting.
func (l *Lock) AvailableAmount() domain.Amount {
	// ConsumedAmount ≤ TotalAmount is maintained by ApplyConsumption.
	return l.TotalAmount - l.ConsumedAmount
}

// Expired reports whether the authorization window has passed. Expiry is
// advisory: state changes only through an explicit Reject call.
func (l *Lock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// SigningMessageHash is the SHA3-256 digest every quorum signature covers:
// the lock identity, its full amount, the beneficiary and the external
// authorization code. Signing anything less would let a tampered amount or
// beneficiary ride on a valid signature.
func (l *Lock) SigningMessageHash() []byte {
	msg := fmt.Sprintf("%s|%d|%s|%s", l.ID, l.TotalAmount.Micros(), l.Beneficiary, l.AuthorizationCode)
	h := sha3.Sum256([]byte(msg))
	return h[:]
}

// SignatureDigestTriple is the SHA3-256 digest over the three slot
// signature hashes in role order, published with each mint record for
// independent re-verification.
func (l *Lock) SignatureDigestTriple() string {
	msg := l.Signatures.Operational.SignatureHash + "|" +
		l.Signatures.Custodial.SignatureHash + "|" +
		l.Signatures.Protocol.SignatureHash
	return fmt.Sprintf("%x", sha3.Sum256([]byte(msg)))
}

// CanSign checks whether a signer may fill the slot for role.
func (l *Lock) CanSign(role domain.SignerRole, signer string, now time.Time) error {
	if l.Status != StatusReceived && l.Status != StatusAccepted {
		return dErrors.Newf(dErrors.CodeConflict, "lock in status %s does not accept signatures", l.Status)
	}
	if l.Expired(now) {
		return dErrors.New(dErrors.CodeConflict, "authorization window has passed")
	}
	if l.Signatures.Slot(role).Filled {
		return dErrors.Newf(dErrors.CodeSlotAlreadyFilled, "slot %s is already signed", role)
	}
	if heldRole, signed := l.Signatures.SignerOf(signer); signed {
		return dErrors.Newf(dErrors.CodeUnauthorizedSigner,
			"signer already holds slot %s; quorum requires three independent signers", heldRole)
	}
	return nil
}

// ApplySignature fills the role slot and advances to accepted once all
// three slots are filled. Call CanSign first.
func (l *Lock) ApplySignature(role domain.SignerRole, signer, signatureHash string, now time.Time) {
	l.Signatures.setSlot(role, SignatureSlot{
		Filled:        true,
		Signer:        signer,
		SignatureHash: signatureHash,
		Timestamp:     now,
	})
	if l.Signatures.Complete() {
		l.Status = StatusAccepted
	}
	l.UpdatedAt = now
}

// CanMoveToReserve checks the accepted → reserved transition.
func (l *Lock) CanMoveToReserve() error {
	if l.Status != StatusAccepted {
		return dErrors.Newf(dErrors.CodeConflict, "lock in status %s cannot move to reserve", l.Status)
	}
	return nil
}

// ApplyReserve makes the lock's value mintable.
func (l *Lock) ApplyReserve(now time.Time) {
	l.Status = StatusReserved
	l.UpdatedAt = now
}

// CanApproveTranche checks a partial-amount approval.
func (l *Lock) CanApproveTranche(amount domain.Amount) error {
	if l.Status != StatusReserved && l.Status != StatusPartiallyConsumed {
		return dErrors.Newf(dErrors.CodeLockNotReserved, "lock in status %s has no mintable value", l.Status)
	}
	if amount.IsZero() {
		return dErrors.New(dErrors.CodeInvalidAmount, "tranche amount must be positive")
	}
	if amount > l.AvailableAmount() {
		return dErrors.Newf(dErrors.CodeInvalidAmount,
			"tranche %s exceeds available %s", amount, l.AvailableAmount())
	}
	return nil
}

// ApplyTrancheApproval caps the next consumption without re-running quorum.
func (l *Lock) ApplyTrancheApproval(amount domain.Amount, now time.Time) {
	l.ApprovedTranche = amount
	l.UpdatedAt = now
}

// CanConsume checks a consumption of amount under mintReference.
func (l *Lock) CanConsume(amount domain.Amount, mintReference string) error {
	if l.Status != StatusReserved && l.Status != StatusPartiallyConsumed {
		return dErrors.Newf(dErrors.CodeLockNotReserved, "lock in status %s has no mintable value", l.Status)
	}
	if amount.IsZero() {
		return dErrors.New(dErrors.CodeInvalidAmount, "consumption amount must be positive")
	}
	if mintReference == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "mint reference is required")
	}
	if amount > l.AvailableAmount() {
		return dErrors.Newf(dErrors.CodeInvalidAmount,
			"consumption %s exceeds available %s", amount, l.AvailableAmount())
	}
	if l.ApprovedTranche > 0 && amount > l.ApprovedTranche {
		return dErrors.Newf(dErrors.CodeInvalidAmount,
			"consumption %s exceeds approved tranche %s", amount, l.ApprovedTranche)
	}
	for _, c := range l.Consumptions {
		if c.MintReference == mintReference {
			return dErrors.Newf(dErrors.CodeDuplicateConsumption,
				"mint reference %q was already consumed", mintReference)
		}
	}
	return nil
}

// ApplyConsumption records the consumption and advances status. Call
// CanConsume first.
func (l *Lock) ApplyConsumption(id domain.ConsumptionID, amount domain.Amount, mintReference, note string, now time.Time) Consumption {
	c := Consumption{
		ID:            id,
		Amount:        amount,
		MintReference: mintReference,
		Note:          note,
		ConsumedAt:    now,
	}
	l.Consumptions = append(l.Consumptions, c)
	l.ConsumedAmount += amount
	l.ApprovedTranche = 0
	if l.AvailableAmount().IsZero() {
		l.Status = StatusFullyConsumed
	} else {
		l.Status = StatusPartiallyConsumed
	}
	l.UpdatedAt = now
	return c
}

// CanReject checks the rejection path; only pre-reserve states may reject.
func (l *Lock) CanReject() error {
	if l.Status != StatusReceived && l.Status != StatusAccepted {
		return dErrors.Newf(dErrors.CodeConflict, "lock in status %s cannot be rejected", l.Status)
	}
	return nil
}

// ApplyRejection terminates the lock.
func (l *Lock) ApplyRejection(reason string, now time.Time) {
	l.Status = StatusRejected
	l.RejectedReason = reason
	l.UpdatedAt = now
}

// Clone returns a deep copy.
func (l *Lock) Clone() *Lock {
	cp := *l
	cp.Consumptions = append([]Consumption(nil), l.Consumptions...)
	return &cp
}
