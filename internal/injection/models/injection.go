package models

import (
	"time"

	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
)

// InjectionStatus is the lifecycle state of an injection.
type InjectionStatus string

const (
	// StatusInitiated means the custody reservation is held but no lock
	// exists yet. The only state from which cancellation is legal.
	StatusInitiated InjectionStatus = "initiated"
	// StatusLocked means a paired lock was created; the injection is
	// immutable from here on.
	StatusLocked InjectionStatus = "locked"
	// StatusCancelled is terminal; the reservation was released.
	StatusCancelled InjectionStatus = "cancelled"
)

// Injection moves reserved custody value toward a lock. It carries the
// oracle price observed at initiation so the USD exposure of every lock is
// reconstructible from the audit trail.
type Injection struct {
	ID                domain.InjectionID `json:"id"`
	CustodyAccountID  domain.AccountID   `json:"custody_account_id"`
	Amount            domain.Amount      `json:"amount"`
	USDEquivalent     domain.Amount      `json:"usd_equivalent"`
	Beneficiary       string             `json:"beneficiary"`
	AuthorizationCode string             `json:"authorization_code"`
	Status            InjectionStatus    `json:"status"`
	LockID            domain.LockID      `json:"lock_id,omitzero"`
	CancelledReason   string             `json:"cancelled_reason,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// NewInjection builds an injection in the initiated state.
func NewInjection(id domain.InjectionID, accountID domain.AccountID, amount, usdEquivalent domain.Amount, beneficiary, authorizationCode string, now time.Time) (*Injection, error) {
	if amount.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidAmount, "injection amount must be positive")
	}
	if beneficiary == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "beneficiary is required")
	}
	if authorizationCode == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "authorization code is required")
	}
	return &Injection{
		ID:                id,
		CustodyAccountID:  accountID,
		Amount:            amount,
		USDEquivalent:     usdEquivalent,
		Beneficiary:       beneficiary,
		AuthorizationCode: authorizationCode,
		Status:            StatusInitiated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CanLock checks the initiated → locked transition.
func (i *Injection) CanLock() error {
	if i.Status != StatusInitiated {
		return dErrors.Newf(dErrors.CodeConflict, "injection in status %s cannot be locked", i.Status)
	}
	return nil
}

// ApplyLock pairs the injection with its lock and freezes it.
func (i *Injection) ApplyLock(lockID domain.LockID, now time.Time) {
	i.Status = StatusLocked
	i.LockID = lockID
	i.UpdatedAt = now
}

// CanCancel checks the initiated → cancelled transition. A locked
// injection is immutable; its value is only recoverable through lock
// rejection.
func (i *Injection) CanCancel() error {
	if i.Status != StatusInitiated {
		return dErrors.Newf(dErrors.CodeConflict, "injection in status %s cannot be cancelled", i.Status)
	}
	return nil
}

// ApplyCancel terminates the injection.
func (i *Injection) ApplyCancel(reason string, now time.Time) {
	i.Status = StatusCancelled
	i.CancelledReason = reason
	i.UpdatedAt = now
}
