package models

import (
	"time"

	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
)

// AccountStatus is the lifecycle state of a custody account.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// CustodyAccount is the aggregate root for fiat held at a banking partner.
//
// Invariants:
//   - LockedBalance ≤ Balance after every mutation
//   - Balance and LockedBalance are mutated only by the custody ledger and
//     the injection controller (through the ledger's reserve/release ops)
//   - Accounts are never destroyed, only deactivated
//   - ExternalRef (SWIFT/BIC + account number) is unique among active accounts
type CustodyAccount struct {
	ID            domain.AccountID `json:"id"`
	AccountName   string           `json:"account_name"`
	BankName      string           `json:"bank_name"`
	ExternalRef   string           `json:"external_ref"`
	Balance       domain.Amount    `json:"balance"`
	LockedBalance domain.Amount    `json:"locked_balance"`
	Status        AccountStatus    `json:"status"`
	Owner         string           `json:"owner"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// NewCustodyAccount validates inputs and builds an active account with zero
// balances.
func NewCustodyAccount(id domain.AccountID, name, bankName, externalRef, owner string, now time.Time) (*CustodyAccount, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "account name is required")
	}
	if bankName == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "bank name is required")
	}
	if externalRef == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "external reference is required")
	}
	if owner == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "account owner is required")
	}
	return &CustodyAccount{
		ID:          id,
		AccountName: name,
		BankName:    bankName,
		ExternalRef: externalRef,
		Status:      AccountStatusActive,
		Owner:       owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsActive reports whether the account accepts deposits and reservations.
func (a *CustodyAccount) IsActive() bool { return a.Status == AccountStatusActive }

// Available is the balance not yet committed to locks.
func (a *CustodyAccount) Available() domain.Amount {
	// LockedBalance ≤ Balance is maintained by every mutation below, so
	// the subtraction cannot underflow.
	return a.Balance - a.LockedBalance
}

// CanDeposit checks whether a deposit of amount is legal.
func (a *CustodyAccount) CanDeposit(amount domain.Amount) error {
	if !a.IsActive() {
		return dErrors.New(dErrors.CodeAccountInactive, "account is inactive")
	}
	if amount.IsZero() {
		return dErrors.New(dErrors.CodeInvalidAmount, "deposit amount must be positive")
	}
	if _, err := a.Balance.Add(amount); err != nil {
		return err
	}
	return nil
}

// ApplyDeposit increases the balance. Call CanDeposit first.
func (a *CustodyAccount) ApplyDeposit(amount domain.Amount, now time.Time) {
	a.Balance += amount
	a.UpdatedAt = now
}

// CanReserve checks whether amount of uncommitted balance exists.
func (a *CustodyAccount) CanReserve(amount domain.Amount) error {
	if !a.IsActive() {
		return dErrors.New(dErrors.CodeAccountInactive, "account is inactive")
	}
	if amount.IsZero() {
		return dErrors.New(dErrors.CodeInvalidAmount, "reservation amount must be positive")
	}
	if a.Available() < amount {
		return dErrors.Newf(dErrors.CodeInsufficientBalance,
			"available balance %s is below requested %s", a.Available(), amount)
	}
	return nil
}

// ApplyReserve commits amount to the locked sub-balance. Call CanReserve first.
func (a *CustodyAccount) ApplyReserve(amount domain.Amount, now time.Time) {
	a.LockedBalance += amount
	a.UpdatedAt = now
}

// CanRelease checks a reservation release; the locked sub-balance never
// goes below zero.
func (a *CustodyAccount) CanRelease(amount domain.Amount) error {
	if amount.IsZero() {
		return dErrors.New(dErrors.CodeInvalidAmount, "release amount must be positive")
	}
	if a.LockedBalance < amount {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"locked balance %s is below release of %s", a.LockedBalance, amount)
	}
	return nil
}

// ApplyRelease returns amount from locked to available. Call CanRelease first.
func (a *CustodyAccount) ApplyRelease(amount domain.Amount, now time.Time) {
	a.LockedBalance -= amount
	a.UpdatedAt = now
}

// CanDeactivate checks the transition to inactive.
func (a *CustodyAccount) CanDeactivate() error {
	if a.Status == AccountStatusInactive {
		return dErrors.New(dErrors.CodeConflict, "account is already inactive")
	}
	return nil
}

// ApplyDeactivation transitions the account to inactive.
func (a *CustodyAccount) ApplyDeactivation(now time.Time) {
	a.Status = AccountStatusInactive
	a.UpdatedAt = now
}

// CanReactivate checks the transition back to active.
func (a *CustodyAccount) CanReactivate() error {
	if a.Status == AccountStatusActive {
		return dErrors.New(dErrors.CodeConflict, "account is already active")
	}
	return nil
}

// ApplyReactivation transitions the account to active.
func (a *CustodyAccount) ApplyReactivation(now time.Time) {
	a.Status = AccountStatusActive
	a.UpdatedAt = now
}
