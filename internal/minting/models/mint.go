package models

import (
	"time"

	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
)

// RequestStatus tracks a mint request's lifecycle.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestExecuted RequestStatus = "executed"
)

// MintRequest is a validated intent to mint against a lock. Creation is
// read-only with respect to the lock; only execution consumes value.
type MintRequest struct {
	ID        domain.MintRequestID `json:"id"`
	LockID    domain.LockID        `json:"lock_id"`
	Amount    domain.Amount        `json:"amount"`
	Note      string               `json:"note,omitempty"`
	Status    RequestStatus        `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// CanExecute checks the pending → executed transition.
func (r *MintRequest) CanExecute() error {
	if r.Status != RequestPending {
		return dErrors.Newf(dErrors.CodeConflict, "mint request in status %s cannot be executed", r.Status)
	}
	return nil
}

// ApplyExecution freezes the request.
func (r *MintRequest) ApplyExecution(now time.Time) {
	r.Status = RequestExecuted
	r.UpdatedAt = now
}

// MintRecord is the immutable proof that tokens were issued against a
// consumed slice of lock value. Nothing mutates a record after creation
// except clearing ReconciliationRequired once an operator repairs the
// missing audit entry.
type MintRecord struct {
	ID                    domain.MintRecordID  `json:"id"`
	RequestID             domain.MintRequestID `json:"request_id"`
	LockID                domain.LockID        `json:"lock_id"`
	ConsumptionID         domain.ConsumptionID `json:"consumption_id"`
	AmountMinted          domain.Amount        `json:"amount_minted"`
	Beneficiary           string               `json:"beneficiary"`
	MintReference         string               `json:"mint_reference"`
	PublicationCode       string               `json:"publication_code"`
	TxReference           string               `json:"tx_reference,omitempty"`
	SignatureDigestTriple string               `json:"signature_digest_triple"`
	// ReconciliationRequired marks a record whose consumption succeeded
	// but whose explorer entry failed to append. The consumption is never
	// rolled back; the entry is repaired manually.
	ReconciliationRequired bool      `json:"reconciliation_required,omitempty"`
	MintedAt               time.Time `json:"minted_at"`
}
