package models

import (
	"encoding/base32"
	"time"

	"github.com/google/uuid"

	"reservemint/pkg/domain"
)

// Entry is one immutable audit record proving a mint's authorization
// chain. Entries are append-only; nothing in the system mutates or
// deletes one after creation.
type Entry struct {
	PublicationCode       string               `json:"publication_code"`
	MintRecordID          domain.MintRecordID  `json:"mint_record_id"`
	LockID                domain.LockID        `json:"lock_id"`
	InjectionID           domain.InjectionID   `json:"injection_id"`
	ConsumptionID         domain.ConsumptionID `json:"consumption_id"`
	Beneficiary           string               `json:"beneficiary"`
	AmountMinted          domain.Amount        `json:"amount_minted"`
	TxReference           string               `json:"tx_reference"`
	SignatureDigestTriple string               `json:"signature_digest_triple"`
	MintedAt              time.Time            `json:"minted_at"`
}

var pubEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewPublicationCode generates a globally-unique, human-referenceable
// code, e.g. "RM-4F2A…". Base32 keeps it case-insensitive for support
// conversations and short enough to read over the phone.
func NewPublicationCode() string {
	u := uuid.New()
	return "RM-" + pubEncoding.EncodeToString(u[:])
}
