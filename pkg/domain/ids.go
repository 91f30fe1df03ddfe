// Package domain holds the typed identifiers and value objects shared by
// every ledger component.
//
// IDs are distinct uuid-backed types so an InjectionID can never be passed
// where a LockID is expected; the compiler enforces what a string-keyed
// design would leave to discipline. ParseXxxID functions validate at trust
// boundaries (transport, persistence) and reject empty, malformed, and nil
// UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "reservemint/pkg/domain-errors"
)

type (
	// AccountID identifies a custody account.
	AccountID uuid.UUID
	// InjectionID identifies an injection (a reservation of custody value).
	InjectionID uuid.UUID
	// LockID identifies a lock awaiting or holding signature quorum.
	LockID uuid.UUID
	// MintRecordID identifies an immutable mint record.
	MintRecordID uuid.UUID
	// MintRequestID identifies a pending mint request.
	MintRequestID uuid.UUID
	// ConsumptionID identifies a single consumption of lock value.
	ConsumptionID uuid.UUID
	// KeyID identifies a registered verification public key.
	KeyID uuid.UUID
)

func (id AccountID) String() string     { return uuid.UUID(id).String() }
func (id InjectionID) String() string   { return uuid.UUID(id).String() }
func (id LockID) String() string        { return uuid.UUID(id).String() }
func (id MintRecordID) String() string  { return uuid.UUID(id).String() }
func (id MintRequestID) String() string { return uuid.UUID(id).String() }
func (id ConsumptionID) String() string { return uuid.UUID(id).String() }
func (id KeyID) String() string         { return uuid.UUID(id).String() }

// The uuid-backed types render and parse as canonical UUID strings in
// JSON and anywhere else encoding.TextMarshaler is honored.

func (id AccountID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id InjectionID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id LockID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id MintRecordID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id MintRequestID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ConsumptionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id KeyID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }

func (id *AccountID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *InjectionID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *LockID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *MintRecordID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *MintRequestID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ConsumptionID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *KeyID) UnmarshalText(b []byte) error         { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id AccountID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id InjectionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id LockID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id MintRecordID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id MintRequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ConsumptionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id KeyID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }

// NewAccountID returns a fresh random AccountID.
func NewAccountID() AccountID { return AccountID(uuid.New()) }

// NewInjectionID returns a fresh random InjectionID.
func NewInjectionID() InjectionID { return InjectionID(uuid.New()) }

// NewLockID returns a fresh random LockID.
func NewLockID() LockID { return LockID(uuid.New()) }

// NewMintRecordID returns a fresh random MintRecordID.
func NewMintRecordID() MintRecordID { return MintRecordID(uuid.New()) }

// NewMintRequestID returns a fresh random MintRequestID.
func NewMintRequestID() MintRequestID { return MintRequestID(uuid.New()) }

// NewConsumptionID returns a fresh random ConsumptionID.
func NewConsumptionID() ConsumptionID { return ConsumptionID(uuid.New()) }

// NewKeyID returns a fresh random KeyID.
func NewKeyID() KeyID { return KeyID(uuid.New()) }

func parseUUID(raw, what string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", what)
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", what)
	}
	return u, nil
}

// ParseAccountID validates and converts a raw string into an AccountID.
func ParseAccountID(raw string) (AccountID, error) {
	u, err := parseUUID(raw, "account id")
	return AccountID(u), err
}

// ParseInjectionID validates and converts a raw string into an InjectionID.
func ParseInjectionID(raw string) (InjectionID, error) {
	u, err := parseUUID(raw, "injection id")
	return InjectionID(u), err
}

// ParseLockID validates and converts a raw string into a LockID.
func ParseLockID(raw string) (LockID, error) {
	u, err := parseUUID(raw, "lock id")
	return LockID(u), err
}

// ParseMintRecordID validates and converts a raw string into a MintRecordID.
func ParseMintRecordID(raw string) (MintRecordID, error) {
	u, err := parseUUID(raw, "mint record id")
	return MintRecordID(u), err
}

// ParseMintRequestID validates and converts a raw string into a MintRequestID.
func ParseMintRequestID(raw string) (MintRequestID, error) {
	u, err := parseUUID(raw, "mint request id")
	return MintRequestID(u), err
}

// ParseKeyID validates and converts a raw string into a KeyID.
func ParseKeyID(raw string) (KeyID, error) {
	u, err := parseUUID(raw, "key id")
	return KeyID(u), err
}
