package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	dErrors "reservemint/pkg/domain-errors"
)

// Amount is an unsigned fiat amount in 6-decimal fixed point (micro-units).
// 1_000_000 micros = 1.000000 units of the reference currency.
//
// Arithmetic is overflow-checked; balances in the ledger can never go
// negative or wrap.
type Amount uint64

// MicrosPerUnit is the fixed-point scale.
const MicrosPerUnit = 1_000_000

// AmountFromUnits builds an Amount from whole currency units.
func AmountFromUnits(units uint64) (Amount, error) {
	if units > math.MaxUint64/MicrosPerUnit {
		return 0, dErrors.New(dErrors.CodeInvalidAmount, "amount overflows fixed-point range")
	}
	return Amount(units * MicrosPerUnit), nil
}

// ParseAmount parses a decimal string ("1000000", "12.5", "0.000001") into
// an Amount. More than 6 fractional digits, negative values, and empty
// input are rejected.
func ParseAmount(raw string) (Amount, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, dErrors.New(dErrors.CodeInvalidAmount, "amount is required")
	}
	if strings.HasPrefix(raw, "-") {
		return 0, dErrors.New(dErrors.CodeInvalidAmount, "amount must not be negative")
	}

	whole, frac := raw, ""
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		whole, frac = raw[:i], raw[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 6 {
		return 0, dErrors.New(dErrors.CodeInvalidAmount, "amount supports at most 6 decimal places")
	}

	units, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidAmount, "amount is not a valid decimal")
	}

	var micros uint64
	if frac != "" {
		// Right-pad to 6 digits so "5" means 500000 micros.
		padded := frac + strings.Repeat("0", 6-len(frac))
		micros, err = strconv.ParseUint(padded, 10, 64)
		if err != nil {
			return 0, dErrors.New(dErrors.CodeInvalidAmount, "amount is not a valid decimal")
		}
	}

	base, err2 := AmountFromUnits(units)
	if err2 != nil {
		return 0, err2
	}
	return base.Add(Amount(micros))
}

// Micros returns the raw micro-unit count.
func (a Amount) Micros() uint64 { return uint64(a) }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// Add returns a+b, failing on overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if uint64(a) > math.MaxUint64-uint64(b) {
		return 0, dErrors.New(dErrors.CodeInvalidAmount, "amount overflows fixed-point range")
	}
	return a + b, nil
}

// Sub returns a-b, failing if b exceeds a. Ledger subtraction going below
// zero is always an invariant violation, never a wrap.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b > a {
		return 0, dErrors.New(dErrors.CodeInvariantViolation, "amount subtraction below zero")
	}
	return a - b, nil
}

// String renders the amount as a decimal with trailing fractional zeros
// trimmed, e.g. "1000000", "12.5", "0.000001".
func (a Amount) String() string {
	units := uint64(a) / MicrosPerUnit
	micros := uint64(a) % MicrosPerUnit
	if micros == 0 {
		return strconv.FormatUint(units, 10)
	}
	frac := strings.TrimRight(fmt.Sprintf("%06d", micros), "0")
	return fmt.Sprintf("%d.%s", units, frac)
}
