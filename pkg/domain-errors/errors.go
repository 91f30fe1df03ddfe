// Package dErrors provides coded domain errors for the mint authorization
// ledger. Services return these; transport maps them to HTTP statuses and
// callers use the code's retry class to distinguish "try again later" from
// "permanently invalid".
//
// Conventionally imported as dErrors:
//
//	dErrors "reservemint/pkg/domain-errors"
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a domain error category.
type Code string

const (
	// Input validation — rejected synchronously, no state change.
	CodeInvalidInput     Code = "invalid_input"
	CodeInvalidAmount    Code = "invalid_amount"
	CodeDuplicateAccount Code = "duplicate_account"
	CodeBadRequest       Code = "bad_request"

	// Authorization — rejected and logged for security review, no state change.
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeComplianceDenied   Code = "compliance_denied"
	CodeInvalidSignature   Code = "invalid_signature"
	CodeUnauthorizedSigner Code = "unauthorized_signer"

	// Capacity/policy — rejected but retryable after window reset or
	// a privileged breaker reset.
	CodeRateLimitExceeded    Code = "rate_limit_exceeded"
	CodeCircuitBreakerOpen   Code = "circuit_breaker_open"
	CodeAnomalyDetected      Code = "anomaly_detected"
	CodeInsufficientBalance  Code = "insufficient_available_balance"
	CodeAccountInactive      Code = "account_inactive"

	// Consistency — logic error or replay, always rejected.
	CodeDuplicateConsumption Code = "duplicate_consumption"
	CodeSlotAlreadyFilled    Code = "slot_already_filled"
	CodeLockNotReserved      Code = "lock_not_reserved"
	CodeConflict             Code = "conflict"
	CodeInvariantViolation   Code = "invariant_violation"

	// Upstream — caller retries with backoff; never assumed to mean allowed.
	CodeUpstreamUnavailable Code = "upstream_unavailable"

	CodeNotFound Code = "not_found"
	CodeInternal Code = "internal_error"
)

// RetryClass tells a caller whether a rejection is worth retrying.
type RetryClass int

const (
	// RetryNever marks permanently invalid requests.
	RetryNever RetryClass = iota
	// RetryLater marks capacity rejections that clear on window reset or
	// operator action.
	RetryLater
	// RetryBackoff marks upstream failures retryable with backoff.
	RetryBackoff
)

// RetryClass classifies the code for callers.
func (c Code) RetryClass() RetryClass {
	switch c {
	case CodeRateLimitExceeded, CodeCircuitBreakerOpen, CodeInsufficientBalance:
		return RetryLater
	case CodeUpstreamUnavailable, CodeInternal:
		return RetryBackoff
	default:
		return RetryNever
	}
}

// Error is a domain error with a code, a human-readable message, and an
// optional wrapped cause.
type Error struct {
	code Code
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Code returns the error's code.
func (e *Error) Code() Code { return e.code }

// Message returns the human-readable message without the code prefix.
func (e *Error) Message() string { return e.msg }

// New builds a domain error with a code and message.
func New(code Code, msg string) error {
	return &Error{code: code, msg: msg}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. If err is nil,
// Wrap returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, err: err}
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// non-domain errors so transport never leaks raw failures.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}
