// Package httputil centralizes JSON encoding and domain-error rendering for
// HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	dErrors "reservemint/pkg/domain-errors"
)

// errorResponse is the wire shape for all error replies.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	RetryAfter       int    `json:"retry_after_seconds,omitempty"`
}

// statusFor maps domain error codes to HTTP statuses.
func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeInvalidAmount, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeComplianceDenied,
		dErrors.CodeInvalidSignature, dErrors.CodeUnauthorizedSigner:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeDuplicateAccount, dErrors.CodeConflict, dErrors.CodeAccountInactive,
		dErrors.CodeDuplicateConsumption, dErrors.CodeSlotAlreadyFilled,
		dErrors.CodeLockNotReserved, dErrors.CodeInsufficientBalance,
		dErrors.CodeInvariantViolation:
		return http.StatusConflict
	case dErrors.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case dErrors.CodeCircuitBreakerOpen, dErrors.CodeAnomalyDetected,
		dErrors.CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders a domain error. Internal error descriptions are
// omitted so infrastructure details never leak to clients; retryable
// capacity rejections carry a Retry-After hint.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := statusFor(code)

	resp := errorResponse{Error: string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if ok := asDomain(err, &de); ok {
			resp.ErrorDescription = de.Message()
		}
	}
	if code.RetryClass() == dErrors.RetryLater {
		resp.RetryAfter = 60
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
	}

	WriteJSON(w, status, resp)
}

func asDomain(err error, target **dErrors.Error) bool {
	for err != nil {
		if de, ok := err.(*dErrors.Error); ok {
			*target = de
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// DecodeAndPrepare decodes a JSON request body into T, rendering a
// bad_request response and logging on failure. The second return value is
// false when the handler should stop.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "failed to decode request body",
				"request_id", requestID,
				"error", err,
			)
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body is not valid JSON"))
		var zero T
		return zero, false
	}
	return req, true
}
