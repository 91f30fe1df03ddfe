package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
)

// HTTPGate consumes a remote compliance service over its check endpoint.
// Any transport or decode failure is upstream_unavailable; the gate never
// infers an allow from a broken answer.
type HTTPGate struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGate builds a gate against baseURL.
func NewHTTPGate(baseURL string, timeout time.Duration) *HTTPGate {
	return &HTTPGate{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type checkRequest struct {
	Principal string `json:"principal"`
	Amount    string `json:"amount"`
	Purpose   string `json:"purpose"`
}

type checkResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// IsAllowed implements Gate.
func (g *HTTPGate) IsAllowed(ctx context.Context, principal string, amount domain.Amount, purpose Purpose) (Decision, error) {
	payload, err := json.Marshal(checkRequest{
		Principal: principal,
		Amount:    amount.String(),
		Purpose:   string(purpose),
	})
	if err != nil {
		return Decision{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode compliance check")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/checks", bytes.NewReader(payload))
	if err != nil {
		return Decision{}, dErrors.Wrap(err, dErrors.CodeInternal, "build compliance request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Decision{}, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "compliance service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Decision{}, dErrors.Wrap(
			fmt.Errorf("compliance service returned %d", resp.StatusCode),
			dErrors.CodeUpstreamUnavailable, "compliance check failed")
	}

	var out checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Decision{}, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "decode compliance verdict")
	}
	return Decision{Allowed: out.Allowed, Reason: out.Reason}, nil
}
