package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	signatureModel "reservemint/internal/signature/models"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/platform/httputil"
	"reservemint/pkg/requestcontext"
)

// KeyService is the verification-key surface the transport needs.
type KeyService interface {
	RegisterPublicKey(ctx context.Context, owner string, alg signatureModel.Algorithm, keyMaterial []byte, validUntil, label string) (domain.KeyID, error)
	RevokePublicKey(ctx context.Context, keyID domain.KeyID, reason string) error
}

type keyHandler struct {
	keys   KeyService
	logger *slog.Logger
}

func newKeyHandler(keys KeyService, logger *slog.Logger) *keyHandler {
	return &keyHandler{keys: keys, logger: logger}
}

func (h *keyHandler) Register(r chi.Router) {
	r.Route("/keys", func(r chi.Router) {
		r.Post("/", h.handleRegister)
		r.Post("/{keyID}/revoke", h.handleRevoke)
	})
}

type registerKeyRequest struct {
	Owner     string `json:"owner"`
	Algorithm string `json:"algorithm"`
	// KeyMaterial is the encoded public key, base64 on the wire.
	KeyMaterial []byte `json:"key_material"`
	ValidUntil  string `json:"valid_until"`
	Label       string `json:"label"`
}

func (h *keyHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[registerKeyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	keyID, err := h.keys.RegisterPublicKey(ctx, req.Owner, signatureModel.Algorithm(req.Algorithm), req.KeyMaterial, req.ValidUntil, req.Label)
	if err != nil {
		h.logger.WarnContext(ctx, "key registration failed",
			"request_id", requestID,
			"owner", req.Owner,
			"algorithm", req.Algorithm,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"key_id": keyID.String()})
}

type revokeKeyRequest struct {
	Reason string `json:"reason"`
}

func (h *keyHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	keyID, err := domain.ParseKeyID(chi.URLParam(r, "keyID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid key id"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[revokeKeyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.keys.RevokePublicKey(ctx, keyID, req.Reason); err != nil {
		h.logger.WarnContext(ctx, "key revocation failed",
			"request_id", requestcontext.RequestID(ctx),
			"key_id", keyID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
