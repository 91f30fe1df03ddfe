package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	lockModel "reservemint/internal/lock/models"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/platform/httputil"
	"reservemint/pkg/requestcontext"
)

// LockService is the lock registry surface the transport needs. Locks are
// created only by the injection pipeline, so there is no create endpoint.
type LockService interface {
	Sign(ctx context.Context, lockID domain.LockID, role domain.SignerRole, signer string, sig []byte) (*lockModel.Lock, error)
	MoveToReserve(ctx context.Context, lockID domain.LockID) (*lockModel.Lock, error)
	ApprovePartialAmount(ctx context.Context, lockID domain.LockID, amount domain.Amount) (*lockModel.Lock, error)
	Reject(ctx context.Context, lockID domain.LockID, reason string) (*lockModel.Lock, error)
	GetLock(ctx context.Context, lockID domain.LockID) (*lockModel.Lock, error)
	ListByStatus(ctx context.Context, status lockModel.LockStatus) ([]*lockModel.Lock, error)
}

type lockHandler struct {
	locks  LockService
	logger *slog.Logger
}

func newLockHandler(locks LockService, logger *slog.Logger) *lockHandler {
	return &lockHandler{locks: locks, logger: logger}
}

func (h *lockHandler) Register(r chi.Router) {
	r.Route("/locks", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{lockID}", h.handleGet)
		r.Post("/{lockID}/signatures", h.handleSign)
		r.Post("/{lockID}/reserve", h.handleMoveToReserve)
		r.Post("/{lockID}/tranche", h.handleApproveTranche)
		r.Post("/{lockID}/reject", h.handleReject)
	})
}

func lockIDParam(r *http.Request) (domain.LockID, error) {
	return domain.ParseLockID(chi.URLParam(r, "lockID"))
}

type signRequest struct {
	Role   string `json:"role"`
	Signer string `json:"signer"`
	// Signature is the raw signature bytes, base64-encoded on the wire.
	Signature []byte `json:"signature"`
}

func (h *lockHandler) handleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	lockID, err := lockIDParam(r)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid lock id"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[signRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	role, err := domain.ParseSignerRole(req.Role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	lock, err := h.locks.Sign(ctx, lockID, role, req.Signer, req.Signature)
	if err != nil {
		h.logger.WarnContext(ctx, "signature rejected",
			"request_id", requestID,
			"lock_id", lockID,
			"role", role,
			"signer", req.Signer,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lock)
}

func (h *lockHandler) handleMoveToReserve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lockID, err := lockIDParam(r)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid lock id"))
		return
	}

	lock, err := h.locks.MoveToReserve(ctx, lockID)
	if err != nil {
		h.logger.WarnContext(ctx, "move to reserve failed",
			"request_id", requestcontext.RequestID(ctx),
			"lock_id", lockID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lock)
}

type trancheRequest struct {
	Amount string `json:"amount"`
}

func (h *lockHandler) handleApproveTranche(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lockID, err := lockIDParam(r)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid lock id"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[trancheRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	lock, err := h.locks.ApprovePartialAmount(ctx, lockID, amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lock)
}

type rejectLockRequest struct {
	Reason string `json:"reason"`
}

func (h *lockHandler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lockID, err := lockIDParam(r)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid lock id"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[rejectLockRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	lock, err := h.locks.Reject(ctx, lockID, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "lock rejection failed",
			"request_id", requestcontext.RequestID(ctx),
			"lock_id", lockID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lock)
}

func (h *lockHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	lockID, err := lockIDParam(r)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid lock id"))
		return
	}

	lock, err := h.locks.GetLock(r.Context(), lockID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lock)
}

// handleList lists locks in a given status. The status query parameter is
// required so callers cannot accidentally page the whole registry.
func (h *lockHandler) handleList(w http.ResponseWriter, r *http.Request) {
	status := lockModel.LockStatus(r.URL.Query().Get("status"))
	switch status {
	case lockModel.StatusReceived, lockModel.StatusAccepted, lockModel.StatusReserved,
		lockModel.StatusPartiallyConsumed, lockModel.StatusFullyConsumed, lockModel.StatusRejected:
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "status query parameter must name a lock status"))
		return
	}

	locks, err := h.locks.ListByStatus(r.Context(), status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"locks": locks})
}
