package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	mintModel "reservemint/internal/minting/models"
	mintService "reservemint/internal/minting/service"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/platform/httputil"
	"reservemint/pkg/requestcontext"
)

// MintService is the minting ledger surface the transport needs.
type MintService interface {
	CreateMintRequest(ctx context.Context, lockID domain.LockID, amount domain.Amount, note string) (*mintModel.MintRequest, error)
	ExecuteMint(ctx context.Context, requestID domain.MintRequestID, beneficiary string, amount domain.Amount, mintReference, txReference string) (*mintModel.MintRecord, error)
	GetMintRequest(ctx context.Context, id domain.MintRequestID) (*mintModel.MintRequest, error)
	GetMintRecord(ctx context.Context, id domain.MintRecordID) (*mintModel.MintRecord, error)
	GetAuditTrail(ctx context.Context, lockID domain.LockID) (*mintService.AuditTrail, error)
	ListReconciliationRequired(ctx context.Context) ([]*mintModel.MintRecord, error)
	Reconcile(ctx context.Context, recordID domain.MintRecordID) (*mintModel.MintRecord, error)
}

type mintHandler struct {
	mints  MintService
	logger *slog.Logger
}

func newMintHandler(mints MintService, logger *slog.Logger) *mintHandler {
	return &mintHandler{mints: mints, logger: logger}
}

func (h *mintHandler) Register(r chi.Router) {
	r.Route("/mints", func(r chi.Router) {
		r.Post("/requests", h.handleCreateRequest)
		r.Get("/requests/{requestID}", h.handleGetRequest)
		r.Post("/requests/{requestID}/execute", h.handleExecute)
		r.Get("/records/{recordID}", h.handleGetRecord)
		r.Get("/reconciliation", h.handleListReconciliation)
		r.Post("/records/{recordID}/reconcile", h.handleReconcile)
	})
	r.Get("/audit/locks/{lockID}", h.handleAuditTrail)
}

type createMintRequestRequest struct {
	LockID string `json:"lock_id"`
	Amount string `json:"amount"`
	Note   string `json:"note"`
}

func (h *mintHandler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[createMintRequestRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	lockID, err := domain.ParseLockID(req.LockID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid lock id"))
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	mintReq, err := h.mints.CreateMintRequest(ctx, lockID, amount, req.Note)
	if err != nil {
		h.logger.WarnContext(ctx, "create mint request failed",
			"request_id", requestID,
			"lock_id", lockID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, mintReq)
}

type executeMintRequest struct {
	Beneficiary   string `json:"beneficiary"`
	Amount        string `json:"amount"`
	MintReference string `json:"mint_reference"`
	TxReference   string `json:"tx_reference"`
}

func (h *mintHandler) handleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqCtxID := requestcontext.RequestID(ctx)

	requestID, err := domain.ParseMintRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid mint request id"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[executeMintRequest](w, r, h.logger, ctx, reqCtxID)
	if !ok {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.mints.ExecuteMint(ctx, requestID, req.Beneficiary, amount, req.MintReference, req.TxReference)
	if err != nil {
		h.logger.WarnContext(ctx, "mint execution failed",
			"request_id", reqCtxID,
			"mint_request_id", requestID,
			"mint_reference", req.MintReference,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, record)
}

func (h *mintHandler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := domain.ParseMintRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid mint request id"))
		return
	}

	mintReq, err := h.mints.GetMintRequest(r.Context(), requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mintReq)
}

func (h *mintHandler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	recordID, err := domain.ParseMintRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid mint record id"))
		return
	}

	record, err := h.mints.GetMintRecord(r.Context(), recordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *mintHandler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	lockID, err := domain.ParseLockID(chi.URLParam(r, "lockID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid lock id"))
		return
	}

	trail, err := h.mints.GetAuditTrail(r.Context(), lockID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trail)
}

func (h *mintHandler) handleListReconciliation(w http.ResponseWriter, r *http.Request) {
	records, err := h.mints.ListReconciliationRequired(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *mintHandler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recordID, err := domain.ParseMintRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid mint record id"))
		return
	}

	record, err := h.mints.Reconcile(ctx, recordID)
	if err != nil {
		h.logger.WarnContext(ctx, "reconcile failed",
			"request_id", requestcontext.RequestID(ctx),
			"mint_record_id", recordID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}
