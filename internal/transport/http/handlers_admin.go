package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/platform/httputil"
	"reservemint/pkg/requestcontext"
)

// AdminService covers risk-admin operations. The service layer enforces
// the risk-admin role; these routes exist so the breaker can be reset and
// the cap retuned without a redeploy.
type AdminService interface {
	ResetBreaker(ctx context.Context, accountID domain.AccountID) error
	UpdateDailyCap(ctx context.Context, cap domain.Amount) error
}

type adminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

func newAdminHandler(admin AdminService, logger *slog.Logger) *adminHandler {
	return &adminHandler{admin: admin, logger: logger}
}

func (h *adminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/breaker/reset", h.handleResetBreaker)
		r.Put("/policy/daily-cap", h.handleUpdateDailyCap)
	})
}

type resetBreakerRequest struct {
	// AccountID selects the per-account breaker; empty means global.
	AccountID string `json:"account_id"`
}

func (h *adminHandler) handleResetBreaker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[resetBreakerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	var accountID domain.AccountID
	if req.AccountID != "" {
		parsed, err := domain.ParseAccountID(req.AccountID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
			return
		}
		accountID = parsed
	}

	if err := h.admin.ResetBreaker(ctx, accountID); err != nil {
		h.logger.WarnContext(ctx, "breaker reset failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "circuit breaker reset",
		"request_id", requestID,
		"principal", requestcontext.Principal(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}

type updateDailyCapRequest struct {
	DailyCap string `json:"daily_cap"`
}

func (h *adminHandler) handleUpdateDailyCap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[updateDailyCapRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	newCap, err := domain.ParseAmount(req.DailyCap)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.admin.UpdateDailyCap(ctx, newCap); err != nil {
		h.logger.WarnContext(ctx, "daily cap update failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "daily cap updated",
		"request_id", requestID,
		"principal", requestcontext.Principal(ctx),
		"daily_cap", newCap,
	)
	w.WriteHeader(http.StatusNoContent)
}
