package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	injectionModel "reservemint/internal/injection/models"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/platform/httputil"
	"reservemint/pkg/requestcontext"
)

// InjectionService is the injection controller surface the transport needs.
type InjectionService interface {
	Initiate(ctx context.Context, accountID domain.AccountID, amount domain.Amount, beneficiary, authorizationCode string) (*injectionModel.Injection, error)
	Cancel(ctx context.Context, injectionID domain.InjectionID, reason string) (*injectionModel.Injection, error)
	GetInjection(ctx context.Context, injectionID domain.InjectionID) (*injectionModel.Injection, error)
	ListInjections(ctx context.Context) ([]*injectionModel.Injection, error)
	WindowStatus(ctx context.Context, accountID domain.AccountID) (injectionModel.RateLimitWindow, error)
}

type injectionHandler struct {
	injections InjectionService
	logger     *slog.Logger
}

func newInjectionHandler(injections InjectionService, logger *slog.Logger) *injectionHandler {
	return &injectionHandler{injections: injections, logger: logger}
}

func (h *injectionHandler) Register(r chi.Router) {
	r.Route("/injections", func(r chi.Router) {
		r.Post("/", h.handleInitiate)
		r.Get("/", h.handleList)
		r.Get("/window", h.handleWindowStatus)
		r.Get("/{injectionID}", h.handleGet)
		r.Post("/{injectionID}/cancel", h.handleCancel)
	})
}

type initiateInjectionRequest struct {
	CustodyAccountID  string `json:"custody_account_id"`
	Amount            string `json:"amount"`
	Beneficiary       string `json:"beneficiary"`
	AuthorizationCode string `json:"authorization_code"`
}

func (h *injectionHandler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[initiateInjectionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	accountID, err := domain.ParseAccountID(req.CustodyAccountID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid custody account id"))
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	injection, err := h.injections.Initiate(ctx, accountID, amount, req.Beneficiary, req.AuthorizationCode)
	if err != nil {
		h.logger.WarnContext(ctx, "injection rejected",
			"request_id", requestID,
			"account_id", accountID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, injection)
}

type cancelInjectionRequest struct {
	Reason string `json:"reason"`
}

func (h *injectionHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	injectionID, err := domain.ParseInjectionID(chi.URLParam(r, "injectionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid injection id"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[cancelInjectionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	injection, err := h.injections.Cancel(ctx, injectionID, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "injection cancel failed",
			"request_id", requestcontext.RequestID(ctx),
			"injection_id", injectionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, injection)
}

func (h *injectionHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	injectionID, err := domain.ParseInjectionID(chi.URLParam(r, "injectionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid injection id"))
		return
	}

	injection, err := h.injections.GetInjection(r.Context(), injectionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, injection)
}

func (h *injectionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	injections, err := h.injections.ListInjections(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"injections": injections})
}

// handleWindowStatus reports the current rate-limit window. An optional
// account_id query parameter selects the per-account window when per-account
// limiting is configured; without it the global window is returned.
func (h *injectionHandler) handleWindowStatus(w http.ResponseWriter, r *http.Request) {
	var accountID domain.AccountID
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		parsed, err := domain.ParseAccountID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
			return
		}
		accountID = parsed
	}

	window, err := h.injections.WindowStatus(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, window)
}
