package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	custodyModel "reservemint/internal/custody/models"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/platform/httputil"
	"reservemint/pkg/requestcontext"
)

// CustodyService is the custody ledger surface the transport needs.
type CustodyService interface {
	CreateAccount(ctx context.Context, name, bankName, externalRef, owner string) (*custodyModel.CustodyAccount, error)
	RecordDeposit(ctx context.Context, accountID domain.AccountID, amount domain.Amount) (*custodyModel.CustodyAccount, error)
	DeactivateAccount(ctx context.Context, accountID domain.AccountID) (*custodyModel.CustodyAccount, error)
	ReactivateAccount(ctx context.Context, accountID domain.AccountID) (*custodyModel.CustodyAccount, error)
	GetAccount(ctx context.Context, accountID domain.AccountID) (*custodyModel.CustodyAccount, error)
	ListAccounts(ctx context.Context) ([]*custodyModel.CustodyAccount, error)
}

type custodyHandler struct {
	custody CustodyService
	logger  *slog.Logger
}

func newCustodyHandler(custody CustodyService, logger *slog.Logger) *custodyHandler {
	return &custodyHandler{custody: custody, logger: logger}
}

func (h *custodyHandler) Register(r chi.Router) {
	r.Route("/custody/accounts", func(r chi.Router) {
		r.Post("/", h.handleCreateAccount)
		r.Get("/", h.handleListAccounts)
		r.Get("/{accountID}", h.handleGetAccount)
		r.Post("/{accountID}/deposits", h.handleRecordDeposit)
		r.Post("/{accountID}/deactivate", h.handleDeactivate)
		r.Post("/{accountID}/reactivate", h.handleReactivate)
	})
}

type createAccountRequest struct {
	AccountName string `json:"account_name"`
	BankName    string `json:"bank_name"`
	ExternalRef string `json:"external_ref"`
	Owner       string `json:"owner"`
}

func (h *custodyHandler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[createAccountRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	account, err := h.custody.CreateAccount(ctx, req.AccountName, req.BankName, req.ExternalRef, req.Owner)
	if err != nil {
		h.logger.WarnContext(ctx, "create account failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, account)
}

type depositRequest struct {
	Amount string `json:"amount"`
}

func (h *custodyHandler) handleRecordDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, err := domain.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[depositRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	account, err := h.custody.RecordDeposit(ctx, accountID, amount)
	if err != nil {
		h.logger.WarnContext(ctx, "record deposit failed",
			"request_id", requestcontext.RequestID(ctx),
			"account_id", accountID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (h *custodyHandler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.custody.DeactivateAccount)
}

func (h *custodyHandler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.custody.ReactivateAccount)
}

func (h *custodyHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, domain.AccountID) (*custodyModel.CustodyAccount, error)) {
	ctx := r.Context()

	accountID, err := domain.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
		return
	}

	account, err := op(ctx, accountID)
	if err != nil {
		h.logger.WarnContext(ctx, "account transition failed",
			"request_id", requestcontext.RequestID(ctx),
			"account_id", accountID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (h *custodyHandler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, err := domain.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
		return
	}

	account, err := h.custody.GetAccount(ctx, accountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (h *custodyHandler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.custody.ListAccounts(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}
