package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	explorerModel "reservemint/internal/explorer/models"
	explorerService "reservemint/internal/explorer/service"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/platform/httputil"
)

// ExplorerService is the public read surface. These endpoints carry no
// auth: the explorer exists so outside observers can audit the mint trail.
type ExplorerService interface {
	GetEntryByPublicationCode(ctx context.Context, code string) (explorerModel.Entry, error)
	GetEntriesByLock(ctx context.Context, lockID domain.LockID) ([]explorerModel.Entry, error)
	GetRecentEntries(ctx context.Context, n int) ([]explorerModel.Entry, error)
	GetStatistics(ctx context.Context) (explorerService.Statistics, error)
}

type explorerHandler struct {
	explorer ExplorerService
	logger   *slog.Logger
}

func newExplorerHandler(explorer ExplorerService, logger *slog.Logger) *explorerHandler {
	return &explorerHandler{explorer: explorer, logger: logger}
}

func (h *explorerHandler) Register(r chi.Router) {
	r.Route("/explorer", func(r chi.Router) {
		r.Get("/entries", h.handleRecent)
		r.Get("/entries/{publicationCode}", h.handleGetByCode)
		r.Get("/locks/{lockID}/entries", h.handleEntriesByLock)
		r.Get("/statistics", h.handleStatistics)
	})
}

func (h *explorerHandler) handleGetByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "publicationCode")

	entry, err := h.explorer.GetEntryByPublicationCode(r.Context(), code)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *explorerHandler) handleEntriesByLock(w http.ResponseWriter, r *http.Request) {
	lockID, err := domain.ParseLockID(chi.URLParam(r, "lockID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid lock id"))
		return
	}

	entries, err := h.explorer.GetEntriesByLock(r.Context(), lockID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

const defaultRecentLimit = 20

func (h *explorerHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}

	entries, err := h.explorer.GetRecentEntries(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *explorerHandler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.explorer.GetStatistics(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
