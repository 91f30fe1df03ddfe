// Package httptransport is the thin HTTP layer. Handlers decode requests,
// delegate to domain services, and render models; business rules stay in the
// services so transport concerns remain isolated.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reservemint/internal/platform/middleware"
)

// Deps carries everything the router needs. Services are consumed through
// the per-handler interfaces declared alongside each handler.
type Deps struct {
	Custody    CustodyService
	Injections InjectionService
	Locks      LockService
	Mints      MintService
	Explorer   ExplorerService
	Keys       KeyService
	Admin      AdminService

	Validator *middleware.TokenValidator
	Logger    *slog.Logger
}

// NewRouter wires all endpoints. Explorer reads are public; everything that
// mutates ledger state sits behind operator token auth (services still
// re-check role membership on privileged operations).
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestMeta)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	newExplorerHandler(d.Explorer, d.Logger).Register(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireOperator(d.Validator, d.Logger))

		newCustodyHandler(d.Custody, d.Logger).Register(r)
		newInjectionHandler(d.Injections, d.Logger).Register(r)
		newLockHandler(d.Locks, d.Logger).Register(r)
		newMintHandler(d.Mints, d.Logger).Register(r)
		newKeyHandler(d.Keys, d.Logger).Register(r)
		newAdminHandler(d.Admin, d.Logger).Register(r)
	})

	return r
}
