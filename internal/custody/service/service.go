// Package service implements the CustodyLedger: the source of truth for how
// much fiat exists in custody and how much of it is already committed to
// locks.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	custodymetrics "reservemint/internal/custody/metrics"
	"reservemint/internal/custody/models"
	"reservemint/internal/custody/store"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/platform/sentinel"
	"reservemint/pkg/requestcontext"
)

// Ledger orchestrates custody account lifecycle and balance movements.
type Ledger struct {
	accounts store.AccountStore
	logger   *slog.Logger
	metrics  *custodymetrics.Metrics
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *custodymetrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// NewLedger builds a custody ledger over an account store.
func NewLedger(accounts store.AccountStore, opts ...Option) *Ledger {
	l := &Ledger{accounts: accounts, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateAccount registers a custody account. The external reference must
// not belong to another active account.
func (l *Ledger) CreateAccount(ctx context.Context, name, bankName, externalRef, owner string) (*models.CustodyAccount, error) {
	account, err := models.NewCustodyAccount(
		domain.NewAccountID(),
		strings.TrimSpace(name),
		strings.TrimSpace(bankName),
		strings.TrimSpace(externalRef),
		strings.TrimSpace(owner),
		requestcontext.Now(ctx),
	)
	if err != nil {
		return nil, err
	}

	if err := l.accounts.CreateIfRefAvailable(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeDuplicateAccount,
				"external reference is already registered to an active account")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}

	if l.metrics != nil {
		l.metrics.AccountsCreated.Inc()
	}
	l.logger.InfoContext(ctx, "custody account created",
		"account_id", account.ID,
		"bank", account.BankName,
		"owner", account.Owner,
		"request_id", requestcontext.RequestID(ctx),
	)
	return account, nil
}

// RecordDeposit increases an active account's balance.
func (l *Ledger) RecordDeposit(ctx context.Context, accountID domain.AccountID, amount domain.Amount) (*models.CustodyAccount, error) {
	now := requestcontext.Now(ctx)
	account, err := l.accounts.Execute(ctx, accountID,
		func(a *models.CustodyAccount) error { return a.CanDeposit(amount) },
		func(a *models.CustodyAccount) { a.ApplyDeposit(amount, now) },
	)
	if err != nil {
		return nil, wrapAccountErr(err)
	}

	if l.metrics != nil {
		l.metrics.DepositsRecorded.Inc()
		l.metrics.DepositedMicros.Add(float64(amount.Micros()))
	}
	l.logger.InfoContext(ctx, "deposit recorded",
		"account_id", accountID,
		"amount", amount,
		"balance", account.Balance,
		"request_id", requestcontext.RequestID(ctx),
	)
	return account, nil
}

// ReserveForInjection commits uncommitted balance to the locked sub-balance.
// Called by the injection controller only; the Execute lock keeps
// concurrent reservations from jointly overdrawing the available balance.
func (l *Ledger) ReserveForInjection(ctx context.Context, accountID domain.AccountID, amount domain.Amount) error {
	now := requestcontext.Now(ctx)
	_, err := l.accounts.Execute(ctx, accountID,
		func(a *models.CustodyAccount) error { return a.CanReserve(amount) },
		func(a *models.CustodyAccount) { a.ApplyReserve(amount, now) },
	)
	if err != nil {
		if l.metrics != nil {
			l.metrics.ReservationErrors.Inc()
		}
		return wrapAccountErr(err)
	}

	if l.metrics != nil {
		l.metrics.ReservedMicros.Add(float64(amount.Micros()))
	}
	return nil
}

// ReleaseReservation returns reserved value to the available balance,
// used when an injection is cancelled or a lock rejected.
func (l *Ledger) ReleaseReservation(ctx context.Context, accountID domain.AccountID, amount domain.Amount) error {
	now := requestcontext.Now(ctx)
	_, err := l.accounts.Execute(ctx, accountID,
		func(a *models.CustodyAccount) error { return a.CanRelease(amount) },
		func(a *models.CustodyAccount) { a.ApplyRelease(amount, now) },
	)
	if err != nil {
		return wrapAccountErr(err)
	}

	if l.metrics != nil {
		l.metrics.ReleasedMicros.Add(float64(amount.Micros()))
	}
	return nil
}

// DeactivateAccount transitions an account to inactive. The account and its
// history survive; only new deposits and reservations stop.
func (l *Ledger) DeactivateAccount(ctx context.Context, accountID domain.AccountID) (*models.CustodyAccount, error) {
	now := requestcontext.Now(ctx)
	account, err := l.accounts.Execute(ctx, accountID,
		func(a *models.CustodyAccount) error { return a.CanDeactivate() },
		func(a *models.CustodyAccount) { a.ApplyDeactivation(now) },
	)
	if err != nil {
		return nil, wrapAccountErr(err)
	}

	l.logger.InfoContext(ctx, "custody account deactivated",
		"account_id", accountID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return account, nil
}

// ReactivateAccount transitions an account back to active.
func (l *Ledger) ReactivateAccount(ctx context.Context, accountID domain.AccountID) (*models.CustodyAccount, error) {
	now := requestcontext.Now(ctx)
	account, err := l.accounts.Execute(ctx, accountID,
		func(a *models.CustodyAccount) error { return a.CanReactivate() },
		func(a *models.CustodyAccount) { a.ApplyReactivation(now) },
	)
	if err != nil {
		return nil, wrapAccountErr(err)
	}
	return account, nil
}

// GetAccount retrieves a single account.
func (l *Ledger) GetAccount(ctx context.Context, accountID domain.AccountID) (*models.CustodyAccount, error) {
	account, err := l.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, wrapAccountErr(err)
	}
	return account, nil
}

// ListAccounts returns all accounts.
func (l *Ledger) ListAccounts(ctx context.Context) ([]*models.CustodyAccount, error) {
	accounts, err := l.accounts.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list accounts")
	}
	return accounts, nil
}

func wrapAccountErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "custody account not found")
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "custody store failure")
	}
}
