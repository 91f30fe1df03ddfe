// Package service implements the MintingLedger: the only component that
// consumes authorized lock value and turns it into minted-token records.
package service

import (
	"context"
	"errors"
	"log/slog"

	"reservemint/internal/compliance"
	explorermodels "reservemint/internal/explorer/models"
	injmodels "reservemint/internal/injection/models"
	lockmodels "reservemint/internal/lock/models"
	mintmetrics "reservemint/internal/minting/metrics"
	"reservemint/internal/minting/models"
	"reservemint/internal/minting/store"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/platform/sentinel"
	"reservemint/pkg/requestcontext"
)

// LockConsumer is the lock registry surface the ledger needs.
type LockConsumer interface {
	GetLock(ctx context.Context, lockID domain.LockID) (*lockmodels.Lock, error)
	ConsumeForMinting(ctx context.Context, lockID domain.LockID, amount domain.Amount, mintReference, note string) (lockmodels.Consumption, *lockmodels.Lock, error)
}

// InjectionReader resolves the injection behind a lock for audit trails.
type InjectionReader interface {
	GetInjection(ctx context.Context, injectionID domain.InjectionID) (*injmodels.Injection, error)
}

// AuditAppender records the explorer entry for an executed mint.
type AuditAppender interface {
	Append(ctx context.Context, entry explorermodels.Entry) error
}

// ComplianceChecker answers allow/deny for the mint payout.
type ComplianceChecker interface {
	IsAllowed(ctx context.Context, principal string, amount domain.Amount, purpose compliance.Purpose) (compliance.Decision, error)
}

// RoleChecker answers role membership, satisfied by roles.Registry.
type RoleChecker interface {
	HasRole(ctx context.Context, principal, role string) (bool, error)
}

// AuditTrail is the read-only reconstruction of a lock's full chain:
// the injection that funded it, the lock with its three signatures, and
// every mint executed against it.
type AuditTrail struct {
	Injection *injmodels.Injection `json:"injection"`
	Lock      *lockmodels.Lock     `json:"lock"`
	Records   []*models.MintRecord `json:"mint_records"`
}

// Ledger owns mint requests and records.
type Ledger struct {
	mints      store.MintStore
	locks      LockConsumer
	injections InjectionReader
	explorer   AuditAppender
	gate       ComplianceChecker
	roles      RoleChecker
	logger     *slog.Logger
	metrics    *mintmetrics.Metrics
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *mintmetrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// NewLedger builds a minting ledger.
func NewLedger(mints store.MintStore, locks LockConsumer, injections InjectionReader, explorer AuditAppender, gate ComplianceChecker, roles RoleChecker, opts ...Option) *Ledger {
	l := &Ledger{
		mints:      mints,
		locks:      locks,
		injections: injections,
		explorer:   explorer,
		gate:       gate,
		roles:      roles,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateMintRequest validates an intent to mint against a lock without
// mutating it. Requires the mint-operator role.
func (l *Ledger) CreateMintRequest(ctx context.Context, lockID domain.LockID, amount domain.Amount, note string) (*models.MintRequest, error) {
	if err := l.requireRole(ctx, domain.RoleMintOperator); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidAmount, "mint amount must be positive")
	}

	lock, err := l.locks.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	if lock.Status != lockmodels.StatusReserved && lock.Status != lockmodels.StatusPartiallyConsumed {
		return nil, dErrors.Newf(dErrors.CodeLockNotReserved, "lock in status %s has no mintable value", lock.Status)
	}
	if amount > lock.AvailableAmount() {
		return nil, dErrors.Newf(dErrors.CodeInvalidAmount,
			"mint amount %s exceeds available %s", amount, lock.AvailableAmount())
	}

	now := requestcontext.Now(ctx)
	request := &models.MintRequest{
		ID:        domain.NewMintRequestID(),
		LockID:    lockID,
		Amount:    amount,
		Note:      note,
		Status:    models.RequestPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.mints.CreateRequest(ctx, request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store mint request")
	}

	if l.metrics != nil {
		l.metrics.RequestsCreated.Inc()
	}
	l.logger.InfoContext(ctx, "mint request created",
		"request_id", request.ID,
		"lock_id", lockID,
		"amount", amount,
	)
	return request, nil
}

// ExecuteMint consumes lock value under the request and produces the
// immutable record plus its explorer entry. The consumption is the
// durable proof of authorization use: once it lands, no failure path
// rolls it back — a post-consume failure flags the record for manual
// reconciliation instead. Requires the mint-operator role.
func (l *Ledger) ExecuteMint(ctx context.Context, requestID domain.MintRequestID, beneficiary string, amount domain.Amount, mintReference, txReference string) (*models.MintRecord, error) {
	if err := l.requireRole(ctx, domain.RoleMintOperator); err != nil {
		return nil, err
	}
	if mintReference == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "mint reference is required")
	}

	request, err := l.mints.FindRequest(ctx, requestID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "mint request not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mint request lookup failed")
	}
	if err := request.CanExecute(); err != nil {
		return nil, err
	}
	if amount != request.Amount {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"execution amount %s does not match requested %s", amount, request.Amount)
	}

	lock, err := l.locks.GetLock(ctx, request.LockID)
	if err != nil {
		return nil, err
	}
	if beneficiary != lock.Beneficiary {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "beneficiary does not match the authorized lock beneficiary")
	}

	decision, err := l.gate.IsAllowed(ctx, beneficiary, amount, compliance.PurposeMint)
	if err != nil {
		l.fail("upstream_unavailable")
		return nil, err
	}
	if !decision.Allowed {
		l.fail("compliance_denied")
		return nil, dErrors.Newf(dErrors.CodeComplianceDenied, "beneficiary denied: %s", decision.Reason)
	}

	consumption, consumedLock, err := l.locks.ConsumeForMinting(ctx, request.LockID, amount, mintReference, request.Note)
	if err != nil {
		l.fail(string(dErrors.CodeOf(err)))
		return nil, err
	}

	// Everything from here on must preserve the consumption.
	now := requestcontext.Now(ctx)
	record := &models.MintRecord{
		ID:                    domain.NewMintRecordID(),
		RequestID:             request.ID,
		LockID:                request.LockID,
		ConsumptionID:         consumption.ID,
		AmountMinted:          amount,
		Beneficiary:           beneficiary,
		MintReference:         mintReference,
		PublicationCode:       explorermodels.NewPublicationCode(),
		TxReference:           txReference,
		SignatureDigestTriple: consumedLock.SignatureDigestTriple(),
		MintedAt:              now,
	}

	entry := explorermodels.Entry{
		PublicationCode:       record.PublicationCode,
		MintRecordID:          record.ID,
		LockID:                record.LockID,
		InjectionID:           consumedLock.InjectionID,
		ConsumptionID:         consumption.ID,
		Beneficiary:           beneficiary,
		AmountMinted:          amount,
		TxReference:           txReference,
		SignatureDigestTriple: record.SignatureDigestTriple,
		MintedAt:              now,
	}
	if err := l.explorer.Append(ctx, entry); err != nil {
		record.ReconciliationRequired = true
		if l.metrics != nil {
			l.metrics.ReconciliationFlagged.Inc()
		}
		l.logger.ErrorContext(ctx, "explorer entry failed after consumption; record flagged for reconciliation",
			"record_id", record.ID,
			"consumption_id", consumption.ID,
			"publication_code", record.PublicationCode,
			"error", err,
		)
	}

	if err := l.mints.CreateRecord(ctx, record); err != nil {
		// The consumption is durable but the record is not; surface every
		// identifier an operator needs to rebuild it.
		l.logger.ErrorContext(ctx, "mint record creation failed after consumption",
			"request_id", request.ID,
			"lock_id", request.LockID,
			"consumption_id", consumption.ID,
			"mint_reference", mintReference,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "consumption recorded but mint record creation failed")
	}

	if _, err := l.mints.ExecuteRequest(ctx, request.ID,
		func(r *models.MintRequest) error { return r.CanExecute() },
		func(r *models.MintRequest) { r.ApplyExecution(now) },
	); err != nil {
		l.logger.ErrorContext(ctx, "mint request finalization failed", "request_id", request.ID, "error", err)
	}

	if l.metrics != nil {
		l.metrics.MintsExecuted.Inc()
		l.metrics.TokenSupplyMicros.Add(float64(amount.Micros()))
	}
	l.logger.InfoContext(ctx, "mint executed",
		"record_id", record.ID,
		"lock_id", record.LockID,
		"amount", amount,
		"beneficiary", beneficiary,
		"publication_code", record.PublicationCode,
		"lock_status", consumedLock.Status,
		"request_id", requestcontext.RequestID(ctx),
	)
	return record, nil
}

// GetAuditTrail reconstructs the full chain for a lock.
func (l *Ledger) GetAuditTrail(ctx context.Context, lockID domain.LockID) (*AuditTrail, error) {
	lock, err := l.locks.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	injection, err := l.injections.GetInjection(ctx, lock.InjectionID)
	if err != nil {
		return nil, err
	}
	records, err := l.mints.ListRecordsByLock(ctx, lockID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mint record listing failed")
	}
	return &AuditTrail{Injection: injection, Lock: lock, Records: records}, nil
}

// GetMintRecord retrieves one record.
func (l *Ledger) GetMintRecord(ctx context.Context, id domain.MintRecordID) (*models.MintRecord, error) {
	record, err := l.mints.FindRecord(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "mint record not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mint record lookup failed")
	}
	return record, nil
}

// GetMintRequest retrieves one request.
func (l *Ledger) GetMintRequest(ctx context.Context, id domain.MintRequestID) (*models.MintRequest, error) {
	request, err := l.mints.FindRequest(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "mint request not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mint request lookup failed")
	}
	return request, nil
}

// ListReconciliationRequired returns flagged records for operator review.
func (l *Ledger) ListReconciliationRequired(ctx context.Context) ([]*models.MintRecord, error) {
	records, err := l.mints.ListReconciliationRequired(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mint record listing failed")
	}
	return records, nil
}

// Reconcile re-appends the missing explorer entry for a flagged record
// and clears the flag. Requires the mint-operator role.
func (l *Ledger) Reconcile(ctx context.Context, recordID domain.MintRecordID) (*models.MintRecord, error) {
	if err := l.requireRole(ctx, domain.RoleMintOperator); err != nil {
		return nil, err
	}

	record, err := l.GetMintRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !record.ReconciliationRequired {
		return nil, dErrors.New(dErrors.CodeConflict, "mint record is not flagged for reconciliation")
	}

	lock, err := l.locks.GetLock(ctx, record.LockID)
	if err != nil {
		return nil, err
	}
	entry := explorermodels.Entry{
		PublicationCode:       record.PublicationCode,
		MintRecordID:          record.ID,
		LockID:                record.LockID,
		InjectionID:           lock.InjectionID,
		ConsumptionID:         record.ConsumptionID,
		Beneficiary:           record.Beneficiary,
		AmountMinted:          record.AmountMinted,
		TxReference:           record.TxReference,
		SignatureDigestTriple: record.SignatureDigestTriple,
		MintedAt:              record.MintedAt,
	}
	if err := l.explorer.Append(ctx, entry); err != nil {
		return nil, err
	}

	cleared, err := l.mints.ClearReconciliation(ctx, recordID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear reconciliation flag")
	}
	l.logger.InfoContext(ctx, "mint record reconciled", "record_id", recordID)
	return cleared, nil
}

func (l *Ledger) fail(reason string) {
	if l.metrics != nil {
		l.metrics.MintsFailed.WithLabelValues(reason).Inc()
	}
}

func (l *Ledger) requireRole(ctx context.Context, role string) error {
	principal := requestcontext.Principal(ctx)
	if principal == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	held, err := l.roles.HasRole(ctx, principal, role)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "role registry unreachable")
	}
	if !held {
		return dErrors.Newf(dErrors.CodeForbidden, "principal lacks role %s", role)
	}
	return nil
}
