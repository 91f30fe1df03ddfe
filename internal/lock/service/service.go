// Package service implements the LockRegistry: the quorum state machine
// that is the sole authority for whether reserved value may be minted.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/sha3"

	lockmetrics "reservemint/internal/lock/metrics"
	"reservemint/internal/lock/models"
	"reservemint/internal/lock/store"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/platform/sentinel"
	"reservemint/pkg/requestcontext"
)

// Verifier checks a signer's signature over a message hash. Satisfied by
// the signature package's Verifier.
type Verifier interface {
	VerifyFor(ctx context.Context, signer string, messageHash, sig []byte) error
}

// RoleChecker answers role membership, satisfied by roles.Registry.
type RoleChecker interface {
	HasRole(ctx context.Context, principal, role string) (bool, error)
}

// ReservationReleaser returns the custody reservation paired with an
// injection when its lock is rejected. Satisfied by the injection
// controller, which knows the custody account behind each injection.
type ReservationReleaser interface {
	ReleaseForInjection(ctx context.Context, injectionID domain.InjectionID, amount domain.Amount) error
}

// Registry owns locks and their signature quorum state machine.
type Registry struct {
	locks    store.LockStore
	verifier Verifier
	roles    RoleChecker
	releaser ReservationReleaser
	lockTTL  time.Duration
	logger   *slog.Logger
	metrics  *lockmetrics.Metrics
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *lockmetrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLockTTL overrides the authorization window length.
func WithLockTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.lockTTL = ttl }
}

// NewRegistry builds a lock registry.
func NewRegistry(locks store.LockStore, verifier Verifier, roles RoleChecker, opts ...Option) *Registry {
	r := &Registry{
		locks:    locks,
		verifier: verifier,
		roles:    roles,
		lockTTL:  72 * time.Hour,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetReservationReleaser wires the rejection callback. Set during startup;
// the circular dependency between controller and registry resolves here.
func (r *Registry) SetReservationReleaser(releaser ReservationReleaser) {
	r.releaser = releaser
}

// Receive creates a lock in the received state. Only the injection
// controller calls this; it is not exposed on the public surface.
func (r *Registry) Receive(ctx context.Context, injectionID domain.InjectionID, authorizationCode string, amount domain.Amount, beneficiary string) (*models.Lock, error) {
	lock, err := models.NewLock(domain.NewLockID(), injectionID, authorizationCode, amount, beneficiary, requestcontext.Now(ctx), r.lockTTL)
	if err != nil {
		return nil, err
	}
	if err := r.locks.Create(ctx, lock); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store lock")
	}

	if r.metrics != nil {
		r.metrics.LocksReceived.Inc()
	}
	r.logger.InfoContext(ctx, "lock received",
		"lock_id", lock.ID,
		"injection_id", injectionID,
		"amount", amount,
		"beneficiary", beneficiary,
		"expires_at", lock.ExpiresAt,
	)
	return lock, nil
}

// Sign verifies and records one quorum signature. The slot is chosen by the
// signer's role, not by call order; signatures arriving out of order land
// deterministically. When the third distinct role signs, the lock advances
// to accepted.
func (r *Registry) Sign(ctx context.Context, lockID domain.LockID, role domain.SignerRole, signer string, sig []byte) (*models.Lock, error) {
	if !role.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown signer role %q", role)
	}
	if signer == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signer address is required")
	}

	held, err := r.roles.HasRole(ctx, signer, string(role))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "role registry unreachable")
	}
	if !held {
		r.rejectSignature(ctx, lockID, signer, "unauthorized_signer")
		return nil, dErrors.Newf(dErrors.CodeUnauthorizedSigner,
			"signer does not hold role %s", role)
	}

	current, err := r.locks.FindByID(ctx, lockID)
	if err != nil {
		return nil, wrapLockErr(err)
	}

	// The signed message covers only immutable lock fields, so verifying
	// outside the store lock is safe; slot state is re-validated under it.
	if err := r.verifier.VerifyFor(ctx, signer, current.SigningMessageHash(), sig); err != nil {
		r.rejectSignature(ctx, lockID, signer, "invalid_signature")
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidSignature, "signature verification failed")
	}

	now := requestcontext.Now(ctx)
	sigHash := fmt.Sprintf("%x", sha3.Sum256(sig))

	lock, err := r.locks.Execute(ctx, lockID,
		func(l *models.Lock) error { return l.CanSign(role, signer, now) },
		func(l *models.Lock) { l.ApplySignature(role, signer, sigHash, now) },
	)
	if err != nil {
		return nil, wrapLockErr(err)
	}

	if r.metrics != nil {
		r.metrics.SignaturesAccepted.Inc()
	}
	r.logger.InfoContext(ctx, "lock signature recorded",
		"lock_id", lockID,
		"role", role,
		"signer", signer,
		"status", lock.Status,
		"request_id", requestcontext.RequestID(ctx),
	)
	if lock.Status == models.StatusAccepted && r.metrics != nil {
		r.metrics.QuorumsReached.Inc()
	}
	return lock, nil
}

// MoveToReserve advances an accepted lock to reserved, the point at which
// its value becomes mintable. Requires the mint-operator role.
func (r *Registry) MoveToReserve(ctx context.Context, lockID domain.LockID) (*models.Lock, error) {
	if err := r.requireRole(ctx, domain.RoleMintOperator); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	lock, err := r.locks.Execute(ctx, lockID,
		func(l *models.Lock) error { return l.CanMoveToReserve() },
		func(l *models.Lock) { l.ApplyReserve(now) },
	)
	if err != nil {
		return nil, wrapLockErr(err)
	}

	r.logger.InfoContext(ctx, "lock reserved for minting",
		"lock_id", lockID,
		"available", lock.AvailableAmount(),
	)
	return lock, nil
}

// ApprovePartialAmount caps the next consumption tranche without
// re-running quorum. Requires the mint-operator role.
func (r *Registry) ApprovePartialAmount(ctx context.Context, lockID domain.LockID, amount domain.Amount) (*models.Lock, error) {
	if err := r.requireRole(ctx, domain.RoleMintOperator); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	lock, err := r.locks.Execute(ctx, lockID,
		func(l *models.Lock) error { return l.CanApproveTranche(amount) },
		func(l *models.Lock) { l.ApplyTrancheApproval(amount, now) },
	)
	if err != nil {
		return nil, wrapLockErr(err)
	}
	return lock, nil
}

// ConsumeForMinting burns amount out of the lock under a unique mint
// reference. Only the minting ledger calls this; replays of a reference are
// rejected with duplicate_consumption and change nothing.
func (r *Registry) ConsumeForMinting(ctx context.Context, lockID domain.LockID, amount domain.Amount, mintReference, note string) (models.Consumption, *models.Lock, error) {
	now := requestcontext.Now(ctx)
	consumptionID := domain.NewConsumptionID()

	var consumption models.Consumption
	lock, err := r.locks.Execute(ctx, lockID,
		func(l *models.Lock) error { return l.CanConsume(amount, mintReference) },
		func(l *models.Lock) {
			consumption = l.ApplyConsumption(consumptionID, amount, mintReference, note, now)
		},
	)
	if err != nil {
		return models.Consumption{}, nil, wrapLockErr(err)
	}

	if r.metrics != nil {
		r.metrics.ConsumedMicros.Add(float64(amount.Micros()))
	}
	r.logger.InfoContext(ctx, "lock value consumed",
		"lock_id", lockID,
		"consumption_id", consumption.ID,
		"mint_reference", mintReference,
		"amount", amount,
		"available", lock.AvailableAmount(),
		"status", lock.Status,
	)
	return consumption, lock, nil
}

// Reject terminates a lock that has not reached reserve and releases the
// paired custody reservation. Any operator may reject a lock whose
// authorization window has passed; otherwise the injection-operator role is
// required.
func (r *Registry) Reject(ctx context.Context, lockID domain.LockID, reason string) (*models.Lock, error) {
	current, err := r.locks.FindByID(ctx, lockID)
	if err != nil {
		return nil, wrapLockErr(err)
	}
	if !current.Expired(requestcontext.Now(ctx)) {
		if err := r.requireRole(ctx, domain.RoleInjectionOperator); err != nil {
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	lock, err := r.locks.Execute(ctx, lockID,
		func(l *models.Lock) error { return l.CanReject() },
		func(l *models.Lock) { l.ApplyRejection(reason, now) },
	)
	if err != nil {
		return nil, wrapLockErr(err)
	}

	if r.releaser != nil {
		if err := r.releaser.ReleaseForInjection(ctx, lock.InjectionID, lock.TotalAmount); err != nil {
			// The lock is terminally rejected but custody still shows the
			// reservation; surface loudly for manual reconciliation.
			r.logger.ErrorContext(ctx, "reservation release failed after lock rejection",
				"lock_id", lockID,
				"injection_id", lock.InjectionID,
				"amount", lock.TotalAmount,
				"error", err,
			)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "lock rejected but reservation release failed")
		}
	}

	if r.metrics != nil {
		r.metrics.LocksRejected.Inc()
	}
	r.logger.WarnContext(ctx, "lock rejected",
		"lock_id", lockID,
		"reason", reason,
	)
	return lock, nil
}

// GetLock retrieves a single lock.
func (r *Registry) GetLock(ctx context.Context, lockID domain.LockID) (*models.Lock, error) {
	lock, err := r.locks.FindByID(ctx, lockID)
	if err != nil {
		return nil, wrapLockErr(err)
	}
	return lock, nil
}

// GetLockByInjection retrieves the lock paired with an injection.
func (r *Registry) GetLockByInjection(ctx context.Context, injectionID domain.InjectionID) (*models.Lock, error) {
	lock, err := r.locks.FindByInjectionID(ctx, injectionID)
	if err != nil {
		return nil, wrapLockErr(err)
	}
	return lock, nil
}

// ListByStatus returns locks in the given status.
func (r *Registry) ListByStatus(ctx context.Context, status models.LockStatus) ([]*models.Lock, error) {
	locks, err := r.locks.ListByStatus(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list locks")
	}
	return locks, nil
}

func (r *Registry) requireRole(ctx context.Context, role string) error {
	principal := requestcontext.Principal(ctx)
	if principal == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	held, err := r.roles.HasRole(ctx, principal, role)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "role registry unreachable")
	}
	if !held {
		return dErrors.Newf(dErrors.CodeForbidden, "principal lacks role %s", role)
	}
	return nil
}

// rejectSignature logs a failed signature attempt for security review.
func (r *Registry) rejectSignature(ctx context.Context, lockID domain.LockID, signer, reason string) {
	if r.metrics != nil {
		r.metrics.SignaturesRejected.WithLabelValues(reason).Inc()
	}
	r.logger.WarnContext(ctx, "lock signature rejected",
		"lock_id", lockID,
		"signer", signer,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func wrapLockErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "lock not found")
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "lock store failure")
	}
}
