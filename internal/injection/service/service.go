// Package service implements the InjectionController: the rate-limited,
// circuit-breaker-guarded gateway that moves custody value into locks.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math/bits"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"reservemint/internal/compliance"
	injmetrics "reservemint/internal/injection/metrics"
	"reservemint/internal/injection/models"
	"reservemint/internal/injection/store"
	lockmodels "reservemint/internal/lock/models"
	"reservemint/internal/oracle"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/platform/sentinel"
	"reservemint/pkg/requestcontext"
)

// GlobalWindowKey is the window key when rate limiting is deployment-wide.
const GlobalWindowKey = "global"

// CustodyReserver is the custody ledger surface the controller needs.
type CustodyReserver interface {
	ReserveForInjection(ctx context.Context, accountID domain.AccountID, amount domain.Amount) error
	ReleaseReservation(ctx context.Context, accountID domain.AccountID, amount domain.Amount) error
}

// LockReceiver creates the paired lock; satisfied by the lock registry.
type LockReceiver interface {
	Receive(ctx context.Context, injectionID domain.InjectionID, authorizationCode string, amount domain.Amount, beneficiary string) (*lockmodels.Lock, error)
}

// ComplianceChecker answers allow/deny for a movement; satisfied by
// compliance.Guard.
type ComplianceChecker interface {
	IsAllowed(ctx context.Context, principal string, amount domain.Amount, purpose compliance.Purpose) (compliance.Decision, error)
}

// RoleChecker answers role membership, satisfied by roles.Registry.
type RoleChecker interface {
	HasRole(ctx context.Context, principal, role string) (bool, error)
}

// Policy is the controller's risk configuration. DailyCap is mutable at
// runtime through UpdateDailyCap; everything else is fixed at startup.
type Policy struct {
	DailyCap         domain.Amount
	AnomalyThreshold domain.Amount
	WindowDuration   time.Duration
	PerAccountWindow bool
	CurrencyCode     string
}

// Controller implements the injection pipeline. Every initiation runs
// compliance and price checks in parallel, reserves rate-limit capacity,
// reserves custody value and creates the paired lock, compensating every
// prior side effect when a later step fails.
type Controller struct {
	injections store.InjectionStore
	windows    store.WindowStore
	custody    CustodyReserver
	locks      LockReceiver
	gate       ComplianceChecker
	prices     oracle.PriceSource
	roles      RoleChecker

	policyMu sync.RWMutex
	policy   Policy

	logger  *slog.Logger
	metrics *injmetrics.Metrics
}

// Option configures the Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *injmetrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController builds an injection controller.
func NewController(
	injections store.InjectionStore,
	windows store.WindowStore,
	custody CustodyReserver,
	locks LockReceiver,
	gate ComplianceChecker,
	prices oracle.PriceSource,
	roles RoleChecker,
	policy Policy,
	opts ...Option,
) *Controller {
	c := &Controller{
		injections: injections,
		windows:    windows,
		custody:    custody,
		locks:      locks,
		gate:       gate,
		prices:     prices,
		roles:      roles,
		policy:     policy,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) currentPolicy() Policy {
	c.policyMu.RLock()
	defer c.policyMu.RUnlock()
	return c.policy
}

func (c *Controller) windowKey(accountID domain.AccountID) string {
	if c.currentPolicy().PerAccountWindow {
		return accountID.String()
	}
	return GlobalWindowKey
}

// Initiate runs the full injection pipeline and returns the locked
// injection. Requires the injection-operator role.
func (c *Controller) Initiate(ctx context.Context, accountID domain.AccountID, amount domain.Amount, beneficiary, authorizationCode string) (*models.Injection, error) {
	if err := c.requireRole(ctx, domain.RoleInjectionOperator); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidAmount, "injection amount must be positive")
	}

	policy := c.currentPolicy()

	// Compliance verdict and current price are independent upstreams;
	// check them concurrently and fail closed on either.
	var decision compliance.Decision
	var quote oracle.Quote
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		decision, err = c.gate.IsAllowed(gctx, beneficiary, amount, compliance.PurposeInjection)
		return err
	})
	g.Go(func() error {
		var err error
		quote, err = c.prices.CurrentPrice(gctx, policy.CurrencyCode)
		return err
	})
	if err := g.Wait(); err != nil {
		c.reject(ctx, "upstream_unavailable")
		return nil, wrapInjectionErr(err)
	}
	if !decision.Allowed {
		c.reject(ctx, "compliance_denied")
		return nil, dErrors.Newf(dErrors.CodeComplianceDenied, "beneficiary denied: %s", decision.Reason)
	}

	key := c.windowKey(accountID)
	now := requestcontext.Now(ctx)
	window, err := c.windows.Reserve(ctx, key, amount, policy.DailyCap, now, policy.WindowDuration)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrBreakerOpen):
			c.reject(ctx, "circuit_breaker_open")
			return nil, dErrors.New(dErrors.CodeCircuitBreakerOpen, "injections are halted until the circuit breaker is reset")
		case errors.Is(err, store.ErrCapExceeded):
			c.reject(ctx, "rate_limit_exceeded")
			return nil, dErrors.Newf(dErrors.CodeRateLimitExceeded,
				"injection of %s exceeds remaining window capacity %s", amount, window.Remaining())
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rate-limit window unavailable")
		}
	}
	if c.metrics != nil {
		c.metrics.WindowUsedMicros.Set(float64(window.WindowAmountUsed.Micros()))
	}

	if amount > policy.AnomalyThreshold {
		// A single transaction this large is treated as a runaway or
		// compromised-key injection: halt everything until a risk admin
		// looks at it.
		if terr := c.windows.TripBreaker(ctx, key, "single-transaction anomaly threshold exceeded"); terr != nil {
			c.logger.ErrorContext(ctx, "breaker trip failed", "key", key, "error", terr)
		}
		c.refundWindow(ctx, key, amount)
		if c.metrics != nil {
			c.metrics.BreakerTrips.Inc()
			c.metrics.BreakerOpen.Set(1)
		}
		c.reject(ctx, "anomaly_detected")
		c.logger.ErrorContext(ctx, "circuit breaker tripped",
			"account_id", accountID,
			"amount", amount,
			"threshold", policy.AnomalyThreshold,
		)
		return nil, dErrors.Newf(dErrors.CodeAnomalyDetected,
			"amount %s exceeds the single-transaction threshold %s; circuit breaker tripped", amount, policy.AnomalyThreshold)
	}

	if err := c.custody.ReserveForInjection(ctx, accountID, amount); err != nil {
		c.refundWindow(ctx, key, amount)
		c.reject(ctx, "reservation_failed")
		return nil, err
	}

	usd, err := usdEquivalent(amount, quote)
	if err != nil {
		c.compensate(ctx, key, accountID, amount)
		return nil, err
	}

	injection, err := models.NewInjection(domain.NewInjectionID(), accountID, amount, usd, beneficiary, authorizationCode, now)
	if err != nil {
		c.compensate(ctx, key, accountID, amount)
		return nil, err
	}
	if err := c.injections.Create(ctx, injection); err != nil {
		c.compensate(ctx, key, accountID, amount)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store injection")
	}

	lock, err := c.locks.Receive(ctx, injection.ID, authorizationCode, amount, beneficiary)
	if err != nil {
		// The injection exists but no lock backs it; cancel it and give
		// everything back so no partial state survives.
		c.cancelOrphan(ctx, injection.ID, "lock creation failed")
		c.compensate(ctx, key, accountID, amount)
		return nil, wrapInjectionErr(err)
	}

	locked, err := c.injections.Execute(ctx, injection.ID,
		func(i *models.Injection) error { return i.CanLock() },
		func(i *models.Injection) { i.ApplyLock(lock.ID, now) },
	)
	if err != nil {
		return nil, wrapInjectionErr(err)
	}

	if c.metrics != nil {
		c.metrics.InjectionsInitiated.Inc()
		c.metrics.InjectedMicros.Add(float64(amount.Micros()))
	}
	c.logger.InfoContext(ctx, "injection locked",
		"injection_id", locked.ID,
		"lock_id", lock.ID,
		"account_id", accountID,
		"amount", amount,
		"usd_equivalent", usd,
		"beneficiary", beneficiary,
		"request_id", requestcontext.RequestID(ctx),
	)
	return locked, nil
}

// Cancel terminates an injection that has not produced a lock and releases
// its custody reservation. Requires the injection-operator role.
func (c *Controller) Cancel(ctx context.Context, injectionID domain.InjectionID, reason string) (*models.Injection, error) {
	if err := c.requireRole(ctx, domain.RoleInjectionOperator); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	injection, err := c.injections.Execute(ctx, injectionID,
		func(i *models.Injection) error { return i.CanCancel() },
		func(i *models.Injection) { i.ApplyCancel(reason, now) },
	)
	if err != nil {
		return nil, wrapInjectionErr(err)
	}

	if err := c.custody.ReleaseReservation(ctx, injection.CustodyAccountID, injection.Amount); err != nil {
		c.logger.ErrorContext(ctx, "reservation release failed after cancellation",
			"injection_id", injectionID,
			"account_id", injection.CustodyAccountID,
			"amount", injection.Amount,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "injection cancelled but reservation release failed")
	}

	if c.metrics != nil {
		c.metrics.InjectionsCancelled.Inc()
	}
	c.logger.InfoContext(ctx, "injection cancelled",
		"injection_id", injectionID,
		"reason", reason,
	)
	return injection, nil
}

// ReleaseForInjection returns the custody reservation behind a rejected
// lock. It is the lock registry's rejection callback.
func (c *Controller) ReleaseForInjection(ctx context.Context, injectionID domain.InjectionID, amount domain.Amount) error {
	injection, err := c.injections.FindByID(ctx, injectionID)
	if err != nil {
		return wrapInjectionErr(err)
	}
	return c.custody.ReleaseReservation(ctx, injection.CustodyAccountID, amount)
}

// ResetBreaker closes the circuit breaker. Requires the risk-admin role;
// deployments wrap this in their external timelock.
func (c *Controller) ResetBreaker(ctx context.Context, accountID domain.AccountID) error {
	if err := c.requireRole(ctx, domain.RoleRiskAdmin); err != nil {
		return err
	}
	if err := c.windows.ResetBreaker(ctx, c.windowKey(accountID)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "breaker reset failed")
	}
	if c.metrics != nil {
		c.metrics.BreakerOpen.Set(0)
	}
	c.logger.WarnContext(ctx, "circuit breaker reset",
		"principal", requestcontext.Principal(ctx),
	)
	return nil
}

// UpdateDailyCap changes the window cap. Requires the risk-admin role.
func (c *Controller) UpdateDailyCap(ctx context.Context, cap domain.Amount) error {
	if err := c.requireRole(ctx, domain.RoleRiskAdmin); err != nil {
		return err
	}
	if cap.IsZero() {
		return dErrors.New(dErrors.CodeInvalidAmount, "daily cap must be positive")
	}
	c.policyMu.Lock()
	c.policy.DailyCap = cap
	c.policyMu.Unlock()

	c.logger.WarnContext(ctx, "daily injection cap changed",
		"cap", cap,
		"principal", requestcontext.Principal(ctx),
	)
	return nil
}

// WindowStatus reports the current window and breaker state for an account.
func (c *Controller) WindowStatus(ctx context.Context, accountID domain.AccountID) (models.RateLimitWindow, error) {
	policy := c.currentPolicy()
	window, err := c.windows.Snapshot(ctx, c.windowKey(accountID), policy.DailyCap, requestcontext.Now(ctx), policy.WindowDuration)
	if err != nil {
		return models.RateLimitWindow{}, dErrors.Wrap(err, dErrors.CodeInternal, "rate-limit window unavailable")
	}
	return window, nil
}

// GetInjection retrieves a single injection.
func (c *Controller) GetInjection(ctx context.Context, injectionID domain.InjectionID) (*models.Injection, error) {
	injection, err := c.injections.FindByID(ctx, injectionID)
	if err != nil {
		return nil, wrapInjectionErr(err)
	}
	return injection, nil
}

// ListInjections returns all injections, newest first.
func (c *Controller) ListInjections(ctx context.Context) ([]*models.Injection, error) {
	injections, err := c.injections.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list injections")
	}
	return injections, nil
}

// compensate unwinds the custody reservation and window capacity taken by
// a failed pipeline.
func (c *Controller) compensate(ctx context.Context, key string, accountID domain.AccountID, amount domain.Amount) {
	if err := c.custody.ReleaseReservation(ctx, accountID, amount); err != nil {
		c.logger.ErrorContext(ctx, "compensating reservation release failed",
			"account_id", accountID,
			"amount", amount,
			"error", err,
		)
	}
	c.refundWindow(ctx, key, amount)
}

func (c *Controller) refundWindow(ctx context.Context, key string, amount domain.Amount) {
	if err := c.windows.Refund(ctx, key, amount); err != nil {
		c.logger.ErrorContext(ctx, "window refund failed", "key", key, "amount", amount, "error", err)
	}
}

func (c *Controller) cancelOrphan(ctx context.Context, injectionID domain.InjectionID, reason string) {
	_, err := c.injections.Execute(ctx, injectionID,
		func(i *models.Injection) error { return i.CanCancel() },
		func(i *models.Injection) { i.ApplyCancel(reason, requestcontext.Now(ctx)) },
	)
	if err != nil {
		c.logger.ErrorContext(ctx, "orphan injection cancellation failed",
			"injection_id", injectionID,
			"error", err,
		)
	}
}

func (c *Controller) reject(ctx context.Context, reason string) {
	if c.metrics != nil {
		c.metrics.InjectionsRejected.WithLabelValues(reason).Inc()
	}
	c.logger.WarnContext(ctx, "injection rejected",
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func (c *Controller) requireRole(ctx context.Context, role string) error {
	principal := requestcontext.Principal(ctx)
	if principal == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	held, err := c.roles.HasRole(ctx, principal, role)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "role registry unreachable")
	}
	if !held {
		return dErrors.Newf(dErrors.CodeForbidden, "principal lacks role %s", role)
	}
	return nil
}

func wrapInjectionErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "injection not found")
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "injection store failure")
	}
}

// usdEquivalent converts amount at the quoted price, both in 6-decimal
// fixed point. The product is taken in 128-bit space so large amounts at
// large prices survive the intermediate multiplication.
func usdEquivalent(amount domain.Amount, quote oracle.Quote) (domain.Amount, error) {
	if quote.PriceMicros == 0 {
		return 0, dErrors.New(dErrors.CodeUpstreamUnavailable, "oracle returned a zero price")
	}
	hi, lo := bits.Mul64(amount.Micros(), quote.PriceMicros)
	if hi >= domain.MicrosPerUnit {
		return 0, dErrors.New(dErrors.CodeInvalidAmount, "usd equivalent overflows fixed-point range")
	}
	usd, _ := bits.Div64(hi, lo, domain.MicrosPerUnit)
	return domain.Amount(usd), nil
}
