package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"reservemint/internal/compliance"
	explorermodels "reservemint/internal/explorer/models"
	explorerservice "reservemint/internal/explorer/service"
	explorerstore "reservemint/internal/explorer/store"
	injmodels "reservemint/internal/injection/models"
	injstore "reservemint/internal/injection/store"
	lockmodels "reservemint/internal/lock/models"
	lockservice "reservemint/internal/lock/service"
	lockstore "reservemint/internal/lock/store"
	"reservemint/internal/minting/models"
	mintstore "reservemint/internal/minting/store"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
	"reservemint/pkg/requestcontext"
)

type allowAllRoles struct{}

func (allowAllRoles) HasRole(context.Context, string, string) (bool, error) { return true, nil }

type allowAllVerifier struct{}

func (allowAllVerifier) VerifyFor(context.Context, string, []byte, []byte) error { return nil }

type injectionDirectory struct {
	store *injstore.InMemory
}

func (d injectionDirectory) GetInjection(ctx context.Context, id domain.InjectionID) (*injmodels.Injection, error) {
	return d.store.FindByID(ctx, id)
}

// flakyAppender fails the first n appends, then delegates.
type flakyAppender struct {
	inner    AuditAppender
	failures int
}

func (f *flakyAppender) Append(ctx context.Context, entry explorermodels.Entry) error {
	if f.failures > 0 {
		f.failures--
		return dErrors.New(dErrors.CodeInternal, "explorer unavailable")
	}
	return f.inner.Append(ctx, entry)
}

type LedgerSuite struct {
	suite.Suite
	ledger     *Ledger
	locks      *lockservice.Registry
	explorer   *explorerservice.Explorer
	appender   *flakyAppender
	injections *injstore.InMemory
	gate       *compliance.StaticGate
	lock       *lockmodels.Lock
	ctx        context.Context
}

func (s *LedgerSuite) SetupTest() {
	locksBacking := lockstore.NewInMemory()
	s.locks = lockservice.NewRegistry(locksBacking, allowAllVerifier{}, allowAllRoles{})
	s.injections = injstore.NewInMemory()
	s.gate = compliance.NewStaticGate()
	s.explorer = explorerservice.NewExplorer(explorerstore.NewInMemory(), locksBacking)
	s.appender = &flakyAppender{inner: s.explorer}

	s.ledger = NewLedger(
		mintstore.NewInMemory(),
		s.locks,
		injectionDirectory{store: s.injections},
		s.appender,
		s.gate,
		allowAllRoles{},
	)
	s.ctx = requestcontext.WithPrincipal(context.Background(), "minter")

	// A reserved lock of 1000000 backed by a locked injection.
	amount := s.amount("1000000")
	injection, err := injmodels.NewInjection(domain.NewInjectionID(), domain.NewAccountID(), amount, amount, "treasury-wallet", "AUTH-77", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.injections.Create(s.ctx, injection))

	lock, err := s.locks.Receive(s.ctx, injection.ID, "AUTH-77", amount, "treasury-wallet")
	s.Require().NoError(err)
	for i, signer := range []string{"ops", "bank", "proto"} {
		_, err := s.locks.Sign(s.ctx, lock.ID, domain.SignerRoles[i], signer, []byte("sig-"+signer))
		s.Require().NoError(err)
	}
	s.lock, err = s.locks.MoveToReserve(s.ctx, lock.ID)
	s.Require().NoError(err)

	_, err = s.injections.Execute(s.ctx, injection.ID,
		func(*injmodels.Injection) error { return nil },
		func(i *injmodels.Injection) { i.ApplyLock(s.lock.ID, time.Now()) },
	)
	s.Require().NoError(err)
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) amount(raw string) domain.Amount {
	a, err := domain.ParseAmount(raw)
	s.Require().NoError(err)
	return a
}

func (s *LedgerSuite) mint(amount domain.Amount, reference string) *models.MintRecord {
	request, err := s.ledger.CreateMintRequest(s.ctx, s.lock.ID, amount, "")
	s.Require().NoError(err)
	record, err := s.ledger.ExecuteMint(s.ctx, request.ID, "treasury-wallet", amount, reference, "tx-"+reference)
	s.Require().NoError(err)
	return record
}

func (s *LedgerSuite) TestCreateMintRequest() {
	s.Run("read-only validation leaves the lock untouched", func() {
		request, err := s.ledger.CreateMintRequest(s.ctx, s.lock.ID, s.amount("400000"), "first tranche")
		s.Require().NoError(err)
		s.Equal(models.RequestPending, request.Status)

		lock, err := s.locks.GetLock(s.ctx, s.lock.ID)
		s.Require().NoError(err)
		s.True(lock.ConsumedAmount.IsZero())
		s.Equal(lockmodels.StatusReserved, lock.Status)
	})

	s.Run("over-available amount is rejected", func() {
		_, err := s.ledger.CreateMintRequest(s.ctx, s.lock.ID, s.amount("1000000.000001"), "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidAmount))
	})

	s.Run("role is enforced", func() {
		_, err := s.ledger.CreateMintRequest(context.Background(), s.lock.ID, s.amount("1"), "")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *LedgerSuite) TestExecuteMintPartialFills() {
	first := s.mint(s.amount("400000"), "MINT-1")
	s.Equal(s.amount("400000"), first.AmountMinted)
	s.NotEmpty(first.PublicationCode)
	s.NotEmpty(first.SignatureDigestTriple)
	s.False(first.ReconciliationRequired)

	lock, err := s.locks.GetLock(s.ctx, s.lock.ID)
	s.Require().NoError(err)
	s.Equal(lockmodels.StatusPartiallyConsumed, lock.Status)
	s.Equal(s.amount("600000"), lock.AvailableAmount())

	second := s.mint(s.amount("600000"), "MINT-2")
	s.NotEqual(first.PublicationCode, second.PublicationCode)

	lock, err = s.locks.GetLock(s.ctx, s.lock.ID)
	s.Require().NoError(err)
	s.Equal(lockmodels.StatusFullyConsumed, lock.Status)
	s.True(lock.AvailableAmount().IsZero())

	entries, err := s.explorer.GetEntriesByLock(s.ctx, s.lock.ID)
	s.Require().NoError(err)
	s.Len(entries, 2)
	s.Equal(first.PublicationCode, entries[0].PublicationCode)
}

func (s *LedgerSuite) TestExecuteMintReplayedReference() {
	s.mint(s.amount("400000"), "MINT-1")

	request, err := s.ledger.CreateMintRequest(s.ctx, s.lock.ID, s.amount("100000"), "")
	s.Require().NoError(err)
	_, err = s.ledger.ExecuteMint(s.ctx, request.ID, "treasury-wallet", s.amount("100000"), "MINT-1", "")
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateConsumption))

	// The replay consumed nothing and published nothing.
	lock, err := s.locks.GetLock(s.ctx, s.lock.ID)
	s.Require().NoError(err)
	s.Equal(s.amount("400000"), lock.ConsumedAmount)

	entries, err := s.explorer.GetEntriesByLock(s.ctx, s.lock.ID)
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *LedgerSuite) TestExecuteMintValidation() {
	request, err := s.ledger.CreateMintRequest(s.ctx, s.lock.ID, s.amount("100000"), "")
	s.Require().NoError(err)

	s.Run("beneficiary must match the lock", func() {
		_, err := s.ledger.ExecuteMint(s.ctx, request.ID, "someone-else", s.amount("100000"), "MINT-1", "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("amount must match the request", func() {
		_, err := s.ledger.ExecuteMint(s.ctx, request.ID, "treasury-wallet", s.amount("99999"), "MINT-1", "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("denied beneficiary cannot be paid", func() {
		s.gate.Deny("treasury-wallet", "watchlist match")
		defer s.gate.Allow("treasury-wallet")
		_, err := s.ledger.ExecuteMint(s.ctx, request.ID, "treasury-wallet", s.amount("100000"), "MINT-1", "")
		s.True(dErrors.HasCode(err, dErrors.CodeComplianceDenied))
	})

	s.Run("executed request cannot run again", func() {
		_, err := s.ledger.ExecuteMint(s.ctx, request.ID, "treasury-wallet", s.amount("100000"), "MINT-1", "")
		s.Require().NoError(err)
		_, err = s.ledger.ExecuteMint(s.ctx, request.ID, "treasury-wallet", s.amount("100000"), "MINT-1b", "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *LedgerSuite) TestReconciliationFlow() {
	s.appender.failures = 1

	request, err := s.ledger.CreateMintRequest(s.ctx, s.lock.ID, s.amount("250000"), "")
	s.Require().NoError(err)
	record, err := s.ledger.ExecuteMint(s.ctx, request.ID, "treasury-wallet", s.amount("250000"), "MINT-1", "")
	s.Require().NoError(err)
	s.True(record.ReconciliationRequired)

	// The consumption survived the explorer failure.
	lock, err := s.locks.GetLock(s.ctx, s.lock.ID)
	s.Require().NoError(err)
	s.Equal(s.amount("250000"), lock.ConsumedAmount)

	entries, err := s.explorer.GetEntriesByLock(s.ctx, s.lock.ID)
	s.Require().NoError(err)
	s.Empty(entries)

	flagged, err := s.ledger.ListReconciliationRequired(s.ctx)
	s.Require().NoError(err)
	s.Len(flagged, 1)

	reconciled, err := s.ledger.Reconcile(s.ctx, record.ID)
	s.Require().NoError(err)
	s.False(reconciled.ReconciliationRequired)

	entries, err = s.explorer.GetEntriesByLock(s.ctx, s.lock.ID)
	s.Require().NoError(err)
	s.Len(entries, 1)
	s.Equal(record.PublicationCode, entries[0].PublicationCode)

	_, err = s.ledger.Reconcile(s.ctx, record.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *LedgerSuite) TestGetAuditTrail() {
	first := s.mint(s.amount("400000"), "MINT-1")
	second := s.mint(s.amount("200000"), "MINT-2")

	trail, err := s.ledger.GetAuditTrail(s.ctx, s.lock.ID)
	s.Require().NoError(err)

	s.Equal(s.lock.ID, trail.Lock.ID)
	s.Equal(trail.Lock.InjectionID, trail.Injection.ID)
	s.Equal(injmodels.StatusLocked, trail.Injection.Status)
	s.True(trail.Lock.Signatures.Complete())

	s.Require().Len(trail.Records, 2)
	s.Equal(first.ID, trail.Records[0].ID)
	s.Equal(second.ID, trail.Records[1].ID)
	s.Equal(trail.Lock.SignatureDigestTriple(), trail.Records[0].SignatureDigestTriple)
}

func (s *LedgerSuite) TestStatisticsReflectConsumption() {
	s.mint(s.amount("400000"), "MINT-1")

	stats, err := s.explorer.GetStatistics(s.ctx)
	s.Require().NoError(err)
	s.Equal(s.amount("1000000"), stats.TotalLocked)
	s.Equal(s.amount("600000"), stats.TotalAvailable)
	s.Equal(s.amount("400000"), stats.TotalConsumed)
	s.Equal(s.amount("400000"), stats.TotalMinted)
	s.Equal(1, stats.LockCount)
	s.Equal(1, stats.EntryCount)
}
