package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	custodyModel "reservemint/internal/custody/models"
	explorerModel "reservemint/internal/explorer/models"
	explorerService "reservemint/internal/explorer/service"
	injectionModel "reservemint/internal/injection/models"
	lockModel "reservemint/internal/lock/models"
	mintModel "reservemint/internal/minting/models"
	mintService "reservemint/internal/minting/service"
	"reservemint/internal/platform/middleware"
	signatureModel "reservemint/internal/signature/models"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
)

const testSigningKey = "transport-test-key"

type stubCustody struct {
	account *custodyModel.CustodyAccount
	err     error

	gotName   string
	gotAmount domain.Amount
}

func (s *stubCustody) CreateAccount(_ context.Context, name, _, _, _ string) (*custodyModel.CustodyAccount, error) {
	s.gotName = name
	return s.account, s.err
}

func (s *stubCustody) RecordDeposit(_ context.Context, _ domain.AccountID, amount domain.Amount) (*custodyModel.CustodyAccount, error) {
	s.gotAmount = amount
	return s.account, s.err
}

func (s *stubCustody) DeactivateAccount(context.Context, domain.AccountID) (*custodyModel.CustodyAccount, error) {
	return s.account, s.err
}

func (s *stubCustody) ReactivateAccount(context.Context, domain.AccountID) (*custodyModel.CustodyAccount, error) {
	return s.account, s.err
}

func (s *stubCustody) GetAccount(context.Context, domain.AccountID) (*custodyModel.CustodyAccount, error) {
	return s.account, s.err
}

func (s *stubCustody) ListAccounts(context.Context) ([]*custodyModel.CustodyAccount, error) {
	return []*custodyModel.CustodyAccount{s.account}, s.err
}

type stubInjections struct {
	injection *injectionModel.Injection
	window    injectionModel.RateLimitWindow
	err       error

	gotAmount      domain.Amount
	gotBeneficiary string
}

func (s *stubInjections) Initiate(_ context.Context, _ domain.AccountID, amount domain.Amount, beneficiary, _ string) (*injectionModel.Injection, error) {
	s.gotAmount = amount
	s.gotBeneficiary = beneficiary
	return s.injection, s.err
}

func (s *stubInjections) Cancel(context.Context, domain.InjectionID, string) (*injectionModel.Injection, error) {
	return s.injection, s.err
}

func (s *stubInjections) GetInjection(context.Context, domain.InjectionID) (*injectionModel.Injection, error) {
	return s.injection, s.err
}

func (s *stubInjections) ListInjections(context.Context) ([]*injectionModel.Injection, error) {
	return []*injectionModel.Injection{s.injection}, s.err
}

func (s *stubInjections) WindowStatus(context.Context, domain.AccountID) (injectionModel.RateLimitWindow, error) {
	return s.window, s.err
}

type stubLocks struct {
	lock *lockModel.Lock
	err  error

	gotRole domain.SignerRole
	gotSig  []byte
}

func (s *stubLocks) Sign(_ context.Context, _ domain.LockID, role domain.SignerRole, _ string, sig []byte) (*lockModel.Lock, error) {
	s.gotRole = role
	s.gotSig = sig
	return s.lock, s.err
}

func (s *stubLocks) MoveToReserve(context.Context, domain.LockID) (*lockModel.Lock, error) {
	return s.lock, s.err
}

func (s *stubLocks) ApprovePartialAmount(context.Context, domain.LockID, domain.Amount) (*lockModel.Lock, error) {
	return s.lock, s.err
}

func (s *stubLocks) Reject(context.Context, domain.LockID, string) (*lockModel.Lock, error) {
	return s.lock, s.err
}

func (s *stubLocks) GetLock(context.Context, domain.LockID) (*lockModel.Lock, error) {
	return s.lock, s.err
}

func (s *stubLocks) ListByStatus(context.Context, lockModel.LockStatus) ([]*lockModel.Lock, error) {
	return []*lockModel.Lock{s.lock}, s.err
}

type stubMints struct {
	request *mintModel.MintRequest
	record  *mintModel.MintRecord
	err     error

	gotMintReference string
}

func (s *stubMints) CreateMintRequest(context.Context, domain.LockID, domain.Amount, string) (*mintModel.MintRequest, error) {
	return s.request, s.err
}

func (s *stubMints) ExecuteMint(_ context.Context, _ domain.MintRequestID, _ string, _ domain.Amount, mintReference, _ string) (*mintModel.MintRecord, error) {
	s.gotMintReference = mintReference
	return s.record, s.err
}

func (s *stubMints) GetMintRequest(context.Context, domain.MintRequestID) (*mintModel.MintRequest, error) {
	return s.request, s.err
}

func (s *stubMints) GetMintRecord(context.Context, domain.MintRecordID) (*mintModel.MintRecord, error) {
	return s.record, s.err
}

func (s *stubMints) GetAuditTrail(context.Context, domain.LockID) (*mintService.AuditTrail, error) {
	return &mintService.AuditTrail{}, s.err
}

func (s *stubMints) ListReconciliationRequired(context.Context) ([]*mintModel.MintRecord, error) {
	return nil, s.err
}

func (s *stubMints) Reconcile(context.Context, domain.MintRecordID) (*mintModel.MintRecord, error) {
	return s.record, s.err
}

type stubExplorerService struct {
	entry explorerModel.Entry
	stats explorerService.Statistics
	err   error
}

func (s *stubExplorerService) GetEntryByPublicationCode(context.Context, string) (explorerModel.Entry, error) {
	return s.entry, s.err
}

func (s *stubExplorerService) GetEntriesByLock(context.Context, domain.LockID) ([]explorerModel.Entry, error) {
	return []explorerModel.Entry{s.entry}, s.err
}

func (s *stubExplorerService) GetRecentEntries(context.Context, int) ([]explorerModel.Entry, error) {
	return []explorerModel.Entry{s.entry}, s.err
}

func (s *stubExplorerService) GetStatistics(context.Context) (explorerService.Statistics, error) {
	return s.stats, s.err
}

type stubKeys struct {
	keyID domain.KeyID
	err   error

	gotAlgorithm signatureModel.Algorithm
}

func (s *stubKeys) RegisterPublicKey(_ context.Context, _ string, alg signatureModel.Algorithm, _ []byte, _, _ string) (domain.KeyID, error) {
	s.gotAlgorithm = alg
	return s.keyID, s.err
}

func (s *stubKeys) RevokePublicKey(context.Context, domain.KeyID, string) error {
	return s.err
}

type stubAdmin struct {
	err error

	resets  int
	gotCap  domain.Amount
	updates int
}

func (s *stubAdmin) ResetBreaker(context.Context, domain.AccountID) error {
	s.resets++
	return s.err
}

func (s *stubAdmin) UpdateDailyCap(_ context.Context, cap domain.Amount) error {
	s.updates++
	s.gotCap = cap
	return s.err
}

type RouterSuite struct {
	suite.Suite

	custody    *stubCustody
	injections *stubInjections
	locks      *stubLocks
	mints      *stubMints
	explorer   *stubExplorerService
	keys       *stubKeys
	admin      *stubAdmin

	server *httptest.Server
	token  string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	account, err := custodyModel.NewCustodyAccount(domain.NewAccountID(), "Treasury Reserve", "First Bank", "FB-001", "ops@example.com", time.Now().UTC())
	s.Require().NoError(err)
	account.Balance = 5_000_000

	s.custody = &stubCustody{account: account}
	s.injections = &stubInjections{window: injectionModel.RateLimitWindow{Key: "global", DailyCap: 1_000_000}}
	s.locks = &stubLocks{}
	s.mints = &stubMints{}
	s.explorer = &stubExplorerService{}
	s.keys = &stubKeys{keyID: domain.NewKeyID()}
	s.admin = &stubAdmin{}

	lock, err := lockModel.NewLock(domain.NewLockID(), domain.NewInjectionID(), "AUTH-1", 1_000_000, "0xbeneficiary", time.Now().UTC(), 72*time.Hour)
	s.Require().NoError(err)
	s.locks.lock = lock

	router := NewRouter(Deps{
		Custody:    s.custody,
		Injections: s.injections,
		Locks:      s.locks,
		Mints:      s.mints,
		Explorer:   s.explorer,
		Keys:       s.keys,
		Admin:      s.admin,
		Validator:  middleware.NewTokenValidator(testSigningKey),
		Logger:     logger,
	})
	s.server = httptest.NewServer(router)
	s.T().Cleanup(s.server.Close)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSigningKey))
	s.Require().NoError(err)
	s.token = token
}

func (s *RouterSuite) do(method, path string, body any, authed bool) *http.Response {
	s.T().Helper()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.server.URL+path, payload)
	s.Require().NoError(err)
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *RouterSuite) decode(resp *http.Response, v any) {
	s.T().Helper()
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
}

func (s *RouterSuite) TestAuthRequired() {
	s.Run("mutating routes reject missing token", func() {
		for _, route := range []struct {
			method string
			path   string
		}{
			{http.MethodPost, "/custody/accounts"},
			{http.MethodPost, "/injections"},
			{http.MethodPost, "/mints/requests"},
			{http.MethodPost, "/admin/breaker/reset"},
		} {
			resp := s.do(route.method, route.path, map[string]string{}, false)
			resp.Body.Close()
			s.Equal(http.StatusUnauthorized, resp.StatusCode, route.path)
		}
	})

	s.Run("explorer reads are public", func() {
		resp := s.do(http.MethodGet, "/explorer/statistics", nil, false)
		resp.Body.Close()
		s.Equal(http.StatusOK, resp.StatusCode)
	})

	s.Run("garbage token rejected", func() {
		req, err := http.NewRequest(http.MethodGet, s.server.URL+"/custody/accounts", nil)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer not-a-token")

		resp, err := s.server.Client().Do(req)
		s.Require().NoError(err)
		resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})
}

func (s *RouterSuite) TestHealthAndRequestID() {
	resp := s.do(http.MethodGet, "/healthz", nil, false)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.NotEmpty(resp.Header.Get("X-Request-ID"))
}

func (s *RouterSuite) TestCreateAccount() {
	resp := s.do(http.MethodPost, "/custody/accounts", map[string]string{
		"account_name": "Treasury Reserve",
		"bank_name":    "First Bank",
		"external_ref": "FB-001",
		"owner":        "ops@example.com",
	}, true)

	s.Equal(http.StatusCreated, resp.StatusCode)
	s.Equal("Treasury Reserve", s.custody.gotName)

	var got custodyModel.CustodyAccount
	s.decode(resp, &got)
	s.Equal(s.custody.account.ID, got.ID)
}

func (s *RouterSuite) TestRecordDepositParsesDecimalAmount() {
	resp := s.do(http.MethodPost, "/custody/accounts/"+s.custody.account.ID.String()+"/deposits", map[string]string{
		"amount": "12.5",
	}, true)
	resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(domain.Amount(12_500_000), s.custody.gotAmount)
}

func (s *RouterSuite) TestBadRequests() {
	s.Run("malformed json", func() {
		req, err := http.NewRequest(http.MethodPost, s.server.URL+"/custody/accounts", bytes.NewBufferString("{not json"))
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+s.token)

		resp, err := s.server.Client().Do(req)
		s.Require().NoError(err)
		defer resp.Body.Close()

		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("invalid account id", func() {
		resp := s.do(http.MethodPost, "/custody/accounts/not-a-uuid/deposits", map[string]string{"amount": "1"}, true)
		resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("negative amount", func() {
		resp := s.do(http.MethodPost, "/custody/accounts/"+s.custody.account.ID.String()+"/deposits", map[string]string{"amount": "-5"}, true)
		resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("lock list requires status", func() {
		resp := s.do(http.MethodGet, "/locks", nil, true)
		resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func (s *RouterSuite) TestErrorStatusMapping() {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"rate limit", dErrors.New(dErrors.CodeRateLimitExceeded, "daily injection cap exceeded"), http.StatusTooManyRequests},
		{"breaker open", dErrors.New(dErrors.CodeCircuitBreakerOpen, "circuit breaker open"), http.StatusServiceUnavailable},
		{"compliance denied", dErrors.New(dErrors.CodeComplianceDenied, "beneficiary denied"), http.StatusForbidden},
		{"insufficient balance", dErrors.New(dErrors.CodeInsufficientBalance, "insufficient unlocked balance"), http.StatusConflict},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.injections.err = tc.err
			resp := s.do(http.MethodPost, "/injections", map[string]string{
				"custody_account_id": s.custody.account.ID.String(),
				"amount":             "100",
				"beneficiary":        "0xbeneficiary",
				"authorization_code": "AUTH-1",
			}, true)
			defer resp.Body.Close()

			s.Equal(tc.status, resp.StatusCode)

			var body map[string]any
			s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
			s.Equal(string(dErrors.CodeOf(tc.err)), body["error"])
		})
	}
}

func (s *RouterSuite) TestRetryAfterOnCapacityRejections() {
	s.injections.err = dErrors.New(dErrors.CodeRateLimitExceeded, "daily injection cap exceeded")

	resp := s.do(http.MethodPost, "/injections", map[string]string{
		"custody_account_id": s.custody.account.ID.String(),
		"amount":             "100",
		"beneficiary":        "0xbeneficiary",
		"authorization_code": "AUTH-1",
	}, true)
	resp.Body.Close()

	s.Equal(http.StatusTooManyRequests, resp.StatusCode)
	s.NotEmpty(resp.Header.Get("Retry-After"))
}

func (s *RouterSuite) TestSignDecodesBase64Signature() {
	sig := []byte{0xde, 0xad, 0xbe, 0xef}

	resp := s.do(http.MethodPost, "/locks/"+s.locks.lock.ID.String()+"/signatures", map[string]any{
		"role":      string(domain.RoleOperationalSigner),
		"signer":    "ops-signer-1",
		"signature": sig,
	}, true)
	resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(domain.RoleOperationalSigner, s.locks.gotRole)
	s.Equal(sig, s.locks.gotSig)
}

func (s *RouterSuite) TestSignRejectsUnknownRole() {
	resp := s.do(http.MethodPost, "/locks/"+s.locks.lock.ID.String()+"/signatures", map[string]any{
		"role":      "intern",
		"signer":    "ops-signer-1",
		"signature": []byte{0x01},
	}, true)
	resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Empty(s.locks.gotRole)
}

func (s *RouterSuite) TestExecuteMintPassesReference() {
	record := &mintModel.MintRecord{ID: domain.NewMintRecordID(), MintReference: "mint-ref-1"}
	s.mints.record = record

	resp := s.do(http.MethodPost, "/mints/requests/"+domain.NewMintRequestID().String()+"/execute", map[string]string{
		"beneficiary":    "0xbeneficiary",
		"amount":         "100",
		"mint_reference": "mint-ref-1",
		"tx_reference":   "0xabc",
	}, true)

	s.Equal(http.StatusCreated, resp.StatusCode)
	s.Equal("mint-ref-1", s.mints.gotMintReference)

	var got mintModel.MintRecord
	s.decode(resp, &got)
	s.Equal(record.ID, got.ID)
}

func (s *RouterSuite) TestExplorerLookup() {
	entry := explorerModel.Entry{
		PublicationCode: explorerModel.NewPublicationCode(),
		LockID:          s.locks.lock.ID,
		AmountMinted:    250_000,
	}
	s.explorer.entry = entry

	resp := s.do(http.MethodGet, "/explorer/entries/"+entry.PublicationCode, nil, false)

	s.Equal(http.StatusOK, resp.StatusCode)

	var got explorerModel.Entry
	s.decode(resp, &got)
	s.Equal(entry.PublicationCode, got.PublicationCode)
	s.Equal(entry.AmountMinted, got.AmountMinted)
}

func (s *RouterSuite) TestExplorerNotFound() {
	s.explorer.err = dErrors.New(dErrors.CodeNotFound, "no entry with that publication code")

	resp := s.do(http.MethodGet, "/explorer/entries/RM-UNKNOWN", nil, false)
	resp.Body.Close()

	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestKeyRegistration() {
	resp := s.do(http.MethodPost, "/keys", map[string]any{
		"owner":        "ops-signer-1",
		"algorithm":    string(signatureModel.AlgorithmSecp256k1),
		"key_material": []byte{0x02, 0x03},
		"valid_until":  "2027-01-01T00:00:00Z",
		"label":        "ops hardware key",
	}, true)
	defer resp.Body.Close()

	s.Equal(http.StatusCreated, resp.StatusCode)
	s.Equal(signatureModel.AlgorithmSecp256k1, s.keys.gotAlgorithm)

	var body map[string]string
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Equal(s.keys.keyID.String(), body["key_id"])
}

func (s *RouterSuite) TestAdminOperations() {
	s.Run("reset breaker", func() {
		resp := s.do(http.MethodPost, "/admin/breaker/reset", map[string]string{}, true)
		resp.Body.Close()

		s.Equal(http.StatusNoContent, resp.StatusCode)
		s.Equal(1, s.admin.resets)
	})

	s.Run("update daily cap", func() {
		resp := s.do(http.MethodPut, "/admin/policy/daily-cap", map[string]string{"daily_cap": "2000000"}, true)
		resp.Body.Close()

		s.Equal(http.StatusNoContent, resp.StatusCode)
		s.Equal(domain.Amount(2_000_000*domain.MicrosPerUnit), s.admin.gotCap)
	})

	s.Run("forbidden surfaces as 403", func() {
		s.admin.err = dErrors.New(dErrors.CodeForbidden, "risk-admin role required")
		resp := s.do(http.MethodPost, "/admin/breaker/reset", map[string]string{}, true)
		resp.Body.Close()

		s.Equal(http.StatusForbidden, resp.StatusCode)
	})
}
