package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
)

func newTestLock(t *testing.T) *Lock {
	t.Helper()
	amount, err := domain.ParseAmount("1000000")
	require.NoError(t, err)
	lock, err := NewLock(domain.NewLockID(), domain.NewInjectionID(), "AUTH-2026-0001", amount, "beneficiary@treasury", time.Now(), 72*time.Hour)
	require.NoError(t, err)
	return lock
}

func signAll(l *Lock, now time.Time) {
	l.ApplySignature(domain.RoleOperationalSigner, "ops", "hash-1", now)
	l.ApplySignature(domain.RoleCustodialSigner, "bank", "hash-2", now)
	l.ApplySignature(domain.RoleProtocolSigner, "proto", "hash-3", now)
}

func TestLockQuorum(t *testing.T) {
	t.Run("advances to accepted only on the third distinct role", func(t *testing.T) {
		l := newTestLock(t)
		now := time.Now()

		l.ApplySignature(domain.RoleProtocolSigner, "proto", "h3", now)
		assert.Equal(t, StatusReceived, l.Status)

		l.ApplySignature(domain.RoleOperationalSigner, "ops", "h1", now)
		assert.Equal(t, StatusReceived, l.Status)

		l.ApplySignature(domain.RoleCustodialSigner, "bank", "h2", now)
		assert.Equal(t, StatusAccepted, l.Status)
	})

	t.Run("slot reuse is rejected", func(t *testing.T) {
		l := newTestLock(t)
		now := time.Now()
		l.ApplySignature(domain.RoleOperationalSigner, "ops", "h1", now)

		err := l.CanSign(domain.RoleOperationalSigner, "other-ops", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeSlotAlreadyFilled))
	})

	t.Run("one signer cannot fill two slots", func(t *testing.T) {
		l := newTestLock(t)
		now := time.Now()
		l.ApplySignature(domain.RoleOperationalSigner, "sybil", "h1", now)

		err := l.CanSign(domain.RoleCustodialSigner, "sybil", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorizedSigner))
	})

	t.Run("expired lock refuses signatures", func(t *testing.T) {
		l := newTestLock(t)
		err := l.CanSign(domain.RoleOperationalSigner, "ops", l.ExpiresAt.Add(time.Minute))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestLockConsumption(t *testing.T) {
	amountOf := func(raw string) domain.Amount {
		a, err := domain.ParseAmount(raw)
		require.NoError(t, err)
		return a
	}

	t.Run("conservation holds across partial consumptions", func(t *testing.T) {
		l := newTestLock(t)
		now := time.Now()
		signAll(l, now)
		l.ApplyReserve(now)

		require.NoError(t, l.CanConsume(amountOf("400000"), "MINT-1"))
		l.ApplyConsumption(domain.NewConsumptionID(), amountOf("400000"), "MINT-1", "", now)

		assert.Equal(t, StatusPartiallyConsumed, l.Status)
		assert.Equal(t, amountOf("400000"), l.ConsumedAmount)
		assert.Equal(t, amountOf("600000"), l.AvailableAmount())
		assert.Equal(t, l.TotalAmount, l.ConsumedAmount+l.AvailableAmount())

		require.NoError(t, l.CanConsume(amountOf("600000"), "MINT-2"))
		l.ApplyConsumption(domain.NewConsumptionID(), amountOf("600000"), "MINT-2", "", now)

		assert.Equal(t, StatusFullyConsumed, l.Status)
		assert.True(t, l.AvailableAmount().IsZero())
	})

	t.Run("minting before reserve fails with lock_not_reserved", func(t *testing.T) {
		l := newTestLock(t)
		err := l.CanConsume(amountOf("1"), "MINT-X")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeLockNotReserved))

		signAll(l, time.Now())
		err = l.CanConsume(amountOf("1"), "MINT-X")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeLockNotReserved))
	})

	t.Run("replayed mint reference is rejected without state change", func(t *testing.T) {
		l := newTestLock(t)
		now := time.Now()
		signAll(l, now)
		l.ApplyReserve(now)
		l.ApplyConsumption(domain.NewConsumptionID(), amountOf("400000"), "MINT-1", "", now)

		err := l.CanConsume(amountOf("100000"), "MINT-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateConsumption))
		assert.Equal(t, amountOf("400000"), l.ConsumedAmount)
	})

	t.Run("over-consumption is rejected", func(t *testing.T) {
		l := newTestLock(t)
		now := time.Now()
		signAll(l, now)
		l.ApplyReserve(now)

		err := l.CanConsume(amountOf("1000000.000001"), "MINT-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidAmount))
	})

	t.Run("approved tranche caps the next consumption", func(t *testing.T) {
		l := newTestLock(t)
		now := time.Now()
		signAll(l, now)
		l.ApplyReserve(now)

		require.NoError(t, l.CanApproveTranche(amountOf("250000")))
		l.ApplyTrancheApproval(amountOf("250000"), now)

		err := l.CanConsume(amountOf("250001"), "MINT-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidAmount))

		require.NoError(t, l.CanConsume(amountOf("250000"), "MINT-1"))
		l.ApplyConsumption(domain.NewConsumptionID(), amountOf("250000"), "MINT-1", "", now)

		// Tranche cap clears after consumption.
		require.NoError(t, l.CanConsume(amountOf("750000"), "MINT-2"))
	})
}

func TestLockRejection(t *testing.T) {
	t.Run("rejectable only before reserve", func(t *testing.T) {
		l := newTestLock(t)
		require.NoError(t, l.CanReject())

		signAll(l, time.Now())
		require.NoError(t, l.CanReject())

		l.ApplyReserve(time.Now())
		err := l.CanReject()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("rejection is terminal", func(t *testing.T) {
		l := newTestLock(t)
		l.ApplyRejection("compliance hold", time.Now())
		assert.Equal(t, StatusRejected, l.Status)

		err := l.CanSign(domain.RoleOperationalSigner, "ops", time.Now())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestSigningMessageHash(t *testing.T) {
	l := newTestLock(t)

	t.Run("deterministic for the same lock", func(t *testing.T) {
		assert.Equal(t, l.SigningMessageHash(), l.SigningMessageHash())
	})

	t.Run("differs across locks", func(t *testing.T) {
		other := newTestLock(t)
		assert.NotEqual(t, l.SigningMessageHash(), other.SigningMessageHash())
	})
}
