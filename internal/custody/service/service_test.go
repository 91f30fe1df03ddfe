package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservemint/internal/custody/store"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
)

func newLedger() *Ledger {
	return NewLedger(store.NewInMemory())
}

func amount(t *testing.T, raw string) domain.Amount {
	t.Helper()
	a, err := domain.ParseAmount(raw)
	require.NoError(t, err)
	return a
}

func TestCreateAccount(t *testing.T) {
	ledger := newLedger()
	ctx := context.Background()

	t.Run("creates an active account", func(t *testing.T) {
		account, err := ledger.CreateAccount(ctx, "Treasury", "First Partner Bank", "FPBKUS33-1000", "treasury")
		require.NoError(t, err)
		assert.True(t, account.IsActive())
		assert.True(t, account.Balance.IsZero())
	})

	t.Run("rejects a duplicate external reference", func(t *testing.T) {
		_, err := ledger.CreateAccount(ctx, "Treasury 2", "First Partner Bank", "FPBKUS33-1000", "treasury")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateAccount))
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		_, err := ledger.CreateAccount(ctx, "", "Bank", "REF-1", "owner")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestDepositAndReserve(t *testing.T) {
	ledger := newLedger()
	ctx := context.Background()

	account, err := ledger.CreateAccount(ctx, "Treasury", "Bank", "REF-2000", "treasury")
	require.NoError(t, err)

	t.Run("deposit increases balance", func(t *testing.T) {
		updated, err := ledger.RecordDeposit(ctx, account.ID, amount(t, "1000000"))
		require.NoError(t, err)
		assert.Equal(t, amount(t, "1000000"), updated.Balance)
	})

	t.Run("zero deposit is invalid", func(t *testing.T) {
		_, err := ledger.RecordDeposit(ctx, account.ID, 0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidAmount))
	})

	t.Run("reserve commits available balance", func(t *testing.T) {
		require.NoError(t, ledger.ReserveForInjection(ctx, account.ID, amount(t, "400000")))

		got, err := ledger.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, amount(t, "400000"), got.LockedBalance)
		assert.Equal(t, amount(t, "600000"), got.Available())
	})

	t.Run("over-reservation fails", func(t *testing.T) {
		err := ledger.ReserveForInjection(ctx, account.ID, amount(t, "600001"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientBalance))
	})

	t.Run("release returns value to available", func(t *testing.T) {
		require.NoError(t, ledger.ReleaseReservation(ctx, account.ID, amount(t, "400000")))

		got, err := ledger.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.True(t, got.LockedBalance.IsZero())
	})

	t.Run("release below zero is an invariant violation", func(t *testing.T) {
		err := ledger.ReleaseReservation(ctx, account.ID, amount(t, "1"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("deposit on inactive account fails", func(t *testing.T) {
		_, err := ledger.DeactivateAccount(ctx, account.ID)
		require.NoError(t, err)

		_, err = ledger.RecordDeposit(ctx, account.ID, amount(t, "1"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAccountInactive))
	})
}

// TestReservationInvariantUnderConcurrency verifies lockedBalance ≤ balance
// after concurrent reservation attempts that jointly overdraw the account.
func TestReservationInvariantUnderConcurrency(t *testing.T) {
	ledger := newLedger()
	ctx := context.Background()

	account, err := ledger.CreateAccount(ctx, "Treasury", "Bank", "REF-3000", "treasury")
	require.NoError(t, err)
	_, err = ledger.RecordDeposit(ctx, account.ID, domain.Amount(10))
	require.NoError(t, err)

	const attempts = 50
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each attempt reserves 1 micro; only 10 can succeed.
			_ = ledger.ReserveForInjection(ctx, account.ID, domain.Amount(1))
		}()
	}
	wg.Wait()

	got, err := ledger.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(10), got.LockedBalance)
	assert.LessOrEqual(t, got.LockedBalance, got.Balance)
}
