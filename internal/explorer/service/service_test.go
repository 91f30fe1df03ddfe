package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservemint/internal/explorer/models"
	"reservemint/internal/explorer/store"
	lockmodels "reservemint/internal/lock/models"
	lockstore "reservemint/internal/lock/store"
	"reservemint/pkg/domain"
	dErrors "reservemint/pkg/domain-errors"
)

func testEntry(lockID domain.LockID, amount domain.Amount, mintedAt time.Time) models.Entry {
	return models.Entry{
		PublicationCode:       models.NewPublicationCode(),
		MintRecordID:          domain.NewMintRecordID(),
		LockID:                lockID,
		InjectionID:           domain.NewInjectionID(),
		ConsumptionID:         domain.NewConsumptionID(),
		Beneficiary:           "treasury-wallet",
		AmountMinted:          amount,
		TxReference:           "tx-1",
		SignatureDigestTriple: "digest",
		MintedAt:              mintedAt,
	}
}

func TestNewPublicationCode(t *testing.T) {
	code := models.NewPublicationCode()
	assert.True(t, strings.HasPrefix(code, "RM-"))
	assert.NotEqual(t, code, models.NewPublicationCode())
	// Base32 keeps codes case-normalized and free of lookalike symbols.
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestExplorerQueries(t *testing.T) {
	ctx := context.Background()
	explorer := NewExplorer(store.NewInMemory(), lockstore.NewInMemory())

	lockID := domain.NewLockID()
	first := testEntry(lockID, 400_000_000_000, time.Now().Add(-time.Minute))
	second := testEntry(lockID, 600_000_000_000, time.Now())
	require.NoError(t, explorer.Append(ctx, first))
	require.NoError(t, explorer.Append(ctx, second))

	t.Run("lookup by publication code", func(t *testing.T) {
		entry, err := explorer.GetEntryByPublicationCode(ctx, first.PublicationCode)
		require.NoError(t, err)
		assert.Equal(t, first.MintRecordID, entry.MintRecordID)

		_, err = explorer.GetEntryByPublicationCode(ctx, "RM-NOPE")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("entries by lock in mint order", func(t *testing.T) {
		entries, err := explorer.GetEntriesByLock(ctx, lockID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, first.PublicationCode, entries[0].PublicationCode)
	})

	t.Run("recent newest first", func(t *testing.T) {
		entries, err := explorer.GetRecentEntries(ctx, 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, second.PublicationCode, entries[0].PublicationCode)
	})

	t.Run("duplicate publication code is refused", func(t *testing.T) {
		err := explorer.Append(ctx, first)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestStatisticsCountsOnlyReservedLocks(t *testing.T) {
	ctx := context.Background()
	locks := lockstore.NewInMemory()
	explorer := NewExplorer(store.NewInMemory(), locks)

	reserved, err := lockmodels.NewLock(domain.NewLockID(), domain.NewInjectionID(), "AUTH-1", 1_000_000, "b", time.Now(), time.Hour)
	require.NoError(t, err)
	reserved.ApplyReserve(time.Now())
	require.NoError(t, locks.Create(ctx, reserved))

	pending, err := lockmodels.NewLock(domain.NewLockID(), domain.NewInjectionID(), "AUTH-2", 2_000_000, "b", time.Now(), time.Hour)
	require.NoError(t, err)
	require.NoError(t, locks.Create(ctx, pending))

	stats, err := explorer.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(1_000_000), stats.TotalLocked)
	assert.Equal(t, domain.Amount(1_000_000), stats.TotalAvailable)
	assert.True(t, stats.TotalConsumed.IsZero())
	assert.Equal(t, 2, stats.LockCount)
}
