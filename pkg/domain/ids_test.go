package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "reservemint/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// IDs must be valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseLockID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseLockID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseAccountID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseInjectionID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, InjectionID(valid), id)
	})
}

// TestTypeDistinction verifies the compiler enforces ID type safety.
// If this compiles, cross-type assignment between ledger IDs is impossible.
func TestTypeDistinction(t *testing.T) {
	lockID := LockID(uuid.New())
	injectionID := InjectionID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ LockID = injectionID      // compile error
	// var _ InjectionID = lockID      // compile error

	assert.NotEqual(t, uuid.UUID(lockID), uuid.UUID(injectionID))
}

func TestSignerRole(t *testing.T) {
	t.Run("accepts the three quorum roles", func(t *testing.T) {
		for _, raw := range []string{"operational-signer", "custodial-signer", "protocol-signer"} {
			role, err := ParseSignerRole(raw)
			require.NoError(t, err)
			assert.True(t, role.Valid())
		}
	})

	t.Run("rejects unknown roles", func(t *testing.T) {
		_, err := ParseSignerRole("treasury-signer")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
