package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "reservemint/pkg/domain-errors"
)

func TestParseAmount(t *testing.T) {
	t.Run("parses whole units", func(t *testing.T) {
		a, err := ParseAmount("1000000")
		require.NoError(t, err)
		assert.Equal(t, uint64(1_000_000*MicrosPerUnit), a.Micros())
	})

	t.Run("parses fractional amounts", func(t *testing.T) {
		a, err := ParseAmount("12.5")
		require.NoError(t, err)
		assert.Equal(t, uint64(12_500_000), a.Micros())
	})

	t.Run("parses the smallest representable amount", func(t *testing.T) {
		a, err := ParseAmount("0.000001")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), a.Micros())
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		_, err := ParseAmount("-5")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidAmount))
	})

	t.Run("rejects more than six decimals", func(t *testing.T) {
		_, err := ParseAmount("1.0000001")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidAmount))
	})

	t.Run("rejects garbage", func(t *testing.T) {
		for _, raw := range []string{"", "abc", "1.2.3", "1e6"} {
			_, err := ParseAmount(raw)
			assert.Error(t, err, "input %q", raw)
		}
	})
}

func TestAmountArithmetic(t *testing.T) {
	t.Run("checked subtraction never wraps", func(t *testing.T) {
		a := Amount(100)
		_, err := a.Sub(Amount(101))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("checked addition detects overflow", func(t *testing.T) {
		a := Amount(^uint64(0))
		_, err := a.Add(Amount(1))
		require.Error(t, err)
	})

	t.Run("round trips through String", func(t *testing.T) {
		for _, raw := range []string{"1000000", "12.5", "0.000001", "0"} {
			a, err := ParseAmount(raw)
			require.NoError(t, err)
			assert.Equal(t, raw, a.String())
		}
	})
}
