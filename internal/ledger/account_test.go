package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func seedMovements(t *testing.T, amounts ...string) []Movement {
	t.Helper()
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	movs := make([]Movement, len(amounts))
	for i, raw := range amounts {
		movs[i] = Movement{Amount: dec(t, raw), OccurredAt: base.Add(time.Duration(i) * 24 * time.Hour)}
	}
	return movs
}

func TestShortIDDerivation(t *testing.T) {
	cases := map[string]string{
		"Jessica Davis":         "jd",
		"Jonas Schmedtmann":     "js",
		"  Ada   Lovelace  ":    "al",
		"Jean-Luc Picard":       "jp",
		"Grace Brewster Hopper": "gbh",
		"solo":                  "s",
	}
	for owner, want := range cases {
		acc, err := NewAccount(owner, 1234, dec(t, "1.2"), "EUR", "en-US", nil)
		require.NoError(t, err)
		assert.Equal(t, want, acc.ShortID(), "owner %q", owner)
	}
}

func TestNewAccountValidation(t *testing.T) {
	rate := dec(t, "1.2")

	_, err := NewAccount("   ", 1111, rate, "EUR", "pt-PT", nil)
	assert.Error(t, err)

	_, err = NewAccount("Jessica Davis", -1, rate, "USD", "en-US", nil)
	assert.Error(t, err)

	_, err = NewAccount("Jessica Davis", 2222, dec(t, "-0.5"), "USD", "en-US", nil)
	assert.Error(t, err)
}

func TestSeedMovementsGetIdentifiers(t *testing.T) {
	acc, err := NewAccount("Jessica Davis", 2222, dec(t, "1.5"), "USD", "en-US",
		seedMovements(t, "5000", "-150"))
	require.NoError(t, err)

	for _, m := range acc.Movements() {
		assert.NotEmpty(t, m.ID)
	}
}

func TestAmountsAndDatesStayAligned(t *testing.T) {
	acc, err := NewAccount("Jessica Davis", 2222, dec(t, "1.5"), "USD", "en-US",
		seedMovements(t, "5000", "3400", "-150"))
	require.NoError(t, err)

	amounts := acc.Amounts()
	dates := acc.Dates()
	require.Equal(t, len(amounts), len(dates))
	for i, m := range acc.Movements() {
		assert.True(t, amounts[i].Equal(m.Amount))
		assert.Equal(t, dates[i], m.OccurredAt)
	}
}

func TestMovementsSortedLeavesStorageOrder(t *testing.T) {
	acc, err := NewAccount("Jessica Davis", 2222, dec(t, "1.5"), "USD", "en-US",
		seedMovements(t, "5000", "-150", "3400"))
	require.NoError(t, err)

	sorted := acc.MovementsSorted()
	require.Len(t, sorted, 3)
	assert.True(t, sorted[0].Amount.Equal(dec(t, "-150")))
	assert.True(t, sorted[1].Amount.Equal(dec(t, "3400")))
	assert.True(t, sorted[2].Amount.Equal(dec(t, "5000")))

	// storage order untouched
	amounts := acc.Amounts()
	assert.True(t, amounts[0].Equal(dec(t, "5000")))
	assert.True(t, amounts[1].Equal(dec(t, "-150")))
	assert.True(t, amounts[2].Equal(dec(t, "3400")))
}

func TestFirstName(t *testing.T) {
	acc, err := NewAccount("Jonas Schmedtmann", 1111, dec(t, "1.2"), "EUR", "pt-PT", nil)
	require.NoError(t, err)
	assert.Equal(t, "Jonas", acc.FirstName())
}
