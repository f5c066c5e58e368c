package domain

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccountNumber(t *testing.T) {
	pattern := regexp.MustCompile(`^ACC[0-9A-F]{16}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		n := NewAccountNumber()
		require.Regexp(t, pattern, n)
		seen[n] = struct{}{}
	}
	assert.Len(t, seen, 1000)
}

func TestNewAccount_Defaults(t *testing.T) {
	clientID := uuid.New()
	acc, err := NewAccount(clientID, "", "", "", time.Now())
	require.NoError(t, err)

	assert.Equal(t, clientID, acc.ClientID)
	assert.Equal(t, DefaultAccountType, acc.Type)
	assert.Equal(t, DefaultCurrency, acc.Currency)
	assert.True(t, acc.Balance.IsZero())
	assert.Regexp(t, `^ACC[0-9A-F]{16}$`, acc.Number)
}

func TestNewAccount_Currency(t *testing.T) {
	acc, err := NewAccount(uuid.New(), "savings", "eur", "ACC-CUSTOM", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "EUR", acc.Currency)
	assert.Equal(t, "ACC-CUSTOM", acc.Number)
	assert.Equal(t, "savings", acc.Type)

	_, err = NewAccount(uuid.New(), "savings", "EURO", "", time.Now())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("  Ada  ", " Ada@Example.COM ", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Ada", c.Name)
	assert.Equal(t, "ada@example.com", c.Email)

	_, err = NewClient("", "ada@example.com", time.Now())
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewClient("Ada", "not-an-email", time.Now())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAccount_CreditDebit(t *testing.T) {
	acc := &Account{Balance: decimal.NewFromInt(100)}

	require.NoError(t, acc.Credit(decimal.RequireFromString("0.50")))
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("100.50")))

	assert.ErrorIs(t, acc.Debit(decimal.RequireFromString("100.51")), ErrInsufficientFunds)
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("100.50")))

	require.NoError(t, acc.Debit(decimal.RequireFromString("100.50")))
	assert.True(t, acc.Balance.IsZero())

	assert.ErrorIs(t, acc.Credit(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, acc.Debit(decimal.NewFromInt(-1)), ErrInvalidAmount)
}
