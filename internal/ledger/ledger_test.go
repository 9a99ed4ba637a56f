package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenMintAndBurn(t *testing.T) {
	token := NewToken("MODEL")
	assert.Equal(t, "MODEL", token.Symbol())
	assert.Equal(t, 0, token.TotalSupply().Sign())

	require.NoError(t, token.Mint("alice", big.NewInt(100)))
	require.NoError(t, token.Mint("bob", big.NewInt(50)))
	assert.Equal(t, int64(150), token.TotalSupply().Int64())
	assert.Equal(t, int64(100), token.BalanceOf("alice").Int64())
	assert.Equal(t, 0, token.BalanceOf("nobody").Sign())

	require.NoError(t, token.Burn("alice", big.NewInt(40)))
	assert.Equal(t, int64(60), token.BalanceOf("alice").Int64())
	assert.Equal(t, int64(110), token.TotalSupply().Int64())
}

func TestTokenRejectsInvalidInput(t *testing.T) {
	token := NewToken("MODEL")

	assert.ErrorIs(t, token.Mint("", big.NewInt(1)), ErrEmptyAccount)
	assert.ErrorIs(t, token.Mint("alice", nil), ErrInvalidAmount)
	assert.ErrorIs(t, token.Mint("alice", big.NewInt(0)), ErrInvalidAmount)
	assert.ErrorIs(t, token.Mint("alice", big.NewInt(-5)), ErrInvalidAmount)

	assert.ErrorIs(t, token.Burn("alice", big.NewInt(1)), ErrInsufficientFunds)
	require.NoError(t, token.Mint("alice", big.NewInt(10)))
	assert.ErrorIs(t, token.Burn("alice", big.NewInt(11)), ErrInsufficientFunds)
}

func TestTokenBalancesAreCopies(t *testing.T) {
	token := NewToken("MODEL")
	require.NoError(t, token.Mint("alice", big.NewInt(10)))

	b := token.BalanceOf("alice")
	b.SetInt64(999)
	assert.Equal(t, int64(10), token.BalanceOf("alice").Int64())

	s := token.TotalSupply()
	s.SetInt64(999)
	assert.Equal(t, int64(10), token.TotalSupply().Int64())
}

func TestVaultDepositWithdraw(t *testing.T) {
	vault := NewVault(big.NewInt(100))
	assert.Equal(t, int64(100), vault.Held().Int64())

	require.NoError(t, vault.Deposit("alice", big.NewInt(50)))
	assert.Equal(t, int64(150), vault.Held().Int64())

	require.NoError(t, vault.Withdraw("bob", big.NewInt(120)))
	assert.Equal(t, int64(30), vault.Held().Int64())

	assert.ErrorIs(t, vault.Withdraw("bob", big.NewInt(31)), ErrInsufficientFunds)
	assert.ErrorIs(t, vault.Deposit("", big.NewInt(1)), ErrEmptyAccount)
	assert.ErrorIs(t, vault.Withdraw("bob", big.NewInt(0)), ErrInvalidAmount)
}

func TestVaultTreasuryAccounting(t *testing.T) {
	vault := NewVault(big.NewInt(100))

	require.NoError(t, vault.PayTreasury(big.NewInt(10)))
	assert.Equal(t, int64(90), vault.Held().Int64())
	assert.Equal(t, int64(10), vault.TreasuryBalance().Int64())

	// Treasury funds are not trading liquidity.
	assert.ErrorIs(t, vault.Withdraw("bob", big.NewInt(91)), ErrInsufficientFunds)

	require.NoError(t, vault.WithdrawTreasury("ops", big.NewInt(4)))
	assert.Equal(t, int64(6), vault.TreasuryBalance().Int64())
	assert.ErrorIs(t, vault.WithdrawTreasury("ops", big.NewInt(7)), ErrInsufficientFunds)

	assert.ErrorIs(t, vault.PayTreasury(big.NewInt(1000)), ErrInsufficientFunds)
}

func TestVaultNilInitialBalance(t *testing.T) {
	vault := NewVault(nil)
	assert.Equal(t, 0, vault.Held().Sign())
	assert.Equal(t, 0, vault.TreasuryBalance().Sign())
}
