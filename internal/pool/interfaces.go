package pool

import "math/big"

// TokenMinter is the narrow mint/burn capability handed to a pool at
// construction. The pool is the only authorized caller; implementations must
// not call back into the pool.
type TokenMinter interface {
	TotalSupply() *big.Int
	BalanceOf(owner string) *big.Int
	Mint(recipient string, amount *big.Int) error
	Burn(owner string, amount *big.Int) error
}

// ReserveVault is the reserve-asset transfer capability. It moves the actual
// asset; the pool only tracks the trading-liquidity share of the balance.
type ReserveVault interface {
	// Deposit pulls amount of the reserve asset from payer into the vault.
	Deposit(payer string, amount *big.Int) error
	// Withdraw pays amount of the reserve asset out of the vault.
	Withdraw(recipient string, amount *big.Int) error
	// PayTreasury moves amount from the vault into the fee treasury, which
	// is accounted separately from trading liquidity.
	PayTreasury(amount *big.Int) error
}
