// Package ledger provides in-process implementations of the capability
// interfaces a pool consumes: a mintable/burnable token ledger and a
// reserve-asset vault with a separately accounted treasury. External
// registries and custody stay outside the engine; these ledgers are the
// bookkeeping the service runs on.
package ledger

import (
	"errors"
	"math/big"
	"sync"
)

var (
	// ErrInsufficientFunds is returned when a transfer or burn exceeds the
	// available balance.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrInvalidAmount rejects nil, zero or negative amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrEmptyAccount rejects empty account identifiers.
	ErrEmptyAccount = errors.New("ledger: empty account")
)

// Token is an in-memory mintable/burnable token ledger.
type Token struct {
	mu       sync.RWMutex
	symbol   string
	supply   *big.Int
	balances map[string]*big.Int
}

// NewToken creates an empty token ledger.
func NewToken(symbol string) *Token {
	return &Token{
		symbol:   symbol,
		supply:   new(big.Int),
		balances: make(map[string]*big.Int),
	}
}

// Symbol returns the token symbol.
func (t *Token) Symbol() string { return t.symbol }

// TotalSupply returns the current total supply.
func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.supply)
}

// BalanceOf returns the balance of owner, zero for unknown accounts.
func (t *Token) BalanceOf(owner string) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := t.balances[owner]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Mint creates amount new tokens for recipient.
func (t *Token) Mint(recipient string, amount *big.Int) error {
	if recipient == "" {
		return ErrEmptyAccount
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.supply.Add(t.supply, amount)
	t.credit(recipient, amount)
	return nil
}

// Burn destroys amount tokens held by owner.
func (t *Token) Burn(owner string, amount *big.Int) error {
	if owner == "" {
		return ErrEmptyAccount
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.balances[owner]
	if !ok || b.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	b.Sub(b, amount)
	t.supply.Sub(t.supply, amount)
	return nil
}

func (t *Token) credit(account string, amount *big.Int) {
	if b, ok := t.balances[account]; ok {
		b.Add(b, amount)
		return
	}
	t.balances[account] = new(big.Int).Set(amount)
}

// Vault is an in-memory reserve-asset vault. The vault balance holds trading
// liquidity; the treasury balance accumulates trade fees and is accounted
// separately even though both are physically held by the same vault.
type Vault struct {
	mu       sync.RWMutex
	held     *big.Int
	treasury *big.Int
}

// NewVault creates a vault seeded with an initial held balance.
func NewVault(initial *big.Int) *Vault {
	v := &Vault{held: new(big.Int), treasury: new(big.Int)}
	if initial != nil && initial.Sign() > 0 {
		v.held.Set(initial)
	}
	return v
}

// Held returns the reserve-asset balance held for trading.
func (v *Vault) Held() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.held)
}

// TreasuryBalance returns the accumulated fee balance.
func (v *Vault) TreasuryBalance() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.treasury)
}

// Deposit pulls amount from payer into the vault.
func (v *Vault) Deposit(payer string, amount *big.Int) error {
	if payer == "" {
		return ErrEmptyAccount
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.held.Add(v.held, amount)
	return nil
}

// Withdraw pays amount out of the vault to recipient.
func (v *Vault) Withdraw(recipient string, amount *big.Int) error {
	if recipient == "" {
		return ErrEmptyAccount
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.held.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	v.held.Sub(v.held, amount)
	return nil
}

// PayTreasury moves amount from the held balance into the treasury.
func (v *Vault) PayTreasury(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.held.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	v.held.Sub(v.held, amount)
	v.treasury.Add(v.treasury, amount)
	return nil
}

// WithdrawTreasury pays accumulated fees out of the treasury. Available even
// while a pool is paused; treasury funds are not trading liquidity.
func (v *Vault) WithdrawTreasury(recipient string, amount *big.Int) error {
	if recipient == "" {
		return ErrEmptyAccount
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.treasury.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	v.treasury.Sub(v.treasury, amount)
	return nil
}
