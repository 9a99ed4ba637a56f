// Package pool implements the per-model AMM state machine. A pool starts in
// the flat-price bootstrap phase, graduates permanently onto the bonding
// curve once its reserve crosses the configured threshold, and enforces the
// buy-only window, dynamic trade-size limits, slippage and deadline
// protection, and the pause circuit breaker on every trade.
package pool

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/modelfoundry/modelamm/internal/curve"
	"github.com/modelfoundry/modelamm/internal/fixedmath"
)

// Phase is the pricing mode of a pool.
type Phase int

const (
	// PhaseFlatPrice is the bootstrap phase with a fixed per-token price.
	PhaseFlatPrice Phase = iota
	// PhaseBondingCurve is the terminal phase; entered once and never left.
	PhaseBondingCurve
)

func (p Phase) String() string {
	switch p {
	case PhaseFlatPrice:
		return "flat_price"
	case PhaseBondingCurve:
		return "bonding_curve"
	default:
		return "unknown"
	}
}

// Pool is the mutable state machine for one model/token pair. Every public
// entry point executes to completion atomically; the host is expected to
// serialize transactions per pool, and the entry guard turns any overlap
// (in particular mint/burn callback reentry) into ErrReentrantCall instead
// of an interleaved execution.
type Pool struct {
	modelID string
	token   TokenMinter
	vault   ReserveVault
	logger  *zap.Logger

	busy atomic.Bool
	opMu sync.Mutex

	mu           sync.RWMutex
	params       Params
	reserve      *big.Int
	buyOnlyUntil time.Time
	graduated    bool
	paused       bool
	clock        func() time.Time
	tradeHook    func(TradeEvent)
}

// New creates a pool seeded with initialReserve. The buy-only window starts
// at creation time.
func New(modelID string, params Params, token TokenMinter, vault ReserveVault, initialReserve *big.Int, logger *zap.Logger) (*Pool, error) {
	if modelID == "" {
		return nil, ErrZeroAddress
	}
	if token == nil || vault == nil {
		return nil, fmt.Errorf("pool %s: token and vault capabilities are required", modelID)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if initialReserve == nil || initialReserve.Sign() <= 0 {
		return nil, fmt.Errorf("%w: initial reserve must be positive", ErrZeroAmount)
	}

	now := time.Now()
	p := &Pool{
		modelID:      modelID,
		token:        token,
		vault:        vault,
		logger:       logger.Named("pool"),
		params:       params,
		reserve:      new(big.Int).Set(initialReserve),
		buyOnlyUntil: now.Add(params.IBRDuration),
		clock:        time.Now,
	}

	p.logger.Info("Pool created",
		zap.String("model_id", modelID),
		zap.Uint32("crr_ppm", params.CrrPpm),
		zap.String("initial_reserve", initialReserve.String()),
		zap.Time("buy_only_until", p.buyOnlyUntil))

	return p, nil
}

// WithClock overrides the pool clock and restarts the buy-only window from
// the new clock's current time. Intended for deterministic tests.
func (p *Pool) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
	p.buyOnlyUntil = clock().Add(p.params.IBRDuration)
}

// begin is the single-entry guard for mutating calls. It is checked before
// the operation mutex so that a capability callback re-entering the pool
// fails fast instead of deadlocking.
func (p *Pool) begin() error {
	if p.busy.Load() {
		return ErrReentrantCall
	}
	p.opMu.Lock()
	p.busy.Store(true)
	return nil
}

func (p *Pool) end() {
	p.busy.Store(false)
	p.opMu.Unlock()
}

// ModelID returns the model this pool prices.
func (p *Pool) ModelID() string { return p.modelID }

// ReserveBalance returns the tracked trading reserve.
func (p *Pool) ReserveBalance() *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.reserve)
}

// Phase returns the current pricing phase.
func (p *Pool) Phase() Phase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.graduated {
		return PhaseBondingCurve
	}
	return PhaseFlatPrice
}

// HasGraduated reports whether the pool has permanently left flat pricing.
func (p *Pool) HasGraduated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.graduated
}

// IsPaused reports whether the circuit breaker is engaged.
func (p *Pool) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// IsSellEnabled reports whether sells are currently accepted. Sells are
// rejected while the buy-only window is active, regardless of phase.
func (p *Pool) IsSellEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.clock().Before(p.buyOnlyUntil)
}

// Params returns a copy of the current curve parameters.
func (p *Pool) Params() Params {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.params
}

// SpotPrice returns the instantaneous price implied by reserve, supply and
// reserve ratio. During the flat-price phase this is the configured flat
// price. Always available, including while paused.
func (p *Pool) SpotPrice() *big.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.graduated {
		return new(big.Int).Set(p.params.FlatCurvePrice)
	}
	return curve.CalculateSpotPrice(p.token.TotalSupply(), p.reserve, p.params.CrrPpm)
}

// GetBuyQuote returns the tokens a deposit of amountIn would mint right now,
// net of the trade fee. Read-only.
func (p *Pool) GetBuyQuote(amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	net := new(big.Int).Sub(amountIn, bpsShare(amountIn, p.params.TradeFeeBps))
	return p.quoteBuyLocked(net)
}

// GetSellQuote returns the reserve a sale of tokensIn would pay out right
// now, net of the trade fee. Read-only.
func (p *Pool) GetSellQuote(tokensIn *big.Int) (*big.Int, error) {
	if tokensIn == nil || tokensIn.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	gross, err := p.quoteSellLocked(tokensIn)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(gross, bpsShare(gross, p.params.TradeFeeBps)), nil
}

// Buy deposits amountIn of the reserve asset and mints the purchased tokens
// to recipient. The trade fee is routed to the treasury; the remainder joins
// the trading reserve. Fails with ErrSlippageExceeded when the output falls
// below minTokensOut.
func (p *Pool) Buy(buyer string, amountIn, minTokensOut *big.Int, recipient string, deadline time.Time) (*big.Int, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer p.end()

	if err := p.checkTradeEntry(buyer, amountIn, recipient, deadline); err != nil {
		return nil, err
	}

	p.mu.RLock()
	params := p.params
	reserve := new(big.Int).Set(p.reserve)
	p.mu.RUnlock()

	if amountIn.Cmp(bpsShare(reserve, params.MaxTradeBps)) > 0 {
		return nil, fmt.Errorf("%w: deposit %s exceeds %d bps of reserve %s",
			ErrTradeTooLarge, amountIn, params.MaxTradeBps, reserve)
	}

	fee := bpsShare(amountIn, params.TradeFeeBps)
	net := new(big.Int).Sub(amountIn, fee)

	p.mu.RLock()
	tokensOut, err := p.quoteBuyLocked(net)
	p.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if tokensOut.Sign() == 0 {
		return nil, fmt.Errorf("%w: deposit prices to zero tokens", ErrZeroAmount)
	}
	if minTokensOut != nil && tokensOut.Cmp(minTokensOut) < 0 {
		return nil, fmt.Errorf("%w: got %s, want at least %s", ErrSlippageExceeded, tokensOut, minTokensOut)
	}

	if err := p.vault.Deposit(buyer, amountIn); err != nil {
		return nil, fmt.Errorf("failed to pull reserve deposit: %w", err)
	}
	if fee.Sign() > 0 {
		if err := p.vault.PayTreasury(fee); err != nil {
			return nil, fmt.Errorf("failed to route trade fee: %w", err)
		}
	}
	if err := p.token.Mint(recipient, tokensOut); err != nil {
		return nil, fmt.Errorf("failed to mint tokens: %w", err)
	}

	p.mu.Lock()
	p.reserve.Add(p.reserve, net)
	p.maybeGraduateLocked()
	reserveAfter := p.reserve.String()
	p.mu.Unlock()

	p.logger.Info("Buy executed",
		zap.String("model_id", p.modelID),
		zap.String("buyer", buyer),
		zap.String("amount_in", amountIn.String()),
		zap.String("fee", fee.String()),
		zap.String("tokens_out", tokensOut.String()),
		zap.String("reserve", reserveAfter))

	p.notifyTrade(TradeEvent{
		ModelID:   p.modelID,
		Side:      TradeSideBuy,
		Account:   buyer,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: new(big.Int).Set(tokensOut),
		Fee:       new(big.Int).Set(fee),
	})

	return tokensOut, nil
}

// Sell burns tokensIn from seller and pays out the quoted reserve, net of
// the trade fee, to recipient. Rejected while the buy-only window is active.
func (p *Pool) Sell(seller string, tokensIn, minReserveOut *big.Int, recipient string, deadline time.Time) (*big.Int, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer p.end()

	if err := p.checkTradeEntry(seller, tokensIn, recipient, deadline); err != nil {
		return nil, err
	}

	p.mu.RLock()
	params := p.params
	reserve := new(big.Int).Set(p.reserve)
	sellEnabled := !p.clock().Before(p.buyOnlyUntil)
	p.mu.RUnlock()

	if !sellEnabled {
		return nil, ErrSellDisabled
	}
	if tokensIn.Cmp(p.token.BalanceOf(seller)) > 0 {
		return nil, ErrInsufficientBalance
	}

	p.mu.RLock()
	gross, err := p.quoteSellLocked(tokensIn)
	p.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if gross.Sign() == 0 {
		return nil, fmt.Errorf("%w: sale prices to zero reserve", ErrZeroAmount)
	}
	if gross.Cmp(reserve) > 0 {
		return nil, ErrInsufficientReserve
	}
	if gross.Cmp(bpsShare(reserve, params.MaxTradeBps)) > 0 {
		return nil, fmt.Errorf("%w: payout %s exceeds %d bps of reserve %s",
			ErrTradeTooLarge, gross, params.MaxTradeBps, reserve)
	}

	fee := bpsShare(gross, params.TradeFeeBps)
	net := new(big.Int).Sub(gross, fee)
	if minReserveOut != nil && net.Cmp(minReserveOut) < 0 {
		return nil, fmt.Errorf("%w: got %s, want at least %s", ErrSlippageExceeded, net, minReserveOut)
	}

	if err := p.token.Burn(seller, tokensIn); err != nil {
		return nil, fmt.Errorf("failed to burn tokens: %w", err)
	}
	if err := p.vault.Withdraw(recipient, net); err != nil {
		return nil, fmt.Errorf("failed to pay out reserve: %w", err)
	}
	if fee.Sign() > 0 {
		if err := p.vault.PayTreasury(fee); err != nil {
			return nil, fmt.Errorf("failed to route trade fee: %w", err)
		}
	}

	p.mu.Lock()
	p.reserve.Sub(p.reserve, gross)
	reserveAfter := p.reserve.String()
	p.mu.Unlock()

	p.logger.Info("Sell executed",
		zap.String("model_id", p.modelID),
		zap.String("seller", seller),
		zap.String("tokens_in", tokensIn.String()),
		zap.String("fee", fee.String()),
		zap.String("reserve_out", net.String()),
		zap.String("reserve", reserveAfter))

	p.notifyTrade(TradeEvent{
		ModelID:   p.modelID,
		Side:      TradeSideSell,
		Account:   seller,
		AmountIn:  new(big.Int).Set(tokensIn),
		AmountOut: new(big.Int).Set(net),
		Fee:       new(big.Int).Set(fee),
	})

	return net, nil
}

// DepositFees adds protocol profit directly to the trading reserve with no
// trade fee. This is the one state-mutating call exempt from the pause gate:
// revenue keeps flowing into liquidity even while trading is halted.
func (p *Pool) DepositFees(amount *big.Int) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	p.mu.Lock()
	p.reserve.Add(p.reserve, amount)
	p.maybeGraduateLocked()
	reserveAfter := p.reserve.String()
	p.mu.Unlock()

	p.logger.Debug("Fees deposited into reserve",
		zap.String("model_id", p.modelID),
		zap.String("amount", amount.String()),
		zap.String("reserve", reserveAfter))
	return nil
}

// SetParameters updates the reserve ratio and trade fee, bounds-checked.
func (p *Pool) SetParameters(crrPpm, tradeFeeBps uint32) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return ErrPaused
	}

	next := p.params
	next.CrrPpm = crrPpm
	next.TradeFeeBps = tradeFeeBps
	if err := next.Validate(); err != nil {
		return err
	}
	p.params = next

	p.logger.Info("Pool parameters updated",
		zap.String("model_id", p.modelID),
		zap.Uint32("crr_ppm", crrPpm),
		zap.Uint32("trade_fee_bps", tradeFeeBps))
	return nil
}

// SetMaxTradeBps updates the trade-size cap, bounds-checked.
func (p *Pool) SetMaxTradeBps(bps uint32) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return ErrPaused
	}

	next := p.params
	next.MaxTradeBps = bps
	if err := next.Validate(); err != nil {
		return err
	}
	p.params = next

	p.logger.Info("Max trade size updated",
		zap.String("model_id", p.modelID),
		zap.Uint32("max_trade_bps", bps))
	return nil
}

// Pause engages the circuit breaker. Fails if already paused.
func (p *Pool) Pause() error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return ErrAlreadyPaused
	}
	p.paused = true
	p.logger.Warn("Pool paused", zap.String("model_id", p.modelID))
	return nil
}

// Unpause releases the circuit breaker. Fails if not paused.
func (p *Pool) Unpause() error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return ErrNotPaused
	}
	p.paused = false
	p.logger.Info("Pool unpaused", zap.String("model_id", p.modelID))
	return nil
}

// checkTradeEntry applies the shared fail-fast preconditions for trades.
func (p *Pool) checkTradeEntry(caller string, amount *big.Int, recipient string, deadline time.Time) error {
	p.mu.RLock()
	paused := p.paused
	now := p.clock()
	p.mu.RUnlock()

	if paused {
		return ErrPaused
	}
	if caller == "" || recipient == "" {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if now.After(deadline) {
		return ErrDeadlineExpired
	}
	return nil
}

// quoteBuyLocked computes tokensOut for a net deposit under the current
// phase. Callers hold at least the read lock.
func (p *Pool) quoteBuyLocked(net *big.Int) (*big.Int, error) {
	if !p.graduated {
		return fixedmath.Div(net, p.params.FlatCurvePrice), nil
	}
	return curve.CalculateBuy(p.token.TotalSupply(), p.reserve, net, p.params.CrrPpm)
}

// quoteSellLocked computes the gross reserve released for tokensIn under the
// current phase. Callers hold at least the read lock.
func (p *Pool) quoteSellLocked(tokensIn *big.Int) (*big.Int, error) {
	if !p.graduated {
		return fixedmath.Mul(tokensIn, p.params.FlatCurvePrice), nil
	}
	return curve.CalculateSell(p.token.TotalSupply(), p.reserve, tokensIn, p.params.CrrPpm)
}

// maybeGraduateLocked flips the sticky graduation flag once the reserve
// crosses the flat-curve threshold. Never flips back. Graduation also waits
// for the first mint: a zero-supply pool has no curve price, so graduating
// it would make every future buy quote to zero and lock the pool shut.
func (p *Pool) maybeGraduateLocked() {
	if p.graduated || p.reserve.Cmp(p.params.FlatCurveThreshold) < 0 {
		return
	}
	if p.token.TotalSupply().Sign() == 0 {
		return
	}
	p.graduated = true
	p.logger.Info("Pool graduated to bonding curve",
		zap.String("model_id", p.modelID),
		zap.String("reserve", p.reserve.String()),
		zap.String("threshold", p.params.FlatCurveThreshold.String()))
}

// bpsShare returns amount * bps / 10000, truncating.
func bpsShare(amount *big.Int, bps uint32) *big.Int {
	share := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return share.Quo(share, big.NewInt(BpsDenominator))
}
