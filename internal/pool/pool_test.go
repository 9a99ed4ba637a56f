package pool

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modelfoundry/modelamm/internal/fixedmath"
	"github.com/modelfoundry/modelamm/internal/ledger"
)

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fixedmath.One)
}

// fakeClock is a settable clock for deterministic deadline and IBR tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testParams() Params {
	return Params{
		CrrPpm:             200_000, // 20%
		TradeFeeBps:        100,     // 1%
		MaxTradeBps:        1_000,   // 10% of reserve per trade
		IBRDuration:        time.Hour,
		FlatCurveThreshold: units(150),
		FlatCurvePrice:     new(big.Int).Quo(fixedmath.One, big.NewInt(10)), // 0.1 per token
	}
}

type fixture struct {
	pool  *Pool
	token *ledger.Token
	vault *ledger.Vault
	clock *fakeClock
}

func newFixture(t *testing.T, params Params) *fixture {
	t.Helper()
	token := ledger.NewToken("MDL")
	vault := ledger.NewVault(units(100))
	p, err := New("model-1", params, token, vault, units(100), zap.NewNop())
	require.NoError(t, err)

	clock := newFakeClock()
	p.WithClock(clock.Now)
	return &fixture{pool: p, token: token, vault: vault, clock: clock}
}

func (f *fixture) farDeadline() time.Time {
	return f.clock.Now().Add(time.Minute)
}

func TestNewValidatesInputs(t *testing.T) {
	token := ledger.NewToken("MDL")
	vault := ledger.NewVault(nil)

	_, err := New("", testParams(), token, vault, units(100), zap.NewNop())
	assert.ErrorIs(t, err, ErrZeroAddress)

	_, err = New("model-1", testParams(), token, vault, new(big.Int), zap.NewNop())
	assert.ErrorIs(t, err, ErrZeroAmount)

	bad := testParams()
	bad.CrrPpm = 10_000
	_, err = New("model-1", bad, token, vault, units(100), zap.NewNop())
	assert.ErrorIs(t, err, ErrParamsOutOfBounds)
}

func TestBuyFlatPhase(t *testing.T) {
	f := newFixture(t, testParams())

	// 10 in, 1% fee, flat price 0.1: (10 - 0.1) / 0.1 = 99 tokens.
	out, err := f.pool.Buy("alice", units(10), units(99), "alice", f.farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 0, out.Cmp(units(99)), "tokensOut = %s", out)
	assert.Equal(t, 0, f.token.BalanceOf("alice").Cmp(units(99)))

	// Reserve grows by exactly amountIn - fee.
	wantReserve := new(big.Int).Add(units(100), new(big.Int).Sub(units(10), new(big.Int).Quo(fixedmath.One, big.NewInt(10))))
	assert.Equal(t, 0, f.pool.ReserveBalance().Cmp(wantReserve))

	// Fee landed in the treasury, separately from trading liquidity.
	assert.Equal(t, 0, f.vault.TreasuryBalance().Cmp(new(big.Int).Quo(fixedmath.One, big.NewInt(10))))
	assert.Equal(t, PhaseFlatPrice, f.pool.Phase())
}

func TestBuyPreconditions(t *testing.T) {
	f := newFixture(t, testParams())
	deadline := f.farDeadline()

	_, err := f.pool.Buy("alice", new(big.Int), nil, "alice", deadline)
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = f.pool.Buy("", units(1), nil, "alice", deadline)
	assert.ErrorIs(t, err, ErrZeroAddress)

	_, err = f.pool.Buy("alice", units(1), nil, "", deadline)
	assert.ErrorIs(t, err, ErrZeroAddress)

	_, err = f.pool.Buy("alice", units(1), nil, "alice", f.clock.Now().Add(-time.Second))
	assert.ErrorIs(t, err, ErrDeadlineExpired)

	// 10% of a 100 reserve caps single trades at 10.
	_, err = f.pool.Buy("alice", units(11), nil, "alice", deadline)
	assert.ErrorIs(t, err, ErrTradeTooLarge)
}

func TestBuySlippageProtection(t *testing.T) {
	f := newFixture(t, testParams())

	// Flat phase pays exactly 99 tokens for 10; demanding 100 must fail.
	_, err := f.pool.Buy("alice", units(10), units(100), "alice", f.farDeadline())
	assert.ErrorIs(t, err, ErrSlippageExceeded)
	assert.Equal(t, 0, f.pool.ReserveBalance().Cmp(units(100)), "failed trade must not move the reserve")
	assert.Equal(t, 0, f.token.TotalSupply().Sign(), "failed trade must not mint")
}

func TestTradeSizeLimitTracksCurrentReserve(t *testing.T) {
	params := testParams()
	params.FlatCurveThreshold = units(1000) // keep the pool in flat phase
	f := newFixture(t, params)
	deadline := f.farDeadline()

	// 15 is over the cap against a 100 reserve.
	_, err := f.pool.Buy("alice", units(15), nil, "alice", deadline)
	require.ErrorIs(t, err, ErrTradeTooLarge)

	// Grow the reserve; the same absolute size becomes admissible.
	require.NoError(t, f.pool.DepositFees(units(60)))
	_, err = f.pool.Buy("alice", units(15), nil, "alice", deadline)
	assert.NoError(t, err, "cap is evaluated against the reserve at call time")
}

func TestGraduationViaBuys(t *testing.T) {
	f := newFixture(t, testParams())
	deadline := f.farDeadline()

	require.Equal(t, PhaseFlatPrice, f.pool.Phase())

	// Pump the reserve across the 150 threshold with 10-unit buys.
	for f.pool.ReserveBalance().Cmp(units(150)) < 0 {
		_, err := f.pool.Buy("alice", units(10), nil, "alice", deadline)
		require.NoError(t, err)
	}

	assert.True(t, f.pool.HasGraduated())
	assert.Equal(t, PhaseBondingCurve, f.pool.Phase())

	// Graduation is sticky: draining the reserve below the threshold via
	// sells must not revert to flat pricing.
	f.clock.Advance(2 * time.Hour) // leave the buy-only window
	for i := 0; i < 5; i++ {
		tokens := new(big.Int).Quo(f.token.BalanceOf("alice"), big.NewInt(100))
		_, err := f.pool.Sell("alice", tokens, nil, "alice", f.farDeadline())
		require.NoError(t, err)
	}
	assert.Equal(t, -1, f.pool.ReserveBalance().Cmp(units(150)), "reserve dropped back below the threshold")
	assert.True(t, f.pool.HasGraduated(), "graduation never reverts")
	assert.Equal(t, PhaseBondingCurve, f.pool.Phase())
}

func TestGraduationViaDepositFees(t *testing.T) {
	f := newFixture(t, testParams())

	// Bootstrap supply first; fee deposits alone then carry the reserve
	// across the threshold.
	_, err := f.pool.Buy("alice", units(10), nil, "alice", f.farDeadline())
	require.NoError(t, err)
	require.False(t, f.pool.HasGraduated())

	require.NoError(t, f.pool.DepositFees(units(60)))
	assert.True(t, f.pool.HasGraduated(), "reserve crossed the threshold")
}

func TestGraduationWaitsForFirstMint(t *testing.T) {
	f := newFixture(t, testParams())

	// Revenue alone carries the reserve over the threshold, but with zero
	// supply the pool must stay on flat pricing or no buy could ever
	// succeed again.
	require.NoError(t, f.pool.DepositFees(units(60)))
	assert.False(t, f.pool.HasGraduated(), "no graduation before the first mint")
	assert.Equal(t, PhaseFlatPrice, f.pool.Phase())

	// The first buy still works at the flat price and, with supply now
	// bootstrapped and the reserve over the threshold, graduates the pool.
	out, err := f.pool.Buy("alice", units(10), nil, "alice", f.farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 0, out.Cmp(units(99)))
	assert.True(t, f.pool.HasGraduated())

	// And the pool is tradable on the curve afterwards.
	curveOut, err := f.pool.Buy("alice", units(10), nil, "alice", f.farDeadline())
	require.NoError(t, err)
	assert.True(t, curveOut.Sign() > 0)
}

func TestSellBlockedDuringBuyOnlyWindow(t *testing.T) {
	f := newFixture(t, testParams())
	deadline := f.farDeadline()

	_, err := f.pool.Buy("alice", units(10), nil, "alice", deadline)
	require.NoError(t, err)
	assert.False(t, f.pool.IsSellEnabled())

	_, err = f.pool.Sell("alice", units(10), nil, "alice", deadline)
	assert.ErrorIs(t, err, ErrSellDisabled)

	f.clock.Advance(61 * time.Minute)
	assert.True(t, f.pool.IsSellEnabled())

	_, err = f.pool.Sell("alice", units(10), nil, "alice", f.farDeadline())
	assert.NoError(t, err)
}

func TestSellPreconditions(t *testing.T) {
	f := newFixture(t, testParams())
	f.clock.Advance(2 * time.Hour)
	deadline := f.farDeadline()

	// Selling more than the caller holds.
	_, err := f.pool.Sell("alice", units(1), nil, "alice", deadline)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = f.pool.Buy("alice", units(10), nil, "alice", deadline)
	require.NoError(t, err)
	_, err = f.pool.Buy("alice", units(10), nil, "alice", deadline)
	require.NoError(t, err)

	// 150 tokens at the 0.1 flat price is a 15 payout, over 10% of the
	// ~119.8 reserve.
	_, err = f.pool.Sell("alice", units(150), nil, "alice", deadline)
	assert.ErrorIs(t, err, ErrTradeTooLarge, "payout above the reserve cap is rejected")

	_, err = f.pool.Sell("alice", units(50), units(20), "alice", deadline)
	assert.ErrorIs(t, err, ErrSlippageExceeded)
}

func TestSellReserveConservation(t *testing.T) {
	f := newFixture(t, testParams())
	f.clock.Advance(2 * time.Hour)
	deadline := f.farDeadline()

	_, err := f.pool.Buy("alice", units(10), nil, "alice", deadline)
	require.NoError(t, err)

	before := f.pool.ReserveBalance()
	net, err := f.pool.Sell("alice", units(50), nil, "alice", deadline)
	require.NoError(t, err)

	// reserve(before) - reserve(after) is the gross payout; the caller
	// receives gross - fee.
	gross := new(big.Int).Sub(before, f.pool.ReserveBalance())
	fee := new(big.Int).Mul(gross, big.NewInt(100))
	fee.Quo(fee, big.NewInt(BpsDenominator))
	assert.Equal(t, 0, net.Cmp(new(big.Int).Sub(gross, fee)))
}

func TestQuotesMatchExecution(t *testing.T) {
	f := newFixture(t, testParams())
	deadline := f.farDeadline()

	quote, err := f.pool.GetBuyQuote(units(10))
	require.NoError(t, err)

	out, err := f.pool.Buy("alice", units(10), nil, "alice", deadline)
	require.NoError(t, err)
	assert.Equal(t, 0, quote.Cmp(out), "buy quote from pre-trade state is reproducible")

	f.clock.Advance(2 * time.Hour)
	sellQuote, err := f.pool.GetSellQuote(units(40))
	require.NoError(t, err)
	paid, err := f.pool.Sell("alice", units(40), nil, "alice", f.farDeadline())
	require.NoError(t, err)
	assert.Equal(t, 0, sellQuote.Cmp(paid), "sell quote from pre-trade state is reproducible")
}

func TestPauseScenario(t *testing.T) {
	f := newFixture(t, testParams())
	deadline := f.farDeadline()

	reserveBefore := f.pool.ReserveBalance()
	priceBefore := f.pool.SpotPrice()

	require.NoError(t, f.pool.Pause())
	assert.ErrorIs(t, f.pool.Pause(), ErrAlreadyPaused)

	_, err := f.pool.Buy("alice", units(10), nil, "alice", deadline)
	assert.ErrorIs(t, err, ErrPaused)
	_, err = f.pool.Sell("alice", units(1), nil, "alice", deadline)
	assert.ErrorIs(t, err, ErrPaused)
	assert.ErrorIs(t, f.pool.SetParameters(300_000, 50), ErrPaused)

	// Reads and fee deposits keep working while paused.
	assert.Equal(t, 0, f.pool.SpotPrice().Cmp(priceBefore))
	require.NoError(t, f.pool.DepositFees(units(5)))

	require.NoError(t, f.pool.Unpause())
	assert.ErrorIs(t, f.pool.Unpause(), ErrNotPaused)

	// Pause/unpause by itself moved neither price nor reserve beyond the
	// explicit fee deposit.
	wantReserve := new(big.Int).Add(reserveBefore, units(5))
	assert.Equal(t, 0, f.pool.ReserveBalance().Cmp(wantReserve))
}

func TestSetParametersBounds(t *testing.T) {
	f := newFixture(t, testParams())

	require.NoError(t, f.pool.SetParameters(300_000, 200))
	assert.Equal(t, uint32(300_000), f.pool.Params().CrrPpm)

	assert.ErrorIs(t, f.pool.SetParameters(10_000, 200), ErrParamsOutOfBounds)
	assert.ErrorIs(t, f.pool.SetParameters(300_000, 2_000), ErrParamsOutOfBounds)

	require.NoError(t, f.pool.SetMaxTradeBps(500))
	assert.ErrorIs(t, f.pool.SetMaxTradeBps(0), ErrParamsOutOfBounds)
	assert.ErrorIs(t, f.pool.SetMaxTradeBps(10_001), ErrParamsOutOfBounds)
}

// reentrantMinter calls back into the pool from inside Mint, imitating a
// token hook trying to re-enter the state machine mid-trade.
type reentrantMinter struct {
	*ledger.Token
	pool *Pool
}

func (m *reentrantMinter) Mint(recipient string, amount *big.Int) error {
	return m.pool.DepositFees(amount)
}

func TestReentrantCallbackRejected(t *testing.T) {
	token := ledger.NewToken("MDL")
	vault := ledger.NewVault(units(100))
	minter := &reentrantMinter{Token: token}

	p, err := New("model-1", testParams(), minter, vault, units(100), zap.NewNop())
	require.NoError(t, err)
	minter.pool = p

	clock := newFakeClock()
	p.WithClock(clock.Now)

	_, err = p.Buy("alice", units(10), nil, "alice", clock.Now().Add(time.Minute))
	assert.ErrorIs(t, err, ErrReentrantCall)
	assert.Equal(t, 0, p.ReserveBalance().Cmp(units(100)), "reentrant trade must not move the reserve")
}

func TestTradeHookObservesExecutedTrades(t *testing.T) {
	f := newFixture(t, testParams())
	deadline := f.farDeadline()

	var events []TradeEvent
	f.pool.SetTradeHook(func(e TradeEvent) { events = append(events, e) })

	// Failed trades emit nothing.
	_, err := f.pool.Buy("alice", units(11), nil, "alice", deadline)
	require.ErrorIs(t, err, ErrTradeTooLarge)
	assert.Empty(t, events)

	out, err := f.pool.Buy("alice", units(10), nil, "alice", deadline)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	paid, err := f.pool.Sell("alice", units(40), nil, "alice", f.farDeadline())
	require.NoError(t, err)

	require.Len(t, events, 2)

	buy := events[0]
	assert.Equal(t, "model-1", buy.ModelID)
	assert.Equal(t, TradeSideBuy, buy.Side)
	assert.Equal(t, "alice", buy.Account)
	assert.Equal(t, 0, buy.AmountIn.Cmp(units(10)))
	assert.Equal(t, 0, buy.AmountOut.Cmp(out))
	assert.Equal(t, 0, buy.Fee.Cmp(new(big.Int).Quo(fixedmath.One, big.NewInt(10))), "fee is 0.1 on a 10 deposit")

	sell := events[1]
	assert.Equal(t, TradeSideSell, sell.Side)
	assert.Equal(t, 0, sell.AmountIn.Cmp(units(40)))
	assert.Equal(t, 0, sell.AmountOut.Cmp(paid))
	assert.True(t, sell.Fee.Sign() > 0)
}

func TestDepositFeesValidation(t *testing.T) {
	f := newFixture(t, testParams())
	assert.ErrorIs(t, f.pool.DepositFees(nil), ErrZeroAmount)
	assert.ErrorIs(t, f.pool.DepositFees(new(big.Int)), ErrZeroAmount)
}
