package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modelfoundry/modelamm/internal/config"
	"github.com/modelfoundry/modelamm/internal/fixedmath"
	"github.com/modelfoundry/modelamm/internal/pool"
)

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fixedmath.One)
}

func testConfig() *config.Config {
	return &config.Config{
		MonitorInterval: 50,
		Pools: []config.PoolConfig{
			{
				ModelID:            "model-a",
				CrrPpm:             200_000,
				TradeFeeBps:        100,
				MaxTradeBps:        1_000,
				InfraAccrualBps:    7_000,
				IBRDurationSeconds: 0,
				FlatCurveThreshold: units(150).String(),
				FlatCurvePrice:     new(big.Int).Div(fixedmath.One, big.NewInt(10)).String(),
				InitialReserve:     units(100).String(),
			},
			{
				ModelID:            "model-b",
				CrrPpm:             100_000,
				TradeFeeBps:        50,
				MaxTradeBps:        2_000,
				InfraAccrualBps:    5_000,
				IBRDurationSeconds: 3600,
				FlatCurveThreshold: units(500).String(),
				FlatCurvePrice:     fixedmath.One.String(),
				InitialReserve:     units(250).String(),
			},
		},
	}
}

func TestInitializeBuildsPools(t *testing.T) {
	r := NewRunner(testConfig(), zap.NewNop())
	require.NoError(t, r.Initialize(context.Background()))

	a := r.Pool("model-a")
	require.NotNil(t, a)
	assert.Equal(t, 0, a.Pool.ReserveBalance().Cmp(units(100)))
	assert.Equal(t, 0, a.Vault.Held().Cmp(units(100)))
	assert.Equal(t, pool.PhaseFlatPrice, a.Pool.Phase())

	b := r.Pool("model-b")
	require.NotNil(t, b)
	assert.Equal(t, uint32(100_000), b.Pool.Params().CrrPpm)
	assert.False(t, b.Pool.IsSellEnabled(), "buy-only window should still be open")

	assert.Nil(t, r.Pool("model-unknown"))
}

func TestInitializeRejectsBadAmounts(t *testing.T) {
	cfg := testConfig()
	cfg.Pools[0].InitialReserve = "not-a-number"

	r := NewRunner(cfg, zap.NewNop())
	err := r.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model-a")
}

func TestRevenueFlowsThroughVaultIntoPool(t *testing.T) {
	r := NewRunner(testConfig(), zap.NewNop())
	require.NoError(t, r.Initialize(context.Background()))

	mp := r.Pool("model-a")
	reserveBefore := mp.Pool.ReserveBalance()
	heldBefore := mp.Vault.Held()

	split, err := r.Splitter().DepositFee("model-a", units(10))
	require.NoError(t, err)

	// 70% infra accrual, 30% profit into the pool.
	assert.Equal(t, 0, split.InfraAmount.Cmp(units(7)))
	assert.Equal(t, 0, split.ProfitAmount.Cmp(units(3)))
	assert.Equal(t, 0, r.Splitter().InfraAccrued("model-a").Cmp(units(7)))

	wantReserve := new(big.Int).Add(reserveBefore, units(3))
	assert.Equal(t, 0, mp.Pool.ReserveBalance().Cmp(wantReserve))

	// The vault physically received the profit share.
	wantHeld := new(big.Int).Add(heldBefore, units(3))
	assert.Equal(t, 0, mp.Vault.Held().Cmp(wantHeld))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	r := NewRunner(testConfig(), zap.NewNop())
	require.NoError(t, r.Initialize(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
