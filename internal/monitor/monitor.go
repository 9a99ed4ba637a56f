// Package monitor samples pool state on an interval for observability:
// spot price, reserve, phase and graduation progress. Samples are logged,
// handed to an optional callback, and persisted when storage is configured.
package monitor

import (
	"context"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/modelfoundry/modelamm/internal/pool"
	"github.com/modelfoundry/modelamm/internal/storage"
	"github.com/modelfoundry/modelamm/internal/storage/models"
)

// Sample is one observation of a pool.
type Sample struct {
	ModelID   string
	SpotPrice *big.Int
	Reserve   *big.Int
	Supply    *big.Int
	Phase     pool.Phase
	Graduated bool
	Paused    bool
	Taken     time.Time
}

// SampleCallback is invoked for every sample taken.
type SampleCallback func(Sample)

// SupplySource reports the circulating supply of the pool's token.
type SupplySource interface {
	TotalSupply() *big.Int
}

// PoolMonitor periodically observes one pool.
type PoolMonitor struct {
	pool     *pool.Pool
	supply   SupplySource
	store    storage.Storage
	interval time.Duration
	logger   *zap.Logger
	callback SampleCallback
}

// NewPoolMonitor creates a monitor for p. store and callback may be nil.
func NewPoolMonitor(p *pool.Pool, supply SupplySource, store storage.Storage, interval time.Duration, logger *zap.Logger, callback SampleCallback) *PoolMonitor {
	return &PoolMonitor{
		pool:     p,
		supply:   supply,
		store:    store,
		interval: interval,
		logger:   logger.Named("monitor"),
		callback: callback,
	}
}

// Run samples immediately and then on every tick until ctx is cancelled.
func (m *PoolMonitor) Run(ctx context.Context) error {
	m.logger.Info("Starting pool monitor",
		zap.String("model_id", m.pool.ModelID()),
		zap.Duration("interval", m.interval))

	m.sample(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sample(ctx)
		case <-ctx.Done():
			m.logger.Debug("Pool monitor stopped", zap.String("model_id", m.pool.ModelID()))
			return ctx.Err()
		}
	}
}

func (m *PoolMonitor) sample(ctx context.Context) {
	s := Sample{
		ModelID:   m.pool.ModelID(),
		SpotPrice: m.pool.SpotPrice(),
		Reserve:   m.pool.ReserveBalance(),
		Supply:    m.supply.TotalSupply(),
		Phase:     m.pool.Phase(),
		Graduated: m.pool.HasGraduated(),
		Paused:    m.pool.IsPaused(),
		Taken:     time.Now(),
	}

	m.logger.Debug("Pool sampled",
		zap.String("model_id", s.ModelID),
		zap.String("spot_price", s.SpotPrice.String()),
		zap.String("reserve", s.Reserve.String()),
		zap.String("phase", s.Phase.String()),
		zap.Bool("paused", s.Paused))

	if m.callback != nil {
		m.callback(s)
	}

	if m.store != nil {
		m.persist(ctx, s)
	}
}

// persist writes the snapshot with retry; storage hiccups must not stop the
// sampling loop.
func (m *PoolMonitor) persist(ctx context.Context, s Sample) {
	snapshot := &models.PoolSnapshot{
		ModelID:   s.ModelID,
		Reserve:   s.Reserve.String(),
		SpotPrice: s.SpotPrice.String(),
		Supply:    s.Supply.String(),
		Phase:     s.Phase.String(),
		Graduated: s.Graduated,
		Paused:    s.Paused,
	}

	op := func() (struct{}, error) {
		return struct{}{}, m.store.SaveSnapshot(ctx, snapshot)
	}
	_, err := backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(10*time.Second),
	)
	if err != nil {
		m.logger.Error("Failed to persist pool snapshot",
			zap.String("model_id", s.ModelID),
			zap.Error(err))
	}
}

// TradeRecorder persists executed trades with the same retry policy as
// snapshot persistence. Its Record method is meant to be installed as a
// pool trade hook.
type TradeRecorder struct {
	store  storage.Storage
	logger *zap.Logger
}

// NewTradeRecorder creates a recorder writing to store.
func NewTradeRecorder(store storage.Storage, logger *zap.Logger) *TradeRecorder {
	return &TradeRecorder{store: store, logger: logger.Named("trades")}
}

// Record persists one executed trade. Storage failures are retried and then
// logged; a persistence outage never fails the trade that already settled.
func (r *TradeRecorder) Record(e pool.TradeEvent) {
	record := &models.TradeRecord{
		ModelID:   e.ModelID,
		Side:      string(e.Side),
		Account:   e.Account,
		AmountIn:  e.AmountIn.String(),
		AmountOut: e.AmountOut.String(),
		Fee:       e.Fee.String(),
	}

	ctx := context.Background()
	op := func() (struct{}, error) {
		return struct{}{}, r.store.SaveTrade(ctx, record)
	}
	_, err := backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(10*time.Second),
	)
	if err != nil {
		r.logger.Error("Failed to persist trade",
			zap.String("model_id", e.ModelID),
			zap.String("side", string(e.Side)),
			zap.Error(err))
	}
}
