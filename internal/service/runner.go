// Package service assembles the running AMM node: it builds a ledger, vault
// and pool per configured model, wires the revenue splitter onto the pools,
// and supervises one monitor per pool until shutdown.
package service

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/modelfoundry/modelamm/internal/config"
	"github.com/modelfoundry/modelamm/internal/ledger"
	"github.com/modelfoundry/modelamm/internal/monitor"
	"github.com/modelfoundry/modelamm/internal/pool"
	"github.com/modelfoundry/modelamm/internal/revenue"
	"github.com/modelfoundry/modelamm/internal/storage"
	"github.com/modelfoundry/modelamm/internal/storage/postgres"
)

// ManagedPool bundles one pool with its ledgers.
type ManagedPool struct {
	Pool  *pool.Pool
	Token *ledger.Token
	Vault *ledger.Vault
}

// Runner owns the lifetime of every pool and its supporting services.
type Runner struct {
	logger     *zap.Logger
	config     *config.Config
	store      storage.Storage
	pools      map[string]*ManagedPool
	splitter   *revenue.Splitter
	shutdownCh chan os.Signal
}

// NewRunner creates a runner; call Initialize before Run.
func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		logger:     logger.Named("service"),
		config:     cfg,
		pools:      make(map[string]*ManagedPool),
		shutdownCh: make(chan os.Signal, 1),
	}
}

// Initialize connects storage when configured and builds every pool from the
// configuration.
func (r *Runner) Initialize(ctx context.Context) error {
	if r.config.PostgresURL != "" {
		store, err := postgres.NewStorage(ctx, r.config.PostgresURL, r.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := store.RunMigrations(); err != nil {
			return fmt.Errorf("failed to migrate storage: %w", err)
		}
		r.store = store
	} else {
		r.logger.Warn("No postgres_url configured, snapshots will not be persisted")
	}

	splits := make(revenue.StaticParams, len(r.config.Pools))
	r.splitter = revenue.NewSplitter(splits, r.logger)

	var recorder *monitor.TradeRecorder
	if r.store != nil {
		recorder = monitor.NewTradeRecorder(r.store, r.logger)
	}

	for _, pc := range r.config.Pools {
		mp, err := r.buildPool(pc)
		if err != nil {
			return fmt.Errorf("failed to build pool %s: %w", pc.ModelID, err)
		}
		if recorder != nil {
			mp.Pool.SetTradeHook(recorder.Record)
		}
		r.pools[pc.ModelID] = mp
		splits[pc.ModelID] = pc.InfraAccrualBps
		r.splitter.RegisterPool(pc.ModelID, &poolFeeSink{pool: mp.Pool, vault: mp.Vault})
	}

	r.logger.Info("Service initialized", zap.Int("pools", len(r.pools)))
	return nil
}

func (r *Runner) buildPool(pc config.PoolConfig) (*ManagedPool, error) {
	threshold, err := config.ParseAmount(pc.FlatCurveThreshold)
	if err != nil {
		return nil, err
	}
	flatPrice, err := config.ParseAmount(pc.FlatCurvePrice)
	if err != nil {
		return nil, err
	}
	initialReserve, err := config.ParseAmount(pc.InitialReserve)
	if err != nil {
		return nil, err
	}

	token := ledger.NewToken(pc.ModelID)
	vault := ledger.NewVault(initialReserve)

	params := pool.Params{
		CrrPpm:             pc.CrrPpm,
		TradeFeeBps:        pc.TradeFeeBps,
		MaxTradeBps:        pc.MaxTradeBps,
		IBRDuration:        time.Duration(pc.IBRDurationSeconds) * time.Second,
		FlatCurveThreshold: threshold,
		FlatCurvePrice:     flatPrice,
	}

	p, err := pool.New(pc.ModelID, params, token, vault, initialReserve, r.logger)
	if err != nil {
		return nil, err
	}
	return &ManagedPool{Pool: p, Token: token, Vault: vault}, nil
}

// Pool returns the managed pool for a model, or nil.
func (r *Runner) Pool(modelID string) *ManagedPool {
	return r.pools[modelID]
}

// Splitter returns the revenue splitter shared by all pools.
func (r *Runner) Splitter() *revenue.Splitter {
	return r.splitter
}

// Run starts one monitor per pool and blocks until a shutdown signal arrives
// or a monitor fails.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case sig := <-r.shutdownCh:
			r.logger.Info("Signal received", zap.String("signal", sig.String()))
			cancel()
		case <-runCtx.Done():
		}
	}()

	interval := time.Duration(r.config.MonitorInterval) * time.Millisecond

	g, gCtx := errgroup.WithContext(runCtx)
	for _, mp := range r.pools {
		m := monitor.NewPoolMonitor(mp.Pool, mp.Token, r.store, interval, r.logger, nil)
		g.Go(func() error {
			err := m.Run(gCtx)
			if err != nil && gCtx.Err() != nil {
				return nil
			}
			return err
		})
	}

	r.logger.Info("Service running", zap.Int("pools", len(r.pools)))
	err := g.Wait()
	r.Shutdown()
	return err
}

// Shutdown closes storage and flushes the logger.
func (r *Runner) Shutdown() {
	r.logger.Info("Service shutting down")

	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("Failed to close storage", zap.Error(err))
		}
	}

	if err := r.logger.Sync(); err != nil {
		if !os.IsNotExist(err) &&
			err.Error() != "sync /dev/stdout: invalid argument" &&
			err.Error() != "sync /dev/stderr: inappropriate ioctl for device" {
			fmt.Fprintf(os.Stderr, "failed to sync logger during shutdown: %v\n", err)
		}
	}
}

// poolFeeSink moves the profit share of a revenue split into the pool: the
// reserve asset is deposited into the vault first, then the pool is told to
// grow its reserve by the same amount.
type poolFeeSink struct {
	pool  *pool.Pool
	vault *ledger.Vault
}

func (s *poolFeeSink) DepositFees(amount *big.Int) error {
	if err := s.vault.Deposit("revenue", amount); err != nil {
		return fmt.Errorf("failed to fund vault: %w", err)
	}
	return s.pool.DepositFees(amount)
}
