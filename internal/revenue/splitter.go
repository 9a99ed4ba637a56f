// Package revenue routes model usage revenue. Each incoming fee is split
// between an infrastructure-cost accrual ledger and AMM profit injected into
// the model's pool, according to a governance-controlled basis-point split
// read per model at call time. Governance changes therefore apply
// prospectively only; amounts already recorded are never rebalanced.
package revenue

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"
)

// Governance bounds for the infrastructure share of revenue.
const (
	MinInfraAccrualBps = 5_000
	MaxInfraAccrualBps = 10_000

	BpsDenominator = 10_000
)

var (
	// ErrUnknownModel is returned for a model with no registered pool.
	ErrUnknownModel = errors.New("revenue: unknown model")
	// ErrInvalidAmount rejects nil, zero or negative amounts.
	ErrInvalidAmount = errors.New("revenue: amount must be positive")
	// ErrSplitOutOfBounds is returned when the governance split is outside
	// its allowed range.
	ErrSplitOutOfBounds = errors.New("revenue: infra split out of bounds")
	// ErrInsufficientAccrual is returned when an infra payment exceeds the
	// accrued balance.
	ErrInsufficientAccrual = errors.New("revenue: insufficient accrued balance")
)

// ParamSource supplies the governance split per model at call time.
type ParamSource interface {
	InfraAccrualBps(modelID string) (uint32, error)
}

// FeeReceiver accepts the profit share of a fee; in production this is the
// model's pool.
type FeeReceiver interface {
	DepositFees(amount *big.Int) error
}

// StaticParams is a fixed map-backed ParamSource, used by the service runner
// and in tests.
type StaticParams map[string]uint32

func (s StaticParams) InfraAccrualBps(modelID string) (uint32, error) {
	bps, ok := s[modelID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return bps, nil
}

// Split is the outcome of routing one fee.
type Split struct {
	ModelID      string
	InfraAmount  *big.Int
	ProfitAmount *big.Int
}

// BatchResult aggregates a batch of splits for observability.
type BatchResult struct {
	Splits      []Split
	TotalInfra  *big.Int
	TotalProfit *big.Int
}

// Entry is one model/amount pair in a batch deposit.
type Entry struct {
	ModelID string
	Amount  *big.Int
}

// Splitter routes usage revenue between infra accrual and pool profit.
type Splitter struct {
	mu      sync.Mutex
	params  ParamSource
	pools   map[string]FeeReceiver
	accrued map[string]*big.Int
	logger  *zap.Logger
}

// NewSplitter creates a splitter reading splits from params.
func NewSplitter(params ParamSource, logger *zap.Logger) *Splitter {
	return &Splitter{
		params:  params,
		pools:   make(map[string]FeeReceiver),
		accrued: make(map[string]*big.Int),
		logger:  logger.Named("revenue"),
	}
}

// RegisterPool binds a model's fee receiver.
func (s *Splitter) RegisterPool(modelID string, pool FeeReceiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[modelID] = pool
}

// InfraAccrued returns the infrastructure balance accrued for a model.
func (s *Splitter) InfraAccrued(modelID string) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.accrued[modelID]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// DepositFee splits amount for one model: the infra share accrues to the
// model's cost ledger, the remainder is deposited into the pool as profit.
// When the infra share rounds to zero the full amount flows to profit; a
// small fee is never dropped.
func (s *Splitter) DepositFee(modelID string, amount *big.Int) (Split, error) {
	split, err := s.computeSplit(modelID, amount)
	if err != nil {
		return Split{}, err
	}
	if err := s.apply(split); err != nil {
		return Split{}, err
	}
	return split, nil
}

// DepositFeeBatch applies the per-model split to every entry. The batch is
// all-or-nothing: every entry is validated and quoted before any is applied.
func (s *Splitter) DepositFeeBatch(entries []Entry) (BatchResult, error) {
	result := BatchResult{
		Splits:      make([]Split, 0, len(entries)),
		TotalInfra:  new(big.Int),
		TotalProfit: new(big.Int),
	}

	for _, e := range entries {
		split, err := s.computeSplit(e.ModelID, e.Amount)
		if err != nil {
			return BatchResult{}, fmt.Errorf("batch entry %s: %w", e.ModelID, err)
		}
		result.Splits = append(result.Splits, split)
	}

	for _, split := range result.Splits {
		if err := s.apply(split); err != nil {
			return BatchResult{}, fmt.Errorf("batch entry %s: %w", split.ModelID, err)
		}
		result.TotalInfra.Add(result.TotalInfra, split.InfraAmount)
		result.TotalProfit.Add(result.TotalProfit, split.ProfitAmount)
	}

	s.logger.Info("Revenue batch routed",
		zap.Int("entries", len(entries)),
		zap.String("total_infra", result.TotalInfra.String()),
		zap.String("total_profit", result.TotalProfit.String()))

	return result, nil
}

// PayInfra draws amount from a model's accrued infrastructure balance.
func (s *Splitter) PayInfra(modelID string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.accrued[modelID]
	if !ok || b.Cmp(amount) < 0 {
		return fmt.Errorf("%w: model %s", ErrInsufficientAccrual, modelID)
	}
	b.Sub(b, amount)
	return nil
}

func (s *Splitter) computeSplit(modelID string, amount *big.Int) (Split, error) {
	if modelID == "" {
		return Split{}, fmt.Errorf("%w: empty id", ErrUnknownModel)
	}
	if amount == nil || amount.Sign() <= 0 {
		return Split{}, ErrInvalidAmount
	}

	s.mu.Lock()
	_, registered := s.pools[modelID]
	s.mu.Unlock()
	if !registered {
		return Split{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}

	bps, err := s.params.InfraAccrualBps(modelID)
	if err != nil {
		return Split{}, fmt.Errorf("failed to read infra split: %w", err)
	}
	if bps < MinInfraAccrualBps || bps > MaxInfraAccrualBps {
		return Split{}, fmt.Errorf("%w: %d bps for model %s", ErrSplitOutOfBounds, bps, modelID)
	}

	infra := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	infra.Quo(infra, big.NewInt(BpsDenominator))
	profit := new(big.Int).Sub(amount, infra)

	return Split{ModelID: modelID, InfraAmount: infra, ProfitAmount: profit}, nil
}

func (s *Splitter) apply(split Split) error {
	if split.ProfitAmount.Sign() > 0 {
		s.mu.Lock()
		pool := s.pools[split.ModelID]
		s.mu.Unlock()
		if err := pool.DepositFees(split.ProfitAmount); err != nil {
			return fmt.Errorf("failed to deposit profit: %w", err)
		}
	}

	if split.InfraAmount.Sign() > 0 {
		s.mu.Lock()
		if b, ok := s.accrued[split.ModelID]; ok {
			b.Add(b, split.InfraAmount)
		} else {
			s.accrued[split.ModelID] = new(big.Int).Set(split.InfraAmount)
		}
		s.mu.Unlock()
	}

	s.logger.Debug("Revenue routed",
		zap.String("model_id", split.ModelID),
		zap.String("infra", split.InfraAmount.String()),
		zap.String("profit", split.ProfitAmount.String()))
	return nil
}
