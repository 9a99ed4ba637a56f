package pool

import (
	"fmt"
	"math/big"
	"time"
)

// Governance bounds for curve parameters.
const (
	MinCrrPpm = 50_000  // 5% reserve ratio
	MaxCrrPpm = 500_000 // 50% reserve ratio

	MaxTradeFeeBps = 1_000 // 10%

	BpsDenominator = 10_000
)

// Params holds the governance-set curve parameters for one pool.
type Params struct {
	// CrrPpm is the reserve ratio in parts-per-million.
	CrrPpm uint32
	// TradeFeeBps is the per-trade fee in basis points, taken from the
	// deposit on buys and from the payout on sells.
	TradeFeeBps uint32
	// MaxTradeBps caps a single trade as a fraction of the current reserve.
	MaxTradeBps uint32
	// IBRDuration is the initial buy-only restriction window measured from
	// pool creation.
	IBRDuration time.Duration
	// FlatCurveThreshold is the reserve level at which flat pricing ends and
	// the pool graduates onto the bonding curve.
	FlatCurveThreshold *big.Int
	// FlatCurvePrice is the fixed price per token before graduation.
	FlatCurvePrice *big.Int
}

// Validate checks all parameters against their governance bounds.
func (p Params) Validate() error {
	if p.CrrPpm < MinCrrPpm || p.CrrPpm > MaxCrrPpm {
		return fmt.Errorf("%w: crr_ppm %d outside [%d, %d]", ErrParamsOutOfBounds, p.CrrPpm, MinCrrPpm, MaxCrrPpm)
	}
	if p.TradeFeeBps > MaxTradeFeeBps {
		return fmt.Errorf("%w: trade_fee_bps %d exceeds %d", ErrParamsOutOfBounds, p.TradeFeeBps, MaxTradeFeeBps)
	}
	if p.MaxTradeBps == 0 || p.MaxTradeBps > BpsDenominator {
		return fmt.Errorf("%w: max_trade_bps %d outside (0, %d]", ErrParamsOutOfBounds, p.MaxTradeBps, BpsDenominator)
	}
	if p.IBRDuration < 0 {
		return fmt.Errorf("%w: negative buy-only window", ErrParamsOutOfBounds)
	}
	if p.FlatCurveThreshold == nil || p.FlatCurveThreshold.Sign() <= 0 {
		return fmt.Errorf("%w: flat curve threshold must be positive", ErrParamsOutOfBounds)
	}
	if p.FlatCurvePrice == nil || p.FlatCurvePrice.Sign() <= 0 {
		return fmt.Errorf("%w: flat curve price must be positive", ErrParamsOutOfBounds)
	}
	return nil
}
