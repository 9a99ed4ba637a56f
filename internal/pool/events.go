package pool

import "math/big"

// TradeSide labels the direction of an executed trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// TradeEvent describes one successfully executed trade. AmountIn and
// AmountOut are in the caller's units: reserve in / tokens out for buys,
// tokens in / reserve out for sells. Fee is always in reserve-asset units.
type TradeEvent struct {
	ModelID   string
	Side      TradeSide
	Account   string
	AmountIn  *big.Int
	AmountOut *big.Int
	Fee       *big.Int
}

// SetTradeHook registers a callback invoked after every successful Buy and
// Sell. The hook runs inside the single-entry guard, so it must not call
// back into the pool.
func (p *Pool) SetTradeHook(hook func(TradeEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tradeHook = hook
}

func (p *Pool) notifyTrade(e TradeEvent) {
	p.mu.RLock()
	hook := p.tradeHook
	p.mu.RUnlock()
	if hook != nil {
		hook(e)
	}
}
