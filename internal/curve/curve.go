// Package curve implements the continuous bonding-curve pricing formulas.
// Every function is pure: it operates on explicit (supply, reserve, amount,
// crrPpm) arguments in 10^18 fixed-point and never touches pool state. The
// reserve ratio is expressed in parts-per-million, so crrPpm=100000 means a
// 10% reserve ratio.
package curve

import (
	"math/big"

	"github.com/modelfoundry/modelamm/internal/fixedmath"
)

const (
	// PpmDenominator converts parts-per-million ratios to fractions.
	PpmDenominator = 1_000_000
	// BpsDenominator converts basis points to fractions.
	BpsDenominator = 10_000
)

// ppmScale lifts a ppm ratio into fixed-point: crrPpm * 10^12 = crr * One / 10^6.
var ppmScale = big.NewInt(1_000_000_000_000)

// Weight returns the reserve ratio crrPpm as a fixed-point fraction.
func Weight(crrPpm uint32) *big.Int {
	return new(big.Int).Mul(big.NewInt(int64(crrPpm)), ppmScale)
}

// CalculateSpotPrice returns the instantaneous marginal price implied by the
// current reserve, supply and reserve ratio:
//
//	price = reserve / (w * supply)
//
// A pool with zero supply has no marginal price and returns 0.
func CalculateSpotPrice(supply, reserve *big.Int, crrPpm uint32) *big.Int {
	if supply == nil || supply.Sign() == 0 || reserve == nil {
		return new(big.Int)
	}
	return fixedmath.Div(reserve, fixedmath.Mul(Weight(crrPpm), supply))
}

// CalculateBuy returns the tokens minted for a reserve deposit:
//
//	tokensOut = supply * ((1 + deposit/reserve)^w - 1)
//
// Returns 0 when reserve or supply is zero; the flat-price phase handles the
// bootstrap case before the curve is live.
func CalculateBuy(supply, reserve, deposit *big.Int, crrPpm uint32) (*big.Int, error) {
	if supply == nil || reserve == nil || deposit == nil ||
		supply.Sign() == 0 || reserve.Sign() == 0 || deposit.Sign() == 0 {
		return new(big.Int), nil
	}

	ratio := new(big.Int).Add(fixedmath.One, fixedmath.Div(deposit, reserve))
	factor, err := fixedmath.Pow(ratio, Weight(crrPpm))
	if err != nil {
		return nil, err
	}
	return fixedmath.Mul(supply, new(big.Int).Sub(factor, fixedmath.One)), nil
}

// CalculateSell returns the reserve released for burning tokensIn:
//
//	reserveOut = reserve * (1 - (1 - tokensIn/supply)^(1/w))
//
// Selling the entire supply drains the full reserve exactly. Returns 0 when
// supply is zero or tokensIn exceeds supply.
func CalculateSell(supply, reserve, tokensIn *big.Int, crrPpm uint32) (*big.Int, error) {
	if supply == nil || reserve == nil || tokensIn == nil ||
		supply.Sign() == 0 || tokensIn.Sign() == 0 || tokensIn.Cmp(supply) > 0 {
		return new(big.Int), nil
	}
	if tokensIn.Cmp(supply) == 0 {
		return new(big.Int).Set(reserve), nil
	}

	remaining := new(big.Int).Sub(fixedmath.One, fixedmath.Div(tokensIn, supply))
	invWeight := fixedmath.Div(fixedmath.One, Weight(crrPpm))
	factor, err := fixedmath.Pow(remaining, invWeight)
	if err != nil {
		return nil, err
	}
	return fixedmath.Mul(reserve, new(big.Int).Sub(fixedmath.One, factor)), nil
}

// CalculateBuyImpact returns the spot-price impact of a buy in basis points,
// derived from the pre- and post-trade spot prices.
func CalculateBuyImpact(supply, reserve, deposit *big.Int, crrPpm uint32) (int64, error) {
	pre := CalculateSpotPrice(supply, reserve, crrPpm)
	if pre.Sign() == 0 {
		return 0, nil
	}

	tokensOut, err := CalculateBuy(supply, reserve, deposit, crrPpm)
	if err != nil {
		return 0, err
	}
	postSupply := new(big.Int).Add(supply, tokensOut)
	postReserve := new(big.Int).Add(reserve, deposit)
	post := CalculateSpotPrice(postSupply, postReserve, crrPpm)

	diff := new(big.Int).Sub(post, pre)
	diff.Mul(diff, big.NewInt(BpsDenominator))
	return new(big.Int).Quo(diff, pre).Int64(), nil
}

// CalculateSellImpact returns the spot-price impact of a sell in basis
// points. Selling 100% of supply is exactly 10000 bps.
func CalculateSellImpact(supply, reserve, tokensIn *big.Int, crrPpm uint32) (int64, error) {
	if supply == nil || tokensIn == nil || supply.Sign() == 0 {
		return 0, nil
	}
	if tokensIn.Cmp(supply) == 0 {
		return BpsDenominator, nil
	}

	pre := CalculateSpotPrice(supply, reserve, crrPpm)
	if pre.Sign() == 0 {
		return 0, nil
	}

	reserveOut, err := CalculateSell(supply, reserve, tokensIn, crrPpm)
	if err != nil {
		return 0, err
	}
	postSupply := new(big.Int).Sub(supply, tokensIn)
	postReserve := new(big.Int).Sub(reserve, reserveOut)
	post := CalculateSpotPrice(postSupply, postReserve, crrPpm)

	diff := new(big.Int).Sub(pre, post)
	diff.Mul(diff, big.NewInt(BpsDenominator))
	return new(big.Int).Quo(diff, pre).Int64(), nil
}
