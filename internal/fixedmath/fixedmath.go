// Package fixedmath implements deterministic fixed-point arithmetic with 18
// fractional decimal digits. Values are *big.Int scaled by 10^18, so One
// represents 1.0. The transcendental functions (Ln, Exp, Pow) are pure and
// carry no pool state; they are the shared numerical kernel for all curve
// pricing.
package fixedmath

import (
	"errors"
	"math/big"
)

// One is the fixed-point representation of 1.0 (10^18).
var One = mustInt("1000000000000000000")

// E is Euler's number in fixed-point representation.
var E = mustInt("2718281828459045235")

// MaxExpInput bounds the magnitude accepted by Exp. Inputs beyond ±130.0 are
// clamped so that repeated multiplication by E stays cheap and results stay
// representable for every downstream curve computation.
var MaxExpInput = new(big.Int).Mul(big.NewInt(130), One)

var (
	// ErrLnDomain is returned when Ln is called with a non-positive value.
	// Pricing off a sentinel would corrupt accounting, so this fails hard.
	ErrLnDomain = errors.New("fixedmath: ln of non-positive value")
	// ErrPowDomain is returned when Pow receives a negative base or exponent.
	ErrPowDomain = errors.New("fixedmath: pow requires non-negative base and exponent")
)

const (
	lnSeriesTerms  = 32
	expSeriesTerms = 24
)

var (
	upperReduction = new(big.Int).Mul(big.NewInt(3), One)        // 3.0
	lowerReduction = new(big.Int).Quo(One, big.NewInt(3))        // 1/3
	two            = big.NewInt(2)
)

// Mul returns a*b in fixed-point, truncating toward zero.
func Mul(a, b *big.Int) *big.Int {
	return new(big.Int).Quo(new(big.Int).Mul(a, b), One)
}

// Div returns a/b in fixed-point, truncating toward zero.
func Div(a, b *big.Int) *big.Int {
	return new(big.Int).Quo(new(big.Int).Mul(a, One), b)
}

// Ln computes the natural logarithm of x.
//
// The argument is scaled into [1/3, 3] by repeated division or multiplication
// by e while counting the scalings, then the reduced value is evaluated with
// the atanh series ln(v) = 2*(z + z^3/3 + z^5/5 + ...) where z = (v-1)/(v+1).
// Each removed factor of e contributes exactly 1.0 back to the result.
func Ln(x *big.Int) (*big.Int, error) {
	if x == nil || x.Sign() <= 0 {
		return nil, ErrLnDomain
	}

	v := new(big.Int).Set(x)
	count := int64(0)
	for v.Cmp(upperReduction) >= 0 {
		v = Div(v, E)
		count++
	}
	for v.Cmp(lowerReduction) <= 0 {
		v = Mul(v, E)
		count--
	}

	// z is in [-1/2, 1/2], so the series gains two bits per term.
	num := new(big.Int).Sub(v, One)
	den := new(big.Int).Add(v, One)
	z := new(big.Int).Quo(new(big.Int).Mul(num, One), den)
	z2 := Mul(z, z)

	term := new(big.Int).Set(z)
	sum := new(big.Int).Set(z)
	for k := int64(3); k < 2*lnSeriesTerms; k += 2 {
		term = Mul(term, z2)
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, new(big.Int).Quo(term, big.NewInt(k)))
	}

	sum.Mul(sum, two)
	sum.Add(sum, new(big.Int).Mul(big.NewInt(count), One))
	return sum, nil
}

// Exp computes e^x for signed fixed-point x. There is no domain failure:
// inputs beyond ±MaxExpInput are clamped to the ceiling, which is documented
// behavior rather than overflow.
func Exp(x *big.Int) *big.Int {
	v := new(big.Int).Set(x)
	if v.CmpAbs(MaxExpInput) > 0 {
		if v.Sign() < 0 {
			v.Neg(MaxExpInput)
		} else {
			v.Set(MaxExpInput)
		}
	}

	neg := v.Sign() < 0
	if neg {
		v.Neg(v)
	}

	intPart := new(big.Int).Quo(v, One).Int64()
	frac := new(big.Int).Rem(v, One)

	// Taylor series for e^frac with frac in [0, 1).
	sum := new(big.Int).Set(One)
	term := new(big.Int).Set(One)
	for k := int64(1); k <= expSeriesTerms; k++ {
		term = new(big.Int).Quo(Mul(term, frac), big.NewInt(k))
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, term)
	}

	for i := int64(0); i < intPart; i++ {
		sum = Mul(sum, E)
	}

	if neg {
		return Div(One, sum)
	}
	return sum
}

// Pow computes base^exponent for non-negative fixed-point arguments via the
// identity base^exponent = exp(exponent * ln(base)).
//
// Special cases: pow(x, 0) = 1 for any x, pow(0, y>0) = 0, pow(1, y) = 1.
func Pow(base, exponent *big.Int) (*big.Int, error) {
	if base == nil || exponent == nil || base.Sign() < 0 || exponent.Sign() < 0 {
		return nil, ErrPowDomain
	}
	if exponent.Sign() == 0 {
		return new(big.Int).Set(One), nil
	}
	if base.Sign() == 0 {
		return new(big.Int), nil
	}
	if base.Cmp(One) == 0 {
		return new(big.Int).Set(One), nil
	}

	lnBase, err := Ln(base)
	if err != nil {
		return nil, err
	}
	return Exp(Mul(exponent, lnBase)), nil
}

func mustInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("fixedmath: invalid integer constant " + s)
	}
	return v
}
