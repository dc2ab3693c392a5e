package curve

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/hxuan190/zap-engine/internal/domain"
)

const (
	// DefaultMaxIterations bounds each Newton loop of the invariant.
	DefaultMaxIterations = 255

	nCoins = 2
	// nCoinsPow is n^n for a two-coin pool.
	nCoinsPow = 4
)

var (
	u256NCoins     = uint256.NewInt(nCoins)
	u256NCoinsPlus = uint256.NewInt(nCoins + 1)
)

// Quoter prices swaps on the two-coin StableSwap invariant
//
//	A·n^n·Σx + D = A·D·n^n + D^(n+1) / (n^n·Πx)
//
// Large A tends to constant-sum pricing, small A to constant-product.
// All amounts are in working precision.
type Quoter struct {
	MaxIterations int
}

func NewQuoter() *Quoter {
	return &Quoter{MaxIterations: DefaultMaxIterations}
}

func (q *Quoter) maxIterations() int {
	if q == nil || q.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return q.MaxIterations
}

// QuoteOutput returns the amount of the out leg received for amountIn of the
// in leg, floored, less one unit of rounding safety and less the trade fee.
// Inputs too small to move the invariant quote zero.
func (q *Quoter) QuoteOutput(amountIn, reserveIn, reserveOut *uint256.Int, amplifier, feeBps uint64) (*uint256.Int, error) {
	if amplifier == 0 {
		return nil, domain.ErrInvalidAmplifier
	}
	if feeBps > domain.BpsDenominator {
		return nil, domain.ErrInvalidFee
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, domain.ErrEmptyReserves
	}
	if amountIn.IsZero() {
		return new(uint256.Int), nil
	}

	d, err := q.GetD(reserveIn, reserveOut, amplifier)
	if err != nil {
		return nil, err
	}

	x := new(uint256.Int)
	if _, err := add(x, reserveIn, amountIn); err != nil {
		return nil, err
	}

	y, err := q.GetY(x, d, amplifier)
	if err != nil {
		return nil, err
	}

	// out = reserveOut - y - 1
	floor := new(uint256.Int).AddUint64(y, 1)
	if floor.Cmp(reserveOut) >= 0 {
		return new(uint256.Int), nil
	}
	out := new(uint256.Int).Sub(reserveOut, floor)
	return applyBps(out, out, feeBps)
}

// GetD solves the invariant for D given both reserves.
func (q *Quoter) GetD(x0, x1 *uint256.Int, amplifier uint64) (*uint256.Int, error) {
	s := new(uint256.Int)
	if _, err := add(s, x0, x1); err != nil {
		return nil, err
	}
	if s.IsZero() {
		return s, nil
	}
	if x0.IsZero() || x1.IsZero() {
		return nil, domain.ErrEmptyReserves
	}

	ann := uint256.NewInt(amplifier)
	if _, err := mul(ann, ann, uint256.NewInt(nCoinsPow)); err != nil {
		return nil, err
	}
	annMinusOne := new(uint256.Int).Sub(ann, u256One)

	// annS = Ann * S is loop invariant
	annS := new(uint256.Int)
	if _, err := mul(annS, ann, s); err != nil {
		return nil, err
	}

	d := new(uint256.Int).Set(s)
	dP := getU256()
	prev := getU256()
	num := getU256()
	den := getU256()
	tmp := getU256()
	defer putU256(dP, prev, num, den, tmp)

	for i := 0; i < q.maxIterations(); i++ {
		// dP = D^3 / (n^n * x0 * x1), one factor at a time
		if _, err := mulDiv(dP, d, d, tmp.Mul(x0, u256NCoins)); err != nil {
			return nil, err
		}
		if _, err := mulDiv(dP, dP, d, tmp.Mul(x1, u256NCoins)); err != nil {
			return nil, err
		}
		prev.Set(d)

		// D = (Ann*S + n*dP) * D / ((Ann-1)*D + (n+1)*dP)
		if _, err := mul(tmp, dP, u256NCoins); err != nil {
			return nil, err
		}
		if _, err := add(num, annS, tmp); err != nil {
			return nil, err
		}
		if _, err := mul(den, annMinusOne, d); err != nil {
			return nil, err
		}
		if _, err := mul(tmp, dP, u256NCoinsPlus); err != nil {
			return nil, err
		}
		if _, err := add(den, den, tmp); err != nil {
			return nil, err
		}
		if _, err := mulDiv(d, num, d, den); err != nil {
			return nil, err
		}

		if absDiff(tmp, d, prev).Cmp(u256One) <= 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: D after %d iterations", domain.ErrPricingDidNotConverge, q.maxIterations())
}

// GetY solves the invariant for the opposite reserve given one reserve x
// and D.
func (q *Quoter) GetY(x, d *uint256.Int, amplifier uint64) (*uint256.Int, error) {
	if x.IsZero() {
		return nil, domain.ErrEmptyReserves
	}
	ann := uint256.NewInt(amplifier)
	if _, err := mul(ann, ann, uint256.NewInt(nCoinsPow)); err != nil {
		return nil, err
	}

	// c = D^3 / (n^n * x * Ann)
	c := new(uint256.Int)
	tmp := getU256()
	defer putU256(tmp)
	if _, err := mulDiv(c, d, d, tmp.Mul(x, u256NCoins)); err != nil {
		return nil, err
	}
	if _, err := mul(tmp, ann, u256NCoins); err != nil {
		return nil, err
	}
	if _, err := mulDiv(c, c, d, tmp); err != nil {
		return nil, err
	}

	// b = x + D / Ann
	b := new(uint256.Int).Div(d, ann)
	if _, err := add(b, b, x); err != nil {
		return nil, err
	}

	y := new(uint256.Int).Set(d)
	prev := getU256()
	num := getU256()
	den := getU256()
	defer putU256(prev, num, den)

	for i := 0; i < q.maxIterations(); i++ {
		prev.Set(y)

		// y = (y^2 + c) / (2y + b - D)
		if _, err := mul(num, y, y); err != nil {
			return nil, err
		}
		if _, err := add(num, num, c); err != nil {
			return nil, err
		}
		if _, err := mul(den, y, u256Two); err != nil {
			return nil, err
		}
		if _, err := add(den, den, b); err != nil {
			return nil, err
		}
		if den.Cmp(d) <= 0 {
			return nil, fmt.Errorf("%w: degenerate denominator", domain.ErrPricingDidNotConverge)
		}
		den.Sub(den, d)
		y.Div(num, den)

		if absDiff(tmp, y, prev).Cmp(u256One) <= 0 {
			return y, nil
		}
	}
	return nil, fmt.Errorf("%w: y after %d iterations", domain.ErrPricingDidNotConverge, q.maxIterations())
}

// Quote prices a swap of in against pair in native units. Protocol fee is
// taken from the input before pricing; trade fee from the output.
func (q *Quoter) Quote(pair domain.Pair, in domain.Quantity, workingPrecision uint8) (*domain.SwapQuote, error) {
	oriented, err := pair.Oriented(in.Asset)
	if err != nil {
		return nil, err
	}
	if !oriented.Seeded() {
		return nil, domain.ErrEmptyReserves
	}

	amountIn, err := QuantityToWorking(in, workingPrecision)
	if err != nil {
		return nil, err
	}
	reserveIn, err := QuantityToWorking(oriented.Reserve0, workingPrecision)
	if err != nil {
		return nil, err
	}
	reserveOut, err := QuantityToWorking(oriented.Reserve1, workingPrecision)
	if err != nil {
		return nil, err
	}

	fee := new(uint256.Int)
	if _, err := bpsOf(fee, amountIn, oriented.Curve.ProtocolFeeBps); err != nil {
		return nil, err
	}
	net := new(uint256.Int).Sub(amountIn, fee)

	out, err := q.QuoteOutput(net, reserveIn, reserveOut, oriented.Curve.Amplifier, oriented.Curve.TradeFeeBps)
	if err != nil {
		return nil, err
	}

	feeQty, err := QuantityFromWorking(fee, workingPrecision, in.Asset)
	if err != nil {
		return nil, err
	}
	outQty, err := QuantityFromWorking(out, workingPrecision, oriented.Reserve1.Asset)
	if err != nil {
		return nil, err
	}
	return &domain.SwapQuote{
		PairID:      pair.ID,
		AmountIn:    in,
		ProtocolFee: feeQty,
		AmountOut:   outQty,
	}, nil
}
