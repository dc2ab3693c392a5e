package curve

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/hxuan190/zap-engine/internal/domain"
)

// Pre-computed constants (avoid allocation on every call)
var (
	u256Zero     = uint256.NewInt(0)
	u256One      = uint256.NewInt(1)
	u256Two      = uint256.NewInt(2)
	u256BpsDenom = uint256.NewInt(domain.BpsDenominator)
)

// Object pool for the hot path of the split search

var uint256Pool = sync.Pool{
	New: func() interface{} {
		return new(uint256.Int)
	},
}

// getU256 gets a uint256.Int from the pool
func getU256() *uint256.Int {
	return uint256Pool.Get().(*uint256.Int)
}

// putU256 returns uint256.Ints to the pool
func putU256(vs ...*uint256.Int) {
	for _, v := range vs {
		v.Clear()
		uint256Pool.Put(v)
	}
}

// mulDiv sets z = x * y / d with a 512-bit intermediate.
func mulDiv(z, x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, domain.ErrMathOverflow
	}
	if _, overflow := z.MulDivOverflow(x, y, d); overflow {
		return nil, domain.ErrMathOverflow
	}
	return z, nil
}

func mul(z, x, y *uint256.Int) (*uint256.Int, error) {
	if _, overflow := z.MulOverflow(x, y); overflow {
		return nil, domain.ErrMathOverflow
	}
	return z, nil
}

func add(z, x, y *uint256.Int) (*uint256.Int, error) {
	if _, overflow := z.AddOverflow(x, y); overflow {
		return nil, domain.ErrMathOverflow
	}
	return z, nil
}

// absDiff returns |x - y|.
func absDiff(z, x, y *uint256.Int) *uint256.Int {
	if x.Cmp(y) >= 0 {
		return z.Sub(x, y)
	}
	return z.Sub(y, x)
}

// applyBps sets z = v * (10000 - bps) / 10000.
func applyBps(z, v *uint256.Int, bps uint64) (*uint256.Int, error) {
	if bps > domain.BpsDenominator {
		return nil, domain.ErrInvalidFee
	}
	keep := uint256.NewInt(domain.BpsDenominator - bps)
	return mulDiv(z, v, keep, u256BpsDenom)
}

// bpsOf sets z = v * bps / 10000.
func bpsOf(z, v *uint256.Int, bps uint64) (*uint256.Int, error) {
	if bps > domain.BpsDenominator {
		return nil, domain.ErrInvalidFee
	}
	return mulDiv(z, v, uint256.NewInt(bps), u256BpsDenom)
}
