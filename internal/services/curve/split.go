package curve

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/metrics"
)

const (
	SplitMaxIterations     = 20
	SplitToleranceDivisor  = 1_000_000
	splitMinToleranceUnits = 1
)

// SplitResult is a split in working precision.
type SplitResult struct {
	ToLegA     *uint256.Int
	SwapIn     *uint256.Int
	SwapNet    *uint256.Int
	ToLegB     *uint256.Int
	Iterations int
}

// Splitter finds how much of a single-asset input to keep on leg A so that
// the kept amount and the swap output of the rest match the pool ratio left
// behind by that swap.
type Splitter struct {
	Quoter           *Quoter
	MaxIterations    int
	ToleranceDivisor uint64
	WorkingPrecision uint8
}

func NewSplitter(quoter *Quoter) *Splitter {
	if quoter == nil {
		quoter = NewQuoter()
	}
	return &Splitter{
		Quoter:           quoter,
		MaxIterations:    SplitMaxIterations,
		ToleranceDivisor: SplitToleranceDivisor,
		WorkingPrecision: DefaultWorkingPrecision,
	}
}

// Split binary-searches x in [0, amountIn]. For a candidate x the rest is
// swapped (less protocol fee) into leg B and the cross products
//
//	x * reserveB'   vs   reserveA' * legB
//
// decide which half to drop, so no division is involved. The search stops
// once the interval is within amountIn/ToleranceDivisor (plus one unit of
// integer rounding) and fails if the iteration budget runs out first.
func (s *Splitter) Split(amountIn, reserveA, reserveB *uint256.Int, params domain.CurveParams) (*SplitResult, error) {
	if amountIn.IsZero() {
		return &SplitResult{
			ToLegA:  new(uint256.Int),
			SwapIn:  new(uint256.Int),
			SwapNet: new(uint256.Int),
			ToLegB:  new(uint256.Int),
		}, nil
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, domain.ErrEmptyReserves
	}

	start := time.Now()
	defer func() {
		metrics.SplitDuration.Observe(time.Since(start).Seconds())
	}()

	tolerance := new(uint256.Int).Div(amountIn, uint256.NewInt(s.toleranceDivisor()))
	tolerance.AddUint64(tolerance, splitMinToleranceUnits)

	lo := new(uint256.Int)
	hi := new(uint256.Int).Set(amountIn)
	mid := getU256()
	width := getU256()
	lhs := getU256()
	rhs := getU256()
	defer putU256(mid, width, lhs, rhs)

	iterations := 0
	for ; iterations < s.maxIterations(); iterations++ {
		if width.Sub(hi, lo).Cmp(tolerance) <= 0 {
			break
		}
		mid.Add(lo, hi)
		mid.Rsh(mid, 1)

		ev, err := s.evaluate(mid, amountIn, reserveA, reserveB, params)
		if err != nil {
			return nil, err
		}
		if _, err := mul(lhs, mid, ev.reserveB); err != nil {
			return nil, err
		}
		if _, err := mul(rhs, ev.reserveA, ev.legB); err != nil {
			return nil, err
		}
		if lhs.Cmp(rhs) > 0 {
			hi.Set(mid)
		} else {
			lo.Set(mid)
		}
	}
	metrics.SplitIterations.Observe(float64(iterations))

	if width.Sub(hi, lo).Cmp(tolerance) > 0 {
		return nil, fmt.Errorf("%w: interval %s above tolerance %s after %d iterations",
			domain.ErrSplitDidNotConverge, width.Dec(), tolerance.Dec(), iterations)
	}

	ev, err := s.evaluate(lo, amountIn, reserveA, reserveB, params)
	if err != nil {
		return nil, err
	}
	return &SplitResult{
		ToLegA:     lo,
		SwapIn:     new(uint256.Int).Sub(amountIn, lo),
		SwapNet:    ev.swapNet,
		ToLegB:     ev.legB,
		Iterations: iterations,
	}, nil
}

type evaluation struct {
	swapNet  *uint256.Int
	legB     *uint256.Int
	reserveA *uint256.Int
	reserveB *uint256.Int
}

// evaluate applies the swap of amountIn - x to the reserves.
func (s *Splitter) evaluate(x, amountIn, reserveA, reserveB *uint256.Int, params domain.CurveParams) (*evaluation, error) {
	swapIn := new(uint256.Int).Sub(amountIn, x)
	fee := new(uint256.Int)
	if _, err := bpsOf(fee, swapIn, params.ProtocolFeeBps); err != nil {
		return nil, err
	}
	swapNet := swapIn.Sub(swapIn, fee)

	legB, err := s.Quoter.QuoteOutput(swapNet, reserveA, reserveB, params.Amplifier, params.TradeFeeBps)
	if err != nil {
		return nil, err
	}

	ra := new(uint256.Int)
	if _, err := add(ra, reserveA, swapNet); err != nil {
		return nil, err
	}
	rb := new(uint256.Int).Sub(reserveB, legB)
	return &evaluation{swapNet: swapNet, legB: legB, reserveA: ra, reserveB: rb}, nil
}

// SplitQuantity splits in against pair. The pair is normalized so leg A is
// the input asset; the returned quantities are in native precision and
// ToLegA + SwapIn equals in exactly.
func (s *Splitter) SplitQuantity(in domain.Quantity, pair domain.Pair) (*domain.Split, error) {
	oriented, err := pair.Oriented(in.Asset)
	if err != nil {
		return nil, err
	}
	if in.Amount < 0 {
		return nil, domain.ErrNegativeAmount
	}
	legA, legB := oriented.Reserve0.Asset, oriented.Reserve1.Asset
	if in.IsZero() {
		return &domain.Split{
			Input:  in,
			ToLegA: domain.Zero(legA),
			SwapIn: domain.Zero(legA),
			ToLegB: domain.Zero(legB),
		}, nil
	}

	w := s.workingPrecision()
	amountIn, err := QuantityToWorking(in, w)
	if err != nil {
		return nil, err
	}
	reserveA, err := QuantityToWorking(oriented.Reserve0, w)
	if err != nil {
		return nil, err
	}
	reserveB, err := QuantityToWorking(oriented.Reserve1, w)
	if err != nil {
		return nil, err
	}

	res, err := s.Split(amountIn, reserveA, reserveB, oriented.Curve)
	if err != nil {
		return nil, err
	}

	toLegA, err := QuantityFromWorking(res.ToLegA, w, legA)
	if err != nil {
		return nil, err
	}
	toLegB, err := QuantityFromWorking(res.ToLegB, w, legB)
	if err != nil {
		return nil, err
	}
	swapIn, err := in.Sub(toLegA)
	if err != nil {
		return nil, err
	}

	return &domain.Split{
		Input:      in,
		ToLegA:     toLegA,
		SwapIn:     swapIn,
		ToLegB:     toLegB,
		Iterations: res.Iterations,
	}, nil
}

func (s *Splitter) maxIterations() int {
	if s.MaxIterations <= 0 {
		return SplitMaxIterations
	}
	return s.MaxIterations
}

func (s *Splitter) toleranceDivisor() uint64 {
	if s.ToleranceDivisor == 0 {
		return SplitToleranceDivisor
	}
	return s.ToleranceDivisor
}

func (s *Splitter) workingPrecision() uint8 {
	if s.WorkingPrecision == 0 {
		return DefaultWorkingPrecision
	}
	return s.WorkingPrecision
}
