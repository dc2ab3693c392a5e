package curve

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/zap-engine/internal/domain"
)

const nearConstantSum = 100_000

func toFloat(u *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(u.ToBig()).Float64()
	return f
}

func stablePair(t testing.TB, reserveA, reserveB int64, curve domain.CurveParams) (domain.Pair, domain.Asset, domain.Asset) {
	t.Helper()
	usdt := testAsset(t, "USDT", 4)
	usdn := testAsset(t, "USDN", 4)
	lp := testAsset(t, "USDTN", 4)
	return domain.Pair{
		ID:        "USDTN",
		Reserve0:  domain.NewQuantity(reserveA, usdt),
		Reserve1:  domain.NewQuantity(reserveB, usdn),
		Liquidity: domain.NewQuantity(reserveA+reserveB, lp),
		Curve:     curve,
	}, usdt, usdn
}

// assertRatioPreserved checks that the deposit (x, legB) matches the pool
// ratio left after swapping the remainder.
func assertRatioPreserved(t *testing.T, res *SplitResult, reserveA, reserveB *uint256.Int) {
	t.Helper()
	ra := new(uint256.Int).Add(reserveA, res.SwapNet)
	rb := new(uint256.Int).Sub(reserveB, res.ToLegB)

	deposit := toFloat(res.ToLegA) / toFloat(res.ToLegB)
	pool := toFloat(ra) / toFloat(rb)
	deviation := (deposit - pool) / pool
	if deviation < 0 {
		deviation = -deviation
	}
	assert.Less(t, deviation, 1e-4, "deposit ratio %.8f vs pool ratio %.8f", deposit, pool)
}

func TestSplitZero(t *testing.T) {
	s := NewSplitter(nil)
	res, err := s.Split(new(uint256.Int), units(10000), units(10000), domain.CurveParams{Amplifier: 100})
	require.NoError(t, err)
	assert.True(t, res.ToLegA.IsZero())
	assert.True(t, res.ToLegB.IsZero())

	pair, usdt, usdn := stablePair(t, 100_000_000, 100_000_000, domain.CurveParams{Amplifier: 100})
	split, err := s.SplitQuantity(domain.Zero(usdt), pair)
	require.NoError(t, err)
	assert.Equal(t, domain.Zero(usdt), split.ToLegA)
	assert.Equal(t, domain.Zero(usdn), split.ToLegB)
}

func TestSplitEmptyReserves(t *testing.T) {
	s := NewSplitter(nil)
	_, err := s.Split(units(1), new(uint256.Int), units(10), domain.CurveParams{Amplifier: 100})
	assert.ErrorIs(t, err, domain.ErrEmptyReserves)

	pair, usdt, _ := stablePair(t, 0, 100_000_000, domain.CurveParams{Amplifier: 100})
	_, err = s.SplitQuantity(domain.NewQuantity(10_000, usdt), pair)
	assert.ErrorIs(t, err, domain.ErrEmptyReserves)
	assert.ErrorIs(t, err, domain.ErrInput)
}

func TestSplitAssetMismatch(t *testing.T) {
	pair, _, _ := stablePair(t, 100_000_000, 100_000_000, domain.CurveParams{Amplifier: 100})
	_, err := NewSplitter(nil).SplitQuantity(domain.NewQuantity(10_000, testAsset(t, "EOS", 4)), pair)
	assert.ErrorIs(t, err, domain.ErrAssetMismatch)
}

func TestSplitDoesNotConverge(t *testing.T) {
	s := NewSplitter(nil)
	s.MaxIterations = 3
	_, err := s.Split(units(1000), units(10000), units(10000), domain.CurveParams{Amplifier: 100})
	require.ErrorIs(t, err, domain.ErrSplitDidNotConverge)
	assert.Equal(t, domain.KindConvergence, domain.KindOf(err))
}

func TestSplitConvergesWithinBudget(t *testing.T) {
	s := NewSplitter(nil)
	for _, amount := range []uint64{1, 7, 1000, 123_456, 9_999_999} {
		in := units(amount)
		res, err := s.Split(in, units(10_000_000), units(8_000_000), domain.CurveParams{Amplifier: 50, TradeFeeBps: 4})
		require.NoError(t, err, "amount=%d", amount)
		assert.LessOrEqual(t, res.Iterations, SplitMaxIterations)
	}
}

func TestSplitConservation(t *testing.T) {
	params := domain.CurveParams{Amplifier: nearConstantSum}
	pair, usdt, _ := stablePair(t, 100_000_000, 100_000_000, params)
	in := domain.NewQuantity(10_000_000, usdt)

	split, err := NewSplitter(nil).SplitQuantity(in, pair)
	require.NoError(t, err)

	sum, err := split.ToLegA.Add(split.SwapIn)
	require.NoError(t, err)
	assert.Equal(t, in, sum, "kept and swapped parts must add back to the input exactly")

	// at par, leg B received is worth the swapped amount less curve slippage
	assert.LessOrEqual(t, split.ToLegB.Amount, split.SwapIn.Amount)
	assert.GreaterOrEqual(t, split.ToLegB.Amount, split.SwapIn.Amount-split.SwapIn.Amount/1000)
}

func TestSplitRatioPreservation(t *testing.T) {
	tests := []struct {
		name     string
		reserveA *uint256.Int
		reserveB *uint256.Int
		in       *uint256.Int
		params   domain.CurveParams
	}{
		{"balanced near constant sum", units(10000), units(10000), units(1000), domain.CurveParams{Amplifier: nearConstantSum}},
		{"balanced low amplifier", units(10000), units(10000), units(1000), domain.CurveParams{Amplifier: 5}},
		{"imbalanced with fees", units(50000), units(20000), units(3000), domain.CurveParams{Amplifier: 85, TradeFeeBps: 30, ProtocolFeeBps: 5}},
		{"large input", units(1000), units(1000), units(900), domain.CurveParams{Amplifier: 200, TradeFeeBps: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewSplitter(nil).Split(tt.in, tt.reserveA, tt.reserveB, tt.params)
			require.NoError(t, err)

			total := new(uint256.Int).Add(res.ToLegA, res.SwapIn)
			assert.Equal(t, tt.in.Dec(), total.Dec())
			assertRatioPreserved(t, res, tt.reserveA, tt.reserveB)
		})
	}
}

func TestSplitSymmetry(t *testing.T) {
	params := domain.CurveParams{Amplifier: nearConstantSum, TradeFeeBps: 4}
	pair, usdt, usdn := stablePair(t, 100_000_000, 100_000_000, params)
	s := NewSplitter(nil)

	fromA, err := s.SplitQuantity(domain.NewQuantity(10_000_000, usdt), pair)
	require.NoError(t, err)
	fromB, err := s.SplitQuantity(domain.NewQuantity(10_000_000, usdn), pair)
	require.NoError(t, err)

	assert.Equal(t, usdt, fromA.ToLegA.Asset)
	assert.Equal(t, usdn, fromA.ToLegB.Asset)
	assert.Equal(t, usdn, fromB.ToLegA.Asset)
	assert.Equal(t, usdt, fromB.ToLegB.Asset)
	assert.Equal(t, fromA.ToLegA.Amount, fromB.ToLegA.Amount)
	assert.Equal(t, fromA.ToLegB.Amount, fromB.ToLegB.Amount)
}

func TestSplitSymmetryImbalanced(t *testing.T) {
	params := domain.CurveParams{Amplifier: nearConstantSum}
	pair, usdt, usdn := stablePair(t, 200_000_000, 100_000_000, params)
	s := NewSplitter(nil)

	fromA, err := s.SplitQuantity(domain.NewQuantity(10_000_000, usdt), pair)
	require.NoError(t, err)
	fromB, err := s.SplitQuantity(domain.NewQuantity(10_000_000, usdn), pair)
	require.NoError(t, err)

	// A side deposits USDT:USDN above 2:1, B side USDN:USDT above 1:2; the two
	// allocations are inverse up to the price move each swap causes.
	ratioA := float64(fromA.ToLegA.Amount) / float64(fromA.ToLegB.Amount)
	ratioB := float64(fromB.ToLegA.Amount) / float64(fromB.ToLegB.Amount)
	assert.Greater(t, ratioA, 2.0)
	assert.Greater(t, ratioB, 0.5)
	assert.InDelta(t, 1.0, ratioA*ratioB, 0.3)
	assert.GreaterOrEqual(t, ratioA*ratioB, 1.0)
}

func TestSplitMonotonic(t *testing.T) {
	pair, usdt, _ := stablePair(t, 100_000_000, 80_000_000, domain.CurveParams{Amplifier: 60, TradeFeeBps: 4})
	s := NewSplitter(nil)

	prev := int64(0)
	for amount := int64(1_000_000); amount <= 10_000_000; amount += 1_000_000 {
		split, err := s.SplitQuantity(domain.NewQuantity(amount, usdt), pair)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, split.ToLegA.Amount, prev, "amount=%d", amount)
		prev = split.ToLegA.Amount
	}
}

func TestSplitMixedPrecision(t *testing.T) {
	usdt := testAsset(t, "USDT", 4)
	usdc := testAsset(t, "USDC", 6)
	pair := domain.Pair{
		ID:       "USDTC",
		Reserve0: domain.NewQuantity(10_000_000_000, usdc),
		Reserve1: domain.NewQuantity(100_000_000, usdt),
		Curve:    domain.CurveParams{Amplifier: nearConstantSum},
	}

	split, err := NewSplitter(nil).SplitQuantity(domain.NewQuantity(10_000_000, usdt), pair)
	require.NoError(t, err)

	assert.Equal(t, usdc, split.ToLegB.Asset)
	swapped := split.SwapIn.Decimal()
	received := split.ToLegB.Decimal()
	assert.True(t, received.LessThanOrEqual(swapped))
	assert.True(t, received.GreaterThan(swapped.Mul(decimal.NewFromFloat(0.999))))
}

// Scenario A: 10,000/10,000 near constant-sum pool, no fees, 1,000 in.
func TestSplitScenarioNoFee(t *testing.T) {
	pair, usdt, usdn := stablePair(t, 100_000_000, 100_000_000, domain.CurveParams{Amplifier: nearConstantSum})

	split, err := NewSplitter(nil).SplitQuantity(domain.NewQuantity(10_000_000, usdt), pair)
	require.NoError(t, err)

	assert.Equal(t, usdn, split.ToLegB.Asset)
	// about half: the kept share is measured against the post-swap ratio
	assert.InDelta(t, 5_000_000, split.ToLegA.Amount, 500_000)
	assert.InDelta(t, 5_000_000, split.ToLegB.Amount, 500_000)
	assert.Greater(t, split.ToLegA.Amount, split.ToLegB.Amount)
}

// Scenario B: same pool with a 30bp trade fee.
func TestSplitScenarioTradeFee(t *testing.T) {
	noFee, usdt, _ := stablePair(t, 100_000_000, 100_000_000, domain.CurveParams{Amplifier: nearConstantSum})
	withFee, _, _ := stablePair(t, 100_000_000, 100_000_000, domain.CurveParams{Amplifier: nearConstantSum, TradeFeeBps: 30})
	in := domain.NewQuantity(10_000_000, usdt)
	s := NewSplitter(nil)

	a, err := s.SplitQuantity(in, noFee)
	require.NoError(t, err)
	b, err := s.SplitQuantity(in, withFee)
	require.NoError(t, err)

	assert.Less(t, b.ToLegB.Amount, a.ToLegB.Amount)

	res, err := s.Split(units(1000), units(10000), units(10000), withFee.Curve)
	require.NoError(t, err)
	assertRatioPreserved(t, res, units(10000), units(10000))
}

// BenchmarkSplit benchmarks a full binary search
func BenchmarkSplit(b *testing.B) {
	s := NewSplitter(nil)
	in := units(1000)
	ra := units(10000)
	rb := units(12000)
	params := domain.CurveParams{Amplifier: 200, TradeFeeBps: 4, ProtocolFeeBps: 1}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = s.Split(in, ra, rb, params)
	}
}
