package curve

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/zap-engine/internal/domain"
)

var (
	ledgerA = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	ledgerB = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
)

func testAsset(t testing.TB, code string, precision uint8) domain.Asset {
	t.Helper()
	ledger := ledgerA
	if code != "USDT" {
		ledger = ledgerB
	}
	a, err := domain.NewAsset(code, precision, ledger)
	require.NoError(t, err)
	return a
}

// units returns n whole tokens at 18 decimals.
func units(n uint64) *uint256.Int {
	v := uint256.NewInt(n)
	return v.Mul(v, Pow10(18))
}

func TestQuoteOutputNearConstantSum(t *testing.T) {
	q := NewQuoter()
	in := units(1000)

	out, err := q.QuoteOutput(in, units(10000), units(10000), 100_000, 0)
	require.NoError(t, err)

	assert.True(t, out.Lt(in), "balanced stableswap never pays more than constant-sum")
	minOut := new(uint256.Int).Div(new(uint256.Int).Mul(in, uint256.NewInt(9999)), uint256.NewInt(10000))
	assert.True(t, out.Gt(minOut), "high amplifier should price within 1bp of constant-sum, got %s", out.Dec())
}

func TestQuoteOutputLowAmplifierAboveConstantProduct(t *testing.T) {
	q := NewQuoter()
	in := units(1000)
	reserve := units(10000)

	out, err := q.QuoteOutput(in, reserve, reserve, 1, 0)
	require.NoError(t, err)

	// constant product: r*in/(r+in)
	cp := new(uint256.Int).Mul(reserve, in)
	cp.Div(cp, new(uint256.Int).Add(reserve, in))

	assert.True(t, out.Gt(cp), "stableswap %s should beat constant product %s", out.Dec(), cp.Dec())
	assert.True(t, out.Lt(in))
}

func TestQuoteOutputMonotonic(t *testing.T) {
	q := NewQuoter()
	prev := new(uint256.Int)
	for _, n := range []uint64{1, 10, 100, 500, 1000, 5000, 9000} {
		out, err := q.QuoteOutput(units(n), units(10000), units(10000), 200, 4)
		require.NoError(t, err)
		assert.True(t, out.Gt(prev), "output must grow with input (in=%d)", n)
		prev = out
	}
}

func TestQuoteOutputFee(t *testing.T) {
	q := NewQuoter()
	in := units(1000)

	noFee, err := q.QuoteOutput(in, units(10000), units(12000), 100, 0)
	require.NoError(t, err)
	withFee, err := q.QuoteOutput(in, units(10000), units(12000), 100, 30)
	require.NoError(t, err)

	expected := new(uint256.Int).Mul(noFee, uint256.NewInt(9970))
	expected.Div(expected, uint256.NewInt(10000))
	assert.Equal(t, expected.Dec(), withFee.Dec())
}

func TestQuoteOutputValidation(t *testing.T) {
	q := NewQuoter()
	r := units(100)

	_, err := q.QuoteOutput(units(1), r, r, 0, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmplifier)

	_, err = q.QuoteOutput(units(1), r, r, 100, 10001)
	assert.ErrorIs(t, err, domain.ErrInvalidFee)

	_, err = q.QuoteOutput(units(1), new(uint256.Int), r, 100, 0)
	assert.ErrorIs(t, err, domain.ErrEmptyReserves)

	out, err := q.QuoteOutput(new(uint256.Int), r, r, 100, 0)
	require.NoError(t, err)
	assert.True(t, out.IsZero())
}

func TestGetDBalanced(t *testing.T) {
	q := NewQuoter()
	d, err := q.GetD(units(5000), units(5000), 100)
	require.NoError(t, err)
	assert.Equal(t, units(10000).Dec(), d.Dec())
}

func TestGetDDoesNotConverge(t *testing.T) {
	q := &Quoter{MaxIterations: 1}
	_, err := q.GetD(units(10000), units(30000), 100)
	require.ErrorIs(t, err, domain.ErrPricingDidNotConverge)
	assert.ErrorIs(t, err, domain.ErrConvergence)
}

func TestQuoteProtocolFee(t *testing.T) {
	usdt := testAsset(t, "USDT", 4)
	usdn := testAsset(t, "USDN", 4)
	pair := domain.Pair{
		ID:       "USDTN",
		Reserve0: domain.NewQuantity(100_000_000, usdn),
		Reserve1: domain.NewQuantity(100_000_000, usdt),
		Curve:    domain.CurveParams{Amplifier: 100, TradeFeeBps: 4, ProtocolFeeBps: 10},
	}

	quote, err := NewQuoter().Quote(pair, domain.NewQuantity(10_000_000, usdt), DefaultWorkingPrecision)
	require.NoError(t, err)

	assert.Equal(t, domain.NewQuantity(10_000, usdt), quote.ProtocolFee)
	assert.Equal(t, usdn, quote.AmountOut.Asset)
	assert.Less(t, quote.AmountOut.Amount, int64(10_000_000-10_000))
	assert.Greater(t, quote.AmountOut.Amount, int64(9_900_000))

	_, err = NewQuoter().Quote(pair, domain.NewQuantity(1, testAsset(t, "EOS", 4)), DefaultWorkingPrecision)
	assert.ErrorIs(t, err, domain.ErrAssetMismatch)
}

// BenchmarkQuoteOutput benchmarks one invariant evaluation
func BenchmarkQuoteOutput(b *testing.B) {
	q := NewQuoter()
	in := units(1000)
	ra := units(10000)
	rb := units(12000)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = q.QuoteOutput(in, ra, rb, 200, 4)
	}
}
