package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/zap-engine/internal/domain"
)

var (
	tokenLedger = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	poolLedger  = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
)

type fakeSource struct {
	pairs map[string]domain.Pair
	err   error
	reads int
}

func (f *fakeSource) GetPair(_ context.Context, id string) (*domain.Pair, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.pairs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPoolNotFound, id)
	}
	return &p, nil
}

func (f *fakeSource) ListPairs(_ context.Context) ([]domain.Pair, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Pair, 0, len(f.pairs))
	for _, p := range f.pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func asset(t *testing.T, code string, ledger solana.PublicKey) domain.Asset {
	t.Helper()
	a, err := domain.NewAsset(code, 4, ledger)
	require.NoError(t, err)
	return a
}

func pair(t *testing.T, id, code0, code1 string, r0, r1 int64) domain.Pair {
	t.Helper()
	lp := asset(t, id, poolLedger)
	return domain.Pair{
		ID:        id,
		Reserve0:  domain.NewQuantity(r0, asset(t, code0, tokenLedger)),
		Reserve1:  domain.NewQuantity(r1, asset(t, code1, tokenLedger)),
		Liquidity: domain.NewQuantity(r0+r1, lp),
		Curve:     domain.CurveParams{Amplifier: 200, TradeFeeBps: 4},
	}
}

func TestGetPairReadsThrough(t *testing.T) {
	src := &fakeSource{pairs: map[string]domain.Pair{"USDTUSD": pair(t, "USDTUSD", "USDT", "USDC", 100, 100)}}
	svc := NewService(src)
	ctx := context.Background()

	p, err := svc.GetPair(ctx, "USDTUSD")
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.Reserve0.Amount)

	updated := src.pairs["USDTUSD"]
	updated.Reserve0.Amount = 250
	src.pairs["USDTUSD"] = updated

	p, err = svc.GetPair(ctx, "USDTUSD")
	require.NoError(t, err)
	assert.Equal(t, int64(250), p.Reserve0.Amount, "no caching between lookups")
	assert.Equal(t, 2, src.reads)

	curve, err := svc.GetCurveParams(ctx, "USDTUSD")
	require.NoError(t, err)
	assert.Equal(t, uint64(200), curve.Amplifier)
}

func TestGetPairNotFound(t *testing.T) {
	svc := NewService(&fakeSource{pairs: map[string]domain.Pair{}})

	_, err := svc.GetPair(context.Background(), "NOPE")
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetCurveParams(context.Background(), "NOPE")
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)
}

func TestSourceFailurePropagates(t *testing.T) {
	boom := errors.New("contract offline")
	svc := NewService(&fakeSource{err: boom})

	_, err := svc.ListPairs(context.Background())
	assert.ErrorIs(t, err, boom)
	_, _, err = svc.FindByLiquidity(context.Background(), asset(t, "USDTUSD", poolLedger))
	assert.ErrorIs(t, err, boom)
}

func TestFindByLiquidity(t *testing.T) {
	src := &fakeSource{pairs: map[string]domain.Pair{}}
	svc := NewService(src)
	ctx := context.Background()
	lp := asset(t, "USDTUSD", poolLedger)

	_, ok, err := svc.FindByLiquidity(ctx, lp)
	require.NoError(t, err)
	assert.False(t, ok)

	src.pairs["USDTUSD"] = pair(t, "USDTUSD", "USDT", "USDC", 100, 100)
	p, ok, err := svc.FindByLiquidity(ctx, lp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "USDTUSD", p.ID)

	_, ok, err = svc.FindByLiquidity(ctx, asset(t, "USDT", tokenLedger))
	require.NoError(t, err)
	assert.False(t, ok, "a reserve leg is not liquidity")

	_, ok, err = svc.FindByLiquidity(ctx, asset(t, "USDTUSD", tokenLedger))
	require.NoError(t, err)
	assert.False(t, ok, "same code on another ledger is a different asset")

	delete(src.pairs, "USDTUSD")
	_, ok, err = svc.FindByLiquidity(ctx, lp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadyPairs(t *testing.T) {
	empty := pair(t, "EMPTY", "USDT", "USDC", 0, 100)
	feeHeavy := pair(t, "FEES", "USDT", "USDC", 100, 100)
	feeHeavy.Curve.TradeFeeBps = 9_000
	feeHeavy.Curve.ProtocolFeeBps = 1_000

	src := &fakeSource{pairs: map[string]domain.Pair{
		"USDTUSD": pair(t, "USDTUSD", "USDT", "USDC", 100, 100),
		"EMPTY":   empty,
		"FEES":    feeHeavy,
	}}
	svc := NewService(src)

	ready, err := svc.ReadyPairs(context.Background())
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "USDTUSD", ready[0].ID)

	name, ok := svc.IsReady(&empty)
	assert.False(t, ok)
	assert.Equal(t, "seeded", name)

	name, ok = svc.IsReady(&feeHeavy)
	assert.False(t, ok)
	assert.Equal(t, "curve", name)
}

func TestShardedAssetIndex(t *testing.T) {
	idx := NewShardedAssetIndex()
	a := asset(t, "AAA", poolLedger)
	b := asset(t, "BBB", poolLedger)

	idx.Set(a, "P1")
	idx.Set(b, "P2")
	assert.Equal(t, 2, idx.Len())

	got, ok := idx.Get(a)
	require.True(t, ok)
	assert.Equal(t, "P1", got)

	seen := 0
	idx.Range(func(domain.Asset, string) bool {
		seen++
		return false
	})
	assert.Equal(t, 1, seen, "range stops when f returns false")

	idx.Delete(a)
	_, ok = idx.Get(a)
	assert.False(t, ok)
}
