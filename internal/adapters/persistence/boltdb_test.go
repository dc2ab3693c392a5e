package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/zap-engine/internal/adapters/ledger"
	"github.com/hxuan190/zap-engine/internal/adapters/lending"
	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/services/txn"
)

var (
	tokenLedger = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	poolLedger  = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
)

func openStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "nested", "zap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testPair(t *testing.T) domain.Pair {
	t.Helper()
	usdt, err := domain.NewAsset("USDT", 4, tokenLedger)
	require.NoError(t, err)
	usdc, err := domain.NewAsset("USDC", 6, tokenLedger)
	require.NoError(t, err)
	lp, err := domain.NewAsset("USDTUSD", 6, poolLedger)
	require.NoError(t, err)
	return domain.Pair{
		ID:        "USDTUSD",
		Reserve0:  domain.NewQuantity(10_000_0000, usdt),
		Reserve1:  domain.NewQuantity(9_000_000000, usdc),
		Liquidity: domain.NewQuantity(19_000_000000, lp),
		Curve:     domain.CurveParams{Amplifier: 200, TradeFeeBps: 4, ProtocolFeeBps: 1},
	}
}

func TestStoragePairs(t *testing.T) {
	s := openStorage(t)
	pair := testPair(t)

	require.NoError(t, s.SavePairs([]domain.Pair{pair}))
	pair.Reserve0.Amount += 5
	require.NoError(t, s.SavePairs([]domain.Pair{pair}))

	loaded, err := s.LoadPairs()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, pair, loaded[0])
}

func TestStorageBalancesReplaceSnapshot(t *testing.T) {
	s := openStorage(t)
	pair := testPair(t)
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()

	require.NoError(t, s.SaveBalances([]ledger.Balance{
		{Account: alice, Amount: pair.Reserve0},
		{Account: bob, Amount: pair.Reserve1},
	}))
	require.NoError(t, s.SaveBalances([]ledger.Balance{
		{Account: bob, Amount: pair.Liquidity},
	}))

	loaded, err := s.LoadBalances()
	require.NoError(t, err)
	assert.Equal(t, []ledger.Balance{{Account: bob, Amount: pair.Liquidity}}, loaded)
}

func TestStorageEmpty(t *testing.T) {
	s := openStorage(t)

	pairs, err := s.LoadPairs()
	require.NoError(t, err)
	assert.Empty(t, pairs)

	balances, err := s.LoadBalances()
	require.NoError(t, err)
	assert.Empty(t, balances)

	markets, err := s.LoadMarkets()
	require.NoError(t, err)
	assert.Empty(t, markets)
}

func TestStorageSnapshotAndMarkets(t *testing.T) {
	s := openStorage(t)
	pair := testPair(t)
	wrapped, err := domain.NewAsset("WUSDT", 4, poolLedger)
	require.NoError(t, err)
	market := lending.Market{Underlying: pair.Reserve0.Asset, Wrapped: wrapped, RateBps: 10_250}

	require.NoError(t, s.Snapshot([]domain.Pair{pair}, nil, []lending.Market{market}))

	markets, err := s.LoadMarkets()
	require.NoError(t, err)
	assert.Equal(t, []lending.Market{market}, markets)
}

func TestStorageJournal(t *testing.T) {
	s := openStorage(t)
	start := time.UnixMilli(1_700_000_000_000)
	first := txn.Receipt{ID: "a", Label: "deposit", Steps: []string{"swap", "deposit"}, StartedAt: start, Duration: 1500 * time.Microsecond}
	second := txn.Receipt{ID: "b", Label: "flush", Steps: []string{"flush"}, StartedAt: start.Add(time.Second), Duration: time.Millisecond}

	require.NoError(t, s.Append(context.Background(), second))
	require.NoError(t, s.Append(context.Background(), first))

	receipts, err := s.Receipts()
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, "a", receipts[0].ID)
	assert.Equal(t, first.Steps, receipts[0].Steps)
	assert.Equal(t, first.Duration, receipts[0].Duration)
	assert.True(t, first.StartedAt.Equal(receipts[0].StartedAt))
	assert.Equal(t, "b", receipts[1].ID)
}
