package zap

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/zap-engine/internal/adapters/curvepool"
	"github.com/hxuan190/zap-engine/internal/adapters/ledger"
	"github.com/hxuan190/zap-engine/internal/adapters/lending"
	"github.com/hxuan190/zap-engine/internal/config"
	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/services/curve"
	"github.com/hxuan190/zap-engine/internal/services/market"
	"github.com/hxuan190/zap-engine/internal/services/txn"
	"github.com/hxuan190/zap-engine/internal/services/wrap"
)

const (
	nearConstantSum = 100_000
	stablePair      = "USDTN"
	// 10,000.0000 at four decimals
	tenThousand = 100_000_000
	oneThousand = 10_000_000
)

type fixture struct {
	svc      *Service
	ledger   *ledger.Memory
	pool      *curvepool.Contract
	marketSvc *market.Service
	lending   *lending.Protocol
	conf     *config.ZapConfig
	operator solana.PublicKey
	user     solana.PublicKey
	issuer   solana.PublicKey
	usdt     domain.Asset
	usdn     domain.Asset
}

func newFixture(t *testing.T, tradeFeeBps uint64) *fixture {
	t.Helper()
	conf := &config.ZapConfig{
		RoutingAccount:        config.DeriveAccount(config.RoutingSeed),
		PoolAccount:           config.DeriveAccount(config.PoolSeed),
		LendingAccount:        config.DeriveAccount(config.LendingSeed),
		OperatorAccount:       config.DeriveAccount(config.OperatorSeed),
		FeeAccount:            config.DeriveAccount(config.FeeSeed),
		WorkingPrecision:      18,
		SplitMaxIterations:    20,
		SplitToleranceDivisor: 1_000_000,
		TradeFeeBps:           tradeFeeBps,
	}

	led := ledger.NewMemory()
	pool := curvepool.NewContract(conf.PoolAccount, led, curve.NewQuoter(), conf.WorkingPrecision, curvepool.Config{
		TradeFeeBps: tradeFeeBps,
		FeeAccount:  conf.FeeAccount,
	})
	led.Subscribe(conf.PoolAccount, pool)
	lend := lending.NewProtocol(conf.LendingAccount, led)
	marketSvc := market.NewService(pool)

	svc, err := NewService(Deps{
		Config:       conf,
		Ledger:       led,
		Pools:        marketSvc,
		Contract:     pool,
		Wrapper:      wrap.NewAdapter(lend, led),
		Markets:      lend,
		Participants: []txn.Checkpointer{led, pool, lend},
	})
	require.NoError(t, err)

	issuer := config.DeriveAccount("zap-test-issuer")
	f := &fixture{
		svc:      svc,
		ledger:   led,
		pool:      pool,
		marketSvc: marketSvc,
		lending:   lend,
		conf:     conf,
		operator: conf.OperatorAccount,
		user:     config.DeriveAccount("zap-test-user"),
		issuer:   issuer,
		usdt:     testAsset(t, "USDT", issuer),
		usdn:     testAsset(t, "USDN", issuer),
	}
	return f
}

func testAsset(t *testing.T, code string, issuer solana.PublicKey) domain.Asset {
	t.Helper()
	a, err := domain.NewAsset(code, 4, issuer)
	require.NoError(t, err)
	return a
}

func (f *fixture) issue(t *testing.T, to solana.PublicKey, q domain.Quantity) {
	t.Helper()
	_, err := f.svc.Issue(context.Background(), f.operator, to, q)
	require.NoError(t, err)
}

// seedStablePair lists USDT/USDN with 10,000 of each.
func (f *fixture) seedStablePair(t *testing.T) *domain.Pair {
	t.Helper()
	seed0 := domain.NewQuantity(tenThousand, f.usdt)
	seed1 := domain.NewQuantity(tenThousand, f.usdn)
	f.issue(t, f.operator, seed0)
	f.issue(t, f.operator, seed1)
	pair, err := f.svc.CreatePair(context.Background(), f.operator, stablePair, seed0, seed1, nearConstantSum)
	require.NoError(t, err)
	return pair
}

func (f *fixture) send(from solana.PublicKey, q domain.Quantity, memo string) (*Result, error) {
	return f.svc.HandleTransfer(context.Background(), domain.TransferEvent{
		From:     from,
		To:       f.conf.RoutingAccount,
		Quantity: q,
		Memo:     memo,
	})
}

func (f *fixture) assertRoutingClean(t *testing.T, assets ...domain.Asset) {
	t.Helper()
	for _, a := range assets {
		assert.Zero(t, f.ledger.Balance(f.conf.RoutingAccount, a).Amount, "routing holds %s", a.Code)
	}
}

func (f *fixture) deposit(t *testing.T, amount int64) *Result {
	t.Helper()
	in := domain.NewQuantity(amount, f.usdt)
	f.issue(t, f.user, in)
	res, err := f.send(f.user, in, stablePair)
	require.NoError(t, err)
	return res
}

func TestDepositNearConstantSum(t *testing.T) {
	f := newFixture(t, 0)
	pair := f.seedStablePair(t)

	res := f.deposit(t, oneThousand)

	assert.False(t, res.Ignored)
	assert.Equal(t, "deposit", res.Instruction)
	assert.Equal(t, stablePair, res.PairID)
	require.NotNil(t, res.Split)
	require.NotNil(t, res.Receipt)

	assert.InDelta(t, oneThousand/2, res.Split.ToLegA.Amount, oneThousand/20)
	assert.InDelta(t, oneThousand/2, res.Split.ToLegB.Amount, oneThousand/20)
	assert.Equal(t, int64(oneThousand), res.Split.ToLegA.Amount+res.Split.SwapIn.Amount)

	lp := pair.LPAsset()
	assert.Equal(t, lp, res.Delivered.Asset)
	assert.InDelta(t, oneThousand, res.Delivered.Amount, oneThousand/100)
	assert.Equal(t, res.Delivered, f.ledger.Balance(f.user, lp))

	// only rounding dust comes back
	for _, r := range res.Refunds {
		assert.Less(t, r.Amount, int64(1_000), "refund %s", r)
		assert.Equal(t, r, f.ledger.Balance(f.user, r.Asset))
	}
	f.assertRoutingClean(t, f.usdt, f.usdn, lp)
}

func TestDepositTradeFeeReducesSwapOutput(t *testing.T) {
	noFee := newFixture(t, 0)
	noFee.seedStablePair(t)
	a := noFee.deposit(t, oneThousand)

	withFee := newFixture(t, 30)
	pair := withFee.seedStablePair(t)
	b := withFee.deposit(t, oneThousand)

	assert.Less(t, b.Split.ToLegB.Amount, a.Split.ToLegB.Amount)

	// the deposit still lands at the pool ratio
	after, err := withFee.pool.GetPair(context.Background(), stablePair)
	require.NoError(t, err)
	deposit := float64(b.Split.ToLegA.Amount) / float64(b.Split.ToLegB.Amount)
	ratio := float64(after.Reserve0.Amount) / float64(after.Reserve1.Amount)
	assert.InEpsilon(t, ratio, deposit, 1e-3)
	withFee.assertRoutingClean(t, withFee.usdt, withFee.usdn, pair.LPAsset())
}

func TestWithdrawIntoOneLeg(t *testing.T) {
	f := newFixture(t, 0)
	pair := f.seedStablePair(t)
	lp := pair.LPAsset()

	// a twentieth of the seed liquidity redeems 500 of each leg
	redeem := domain.NewQuantity(pair.Liquidity.Amount/20, lp)
	require.NoError(t, f.ledger.Transfer(context.Background(), f.operator, f.user, redeem, ""))

	res, err := f.send(f.user, redeem, "USDN")
	require.NoError(t, err)

	assert.Equal(t, "withdraw", res.Instruction)
	assert.Equal(t, f.usdn, res.Delivered.Asset)
	assert.LessOrEqual(t, res.Delivered.Amount, int64(oneThousand))
	assert.InDelta(t, oneThousand, res.Delivered.Amount, oneThousand/200)
	assert.Equal(t, res.Delivered, f.ledger.Balance(f.user, f.usdn))
	assert.Zero(t, f.ledger.Balance(f.user, lp).Amount)
	assert.Zero(t, f.ledger.Balance(f.user, f.usdt).Amount)
	f.assertRoutingClean(t, f.usdt, f.usdn, lp)
}

func TestWithdrawDustReturnsOtherLeg(t *testing.T) {
	f := newFixture(t, 0)
	pair := f.seedStablePair(t)
	lp := pair.LPAsset()

	// two units redeem one unit of each leg; one USDT buys no USDN
	redeem := domain.NewQuantity(2, lp)
	require.NoError(t, f.ledger.Transfer(context.Background(), f.operator, f.user, redeem, ""))

	res, err := f.send(f.user, redeem, "USDN")
	require.NoError(t, err)
	assert.Equal(t, domain.NewQuantity(1, f.usdn), res.Delivered)
	require.Len(t, res.Refunds, 1)
	assert.Equal(t, domain.NewQuantity(1, f.usdt), res.Refunds[0])
	assert.Equal(t, res.Refunds[0], f.ledger.Balance(f.user, f.usdt))
	assert.Equal(t, res.Delivered, f.ledger.Balance(f.user, f.usdn))
	f.assertRoutingClean(t, f.usdt, f.usdn, lp)

	var refundMemo string
	for _, tr := range f.ledger.Transfers() {
		if tr.To == f.user && tr.Quantity.Asset == f.usdt {
			refundMemo = tr.Memo
		}
	}
	assert.Equal(t, TagExcess, refundMemo)
}

type refusingValidator struct{}

func (refusingValidator) IsReady(*domain.Pair) bool { return false }
func (refusingValidator) Name() string              { return "paused" }

func TestDepositRequiresReadyPair(t *testing.T) {
	f := newFixture(t, 0)
	pair := f.seedStablePair(t)
	f.marketSvc.Registry().RegisterValidator(refusingValidator{})

	in := domain.NewQuantity(oneThousand, f.usdt)
	f.issue(t, f.user, in)

	_, err := f.svc.PreviewSplit(context.Background(), stablePair, in)
	require.ErrorIs(t, err, domain.ErrPairNotReady)
	assert.Contains(t, err.Error(), "paused")

	_, err = f.send(f.user, in, stablePair)
	require.ErrorIs(t, err, domain.ErrPairNotReady)
	assert.Equal(t, in, f.ledger.Balance(f.user, f.usdt))
	f.assertRoutingClean(t, f.usdt, f.usdn, pair.LPAsset())

	// liquidity can always leave a refused pair
	redeem := domain.NewQuantity(pair.Liquidity.Amount/20, pair.LPAsset())
	require.NoError(t, f.ledger.Transfer(context.Background(), f.operator, f.user, redeem, ""))
	res, err := f.send(f.user, redeem, "USDT")
	require.NoError(t, err)
	assert.Equal(t, f.usdt, res.Delivered.Asset)
}

func TestStrayBalanceAbortsRun(t *testing.T) {
	f := newFixture(t, 0)
	pair := f.seedStablePair(t)

	// stray leg B left on the routing account
	stray := domain.NewQuantity(1, f.usdn)
	require.NoError(t, f.ledger.Issue(f.conf.RoutingAccount, stray))

	in := domain.NewQuantity(oneThousand, f.usdt)
	f.issue(t, f.user, in)
	before := f.ledger.Snapshot()
	pairBefore, err := f.pool.GetPair(context.Background(), stablePair)
	require.NoError(t, err)

	_, err = f.send(f.user, in, stablePair)
	require.ErrorIs(t, err, domain.ErrBalanceNotClean)
	assert.ErrorIs(t, err, domain.ErrInvariant)

	assert.ElementsMatch(t, before, f.ledger.Snapshot())
	pairAfter, err := f.pool.GetPair(context.Background(), stablePair)
	require.NoError(t, err)
	assert.Equal(t, pairBefore, pairAfter)
	assert.Equal(t, in, f.ledger.Balance(f.user, f.usdt))
	assert.Zero(t, f.ledger.Balance(f.user, pair.LPAsset()).Amount)
}

func TestFailedRunRestoresInboundTransfer(t *testing.T) {
	f := newFixture(t, 0)
	pair := f.seedStablePair(t)
	in := domain.NewQuantity(oneThousand, f.usdt)
	f.issue(t, f.user, in)

	tests := []struct {
		name string
		q    domain.Quantity
		memo string
		err  error
	}{
		{"malformed memo", in, "usdt pair", domain.ErrInvalidMemo},
		{"unknown pair", in, "NOPE", domain.ErrPoolNotFound},
		{"liquidity into unknown target", domain.NewQuantity(10, pair.LPAsset()), "EOS", domain.ErrUnsupportedTarget},
	}
	require.NoError(t, f.ledger.Transfer(context.Background(), f.operator, f.user, domain.NewQuantity(10, pair.LPAsset()), ""))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			held := f.ledger.Balance(f.user, tt.q.Asset)
			_, err := f.send(f.user, tt.q, tt.memo)
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, held, f.ledger.Balance(f.user, tt.q.Asset))
			f.assertRoutingClean(t, f.usdt, f.usdn, pair.LPAsset())
		})
	}
}

func TestDepositRejectsForeignAsset(t *testing.T) {
	f := newFixture(t, 0)
	f.seedStablePair(t)
	eos := testAsset(t, "EOS", f.issuer)
	in := domain.NewQuantity(10_000, eos)
	f.issue(t, f.user, in)

	_, err := f.send(f.user, in, stablePair)
	require.ErrorIs(t, err, domain.ErrAssetMismatch)
	assert.Equal(t, in, f.ledger.Balance(f.user, eos))
}

func TestIgnoredTransfers(t *testing.T) {
	f := newFixture(t, 0)
	f.seedStablePair(t)
	q := domain.NewQuantity(10_000, f.usdt)
	routing := f.conf.RoutingAccount

	tests := []struct {
		name   string
		ev     domain.TransferEvent
		reason string
	}{
		{"other recipient", domain.TransferEvent{From: f.user, To: f.user, Quantity: q, Memo: stablePair}, IgnoreRecipient},
		{"from routing", domain.TransferEvent{From: routing, To: routing, Quantity: q, Memo: stablePair}, IgnoreSelf},
		{"routing memo", domain.TransferEvent{From: f.user, To: routing, Quantity: q, Memo: routing.String()}, IgnoreSelfMemo},
		{"from pool", domain.TransferEvent{From: f.conf.PoolAccount, To: routing, Quantity: q, Memo: stablePair}, IgnoreReserved},
		{"from lending", domain.TransferEvent{From: f.conf.LendingAccount, To: routing, Quantity: q, Memo: stablePair}, IgnoreReserved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.HandleTransfer(context.Background(), tt.ev)
			require.NoError(t, err)
			assert.True(t, res.Ignored)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Nil(t, res.Receipt)
		})
	}
	assert.Empty(t, f.ledger.Balances(routing))
}

func TestParseMemo(t *testing.T) {
	code, err := ParseMemo("  USDTN ")
	require.NoError(t, err)
	assert.Equal(t, "USDTN", code)

	for _, memo := range []string{"", "usdt", "USDT,1", "TOOLONGX", "US DT"} {
		_, err := ParseMemo(memo)
		assert.ErrorIs(t, err, domain.ErrInvalidMemo, memo)
	}
}

func TestFlush(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	routing := f.conf.RoutingAccount

	_, err := f.svc.Flush(ctx, f.user, f.usdt, f.user, "")
	require.ErrorIs(t, err, domain.ErrAuthorizationDenied)

	_, err = f.svc.Flush(ctx, f.operator, f.usdt, f.user, "")
	require.ErrorIs(t, err, domain.ErrNothingToFlush)

	stray := domain.NewQuantity(4_200, f.usdt)
	require.NoError(t, f.ledger.Issue(routing, stray))

	_, err = f.svc.Flush(ctx, f.user, f.usdt, f.user, "")
	require.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	assert.Equal(t, stray, f.ledger.Balance(routing, f.usdt))

	res, err := f.svc.Flush(ctx, f.operator, f.usdt, f.user, TagExcess)
	require.NoError(t, err)
	assert.Equal(t, stray, res.Quantity)
	assert.Equal(t, stray, f.ledger.Balance(f.user, f.usdt))
	f.assertRoutingClean(t, f.usdt)

	transfers := f.ledger.Transfers()
	last := transfers[len(transfers)-1]
	assert.Equal(t, TagExcess, last.Memo)
}

func TestAdminRequiresOperator(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	q := domain.NewQuantity(10, f.usdt)

	_, err := f.svc.Issue(ctx, f.user, f.user, q)
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	_, err = f.svc.CreatePair(ctx, f.user, stablePair, q, domain.NewQuantity(10, f.usdn), 100)
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	_, err = f.svc.AddMarket(ctx, f.user, f.usdt, "CUSDT", 10_000)
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	assert.Zero(t, f.ledger.Balance(f.user, f.usdt).Amount)
}

func TestSetFees(t *testing.T) {
	f := newFixture(t, 0)
	f.seedStablePair(t)
	ctx := context.Background()

	_, err := f.svc.CurveConfig(f.user)
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	_, err = f.svc.SetFees(ctx, f.user, 4, 0)
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	_, err = f.svc.SetFees(ctx, f.operator, 9_000, 1_000)
	assert.ErrorIs(t, err, domain.ErrInvalidFee)

	cfg, err := f.svc.SetFees(ctx, f.operator, 30, 5)
	require.NoError(t, err)
	assert.Equal(t, f.conf.FeeAccount, cfg.FeeAccount)

	got, err := f.svc.CurveConfig(f.operator)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	pair, err := f.svc.Pair(ctx, stablePair)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), pair.Curve.TradeFeeBps)
	assert.Equal(t, uint64(5), pair.Curve.ProtocolFeeBps)
}

func TestAssetsReportSupply(t *testing.T) {
	f := newFixture(t, 0)
	pair := f.seedStablePair(t)
	f.deposit(t, oneThousand)

	supply := map[string]int64{}
	for _, a := range f.svc.Assets() {
		supply[a.Asset.Code] = a.Supply.Amount
	}
	assert.Equal(t, int64(tenThousand+oneThousand), supply["USDT"])
	assert.Equal(t, int64(tenThousand), supply["USDN"])
	after, err := f.svc.Pair(context.Background(), pair.ID)
	require.NoError(t, err)
	assert.Equal(t, after.Liquidity.Amount, supply[stablePair])
}

func TestCreatePairFailureIsAtomic(t *testing.T) {
	f := newFixture(t, 0)
	seed0 := domain.NewQuantity(tenThousand, f.usdt)
	f.issue(t, f.operator, seed0)
	f.ledger.Register(f.usdn)

	// leg B was never funded
	_, err := f.svc.CreatePair(context.Background(), f.operator, stablePair, seed0, domain.NewQuantity(tenThousand, f.usdn), nearConstantSum)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, seed0, f.ledger.Balance(f.operator, f.usdt))

	_, err = f.svc.Pair(context.Background(), stablePair)
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)
}

// wrappedFixture lists a USDC lending market and a CUSDC/USDT pair.
func wrappedFixture(t *testing.T) (*fixture, domain.Asset, domain.Asset, *domain.Pair) {
	t.Helper()
	f := newFixture(t, 0)
	ctx := context.Background()
	usdc := testAsset(t, "USDC", f.issuer)

	cusdc, err := f.svc.AddMarket(ctx, f.operator, usdc, "CUSDC", lending.RateDenominator)
	require.NoError(t, err)
	assert.True(t, f.svc.wrapper.IsWrapped(cusdc))

	f.issue(t, f.operator, domain.NewQuantity(tenThousand, usdc))
	wrapped, err := f.lending.Wrap(ctx, f.operator, domain.NewQuantity(tenThousand, usdc))
	require.NoError(t, err)
	seed1 := domain.NewQuantity(tenThousand, f.usdt)
	f.issue(t, f.operator, seed1)

	pair, err := f.svc.CreatePair(ctx, f.operator, "CUSDCT", wrapped, seed1, nearConstantSum)
	require.NoError(t, err)
	return f, usdc, cusdc, pair
}

func TestDepositWrapsUnderlying(t *testing.T) {
	f, usdc, cusdc, pair := wrappedFixture(t)
	in := domain.NewQuantity(oneThousand, usdc)
	f.issue(t, f.user, in)

	split, err := f.svc.PreviewSplit(context.Background(), pair.ID, in)
	require.NoError(t, err)
	assert.Equal(t, cusdc, split.ToLegA.Asset)

	res, err := f.send(f.user, in, pair.ID)
	require.NoError(t, err)
	assert.Equal(t, split, res.Split)
	assert.Equal(t, pair.LPAsset(), res.Delivered.Asset)
	assert.InDelta(t, oneThousand, res.Delivered.Amount, oneThousand/100)
	assert.Zero(t, f.ledger.Balance(f.user, usdc).Amount)
	f.assertRoutingClean(t, usdc, cusdc, f.usdt, pair.LPAsset())
}

func TestWithdrawUnwrapsTarget(t *testing.T) {
	f, usdc, cusdc, pair := wrappedFixture(t)
	redeem := domain.NewQuantity(pair.Liquidity.Amount/20, pair.LPAsset())
	require.NoError(t, f.ledger.Transfer(context.Background(), f.operator, f.user, redeem, ""))

	res, err := f.send(f.user, redeem, "USDC")
	require.NoError(t, err)
	assert.Equal(t, usdc, res.Delivered.Asset)
	assert.InDelta(t, oneThousand, res.Delivered.Amount, oneThousand/200)
	assert.Equal(t, res.Delivered, f.ledger.Balance(f.user, usdc))
	assert.Zero(t, f.ledger.Balance(f.user, cusdc).Amount)
	f.assertRoutingClean(t, usdc, cusdc, f.usdt, pair.LPAsset())
}

func TestWithdrawIntoWrappedLegDirectly(t *testing.T) {
	f, _, cusdc, pair := wrappedFixture(t)
	redeem := domain.NewQuantity(pair.Liquidity.Amount/20, pair.LPAsset())
	require.NoError(t, f.ledger.Transfer(context.Background(), f.operator, f.user, redeem, ""))

	res, err := f.send(f.user, redeem, "CUSDC")
	require.NoError(t, err)
	assert.Equal(t, cusdc, res.Delivered.Asset)
}

func TestFindAsset(t *testing.T) {
	f := newFixture(t, 0)
	f.seedStablePair(t)

	a, err := f.svc.FindAsset("USDT", nil)
	require.NoError(t, err)
	assert.Equal(t, f.usdt, a)

	_, err = f.svc.FindAsset("EOS", nil)
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)

	other := config.DeriveAccount("zap-test-other-issuer")
	f.issue(t, f.user, domain.NewQuantity(1, testAsset(t, "USDT", other)))
	_, err = f.svc.FindAsset("USDT", nil)
	assert.Error(t, err)
	a, err = f.svc.FindAsset("USDT", &other)
	require.NoError(t, err)
	assert.Equal(t, other, a.Ledger)
}
