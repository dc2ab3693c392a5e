package zap

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/zap-engine/internal/adapters/curvepool"
	"github.com/hxuan190/zap-engine/internal/adapters/lending"
	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/services/txn"
)

// Ledger is the host ledger: the transfer primitive, balance queries and
// the operator-only issuance used to fund accounts.
type Ledger interface {
	Transfer(ctx context.Context, from, to solana.PublicKey, q domain.Quantity, memo string) error
	Balance(account solana.PublicKey, asset domain.Asset) domain.Quantity
	Balances(account solana.PublicKey) []domain.Quantity
	Assets() []domain.Asset
	Supply(asset domain.Asset) domain.Quantity
	Registered(asset domain.Asset) bool
	Register(asset domain.Asset)
	Issue(account solana.PublicKey, q domain.Quantity) error
}

// PoolQuery is the read-only pair lookup. IsReady names the validator
// refusing a pair, if any.
type PoolQuery interface {
	GetPair(ctx context.Context, pairID string) (*domain.Pair, error)
	ListPairs(ctx context.Context) ([]domain.Pair, error)
	FindByLiquidity(ctx context.Context, asset domain.Asset) (*domain.Pair, bool, error)
	IsReady(pair *domain.Pair) (string, bool)
}

// PoolContract is the write side of the pool contract that is not driven
// by tagged transfers.
type PoolContract interface {
	Account() solana.PublicKey
	Deposit(ctx context.Context, owner solana.PublicKey, pairID string) (domain.Quantity, error)
	CreatePair(ctx context.Context, seeder solana.PublicKey, pairID string, seed0, seed1 domain.Quantity, amplifier uint64) (*domain.Pair, error)
	Pending(owner solana.PublicKey, pairID string) (domain.Quantity, domain.Quantity, error)
	GetCurveConfig() curvepool.Config
	SetCurveConfig(cfg curvepool.Config) error
}

// Wrapper converts assets to and from lending receipts.
type Wrapper interface {
	IsWrapped(asset domain.Asset) bool
	WrappedCounterpart(underlying domain.Asset) (domain.Asset, bool)
	Underlying(wrapped domain.Asset) (domain.Asset, bool)
	PreviewWrap(q domain.Quantity) (domain.Quantity, error)
	WrapAll(owner solana.PublicKey, underlying domain.Asset) txn.Step
	UnwrapAll(owner solana.PublicKey, wrapped, target domain.Asset) txn.Step
}

// MarketLister lists new lending markets.
type MarketLister interface {
	AddMarket(underlying domain.Asset, wrappedCode string, rateBps uint64) (domain.Asset, error)
	Markets() []lending.Market
}
