package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/zap-engine/internal/adapters/curvepool"
	"github.com/hxuan190/zap-engine/internal/adapters/ledger"
	"github.com/hxuan190/zap-engine/internal/adapters/lending"
	"github.com/hxuan190/zap-engine/internal/config"
	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/services/curve"
	"github.com/hxuan190/zap-engine/internal/services/market"
	"github.com/hxuan190/zap-engine/internal/services/txn"
	"github.com/hxuan190/zap-engine/internal/services/wrap"
	"github.com/hxuan190/zap-engine/internal/services/zap"
)

// sandbox is a private ledger with one seeded pair.
type sandbox struct {
	svc    *zap.Service
	ledger *ledger.Memory
	pair   *domain.Pair
	user   solana.PublicKey
	assets map[string]domain.Asset
}

func newSandbox(ctx context.Context, cfg config.CLIConfig) (*sandbox, error) {
	zapConf := &config.ZapConfig{
		RoutingAccount:        config.DeriveAccount(config.RoutingSeed),
		PoolAccount:           config.DeriveAccount(config.PoolSeed),
		LendingAccount:        config.DeriveAccount(config.LendingSeed),
		OperatorAccount:       config.DeriveAccount(config.OperatorSeed),
		FeeAccount:            config.DeriveAccount(config.FeeSeed),
		WorkingPrecision:      cfg.WorkingPrecision,
		SplitMaxIterations:    20,
		SplitToleranceDivisor: 1_000_000,
		TradeFeeBps:           cfg.TradeFeeBps,
		ProtocolFeeBps:        cfg.ProtocolFeeBps,
	}
	if err := zapConf.Validate(); err != nil {
		return nil, err
	}

	led := ledger.NewMemory()
	pool := curvepool.NewContract(zapConf.PoolAccount, led, curve.NewQuoter(), zapConf.WorkingPrecision, curvepool.Config{
		TradeFeeBps:    cfg.TradeFeeBps,
		ProtocolFeeBps: cfg.ProtocolFeeBps,
		FeeAccount:     zapConf.FeeAccount,
	})
	led.Subscribe(zapConf.PoolAccount, pool)
	lend := lending.NewProtocol(zapConf.LendingAccount, led)

	svc, err := zap.NewService(zap.Deps{
		Config:       zapConf,
		Ledger:       led,
		Pools:        market.NewService(pool),
		Contract:     pool,
		Wrapper:      wrap.NewAdapter(lend, led),
		Markets:      lend,
		Participants: []txn.Checkpointer{led, pool, lend},
	})
	if err != nil {
		return nil, err
	}

	issuer := config.DeriveAccount("zapctl-issuer")
	asset0, err := domain.NewAsset(cfg.Code0, cfg.Precision0, issuer)
	if err != nil {
		return nil, err
	}
	asset1, err := domain.NewAsset(cfg.Code1, cfg.Precision1, issuer)
	if err != nil {
		return nil, err
	}
	seed0, err := domain.ParseQuantity(cfg.Reserve0, asset0)
	if err != nil {
		return nil, fmt.Errorf("reserve0: %w", err)
	}
	seed1, err := domain.ParseQuantity(cfg.Reserve1, asset1)
	if err != nil {
		return nil, fmt.Errorf("reserve1: %w", err)
	}

	operator := zapConf.OperatorAccount
	for _, q := range []domain.Quantity{seed0, seed1} {
		if _, err := svc.Issue(ctx, operator, operator, q); err != nil {
			return nil, err
		}
	}
	pair, err := svc.CreatePair(ctx, operator, cfg.Pair, seed0, seed1, cfg.Amplifier)
	if err != nil {
		return nil, err
	}

	return &sandbox{
		svc:    svc,
		ledger: led,
		pair:   pair,
		user:   config.DeriveAccount("zapctl-user"),
		assets: map[string]domain.Asset{
			asset0.Code:        asset0,
			asset1.Code:        asset1,
			pair.LPAsset().Code: pair.LPAsset(),
		},
	}, nil
}

// input parses the quantity flag in the asset flag's asset.
func (s *sandbox) input(cfg config.CLIConfig) (domain.Quantity, error) {
	code := cfg.Asset
	if code == "" {
		code = cfg.Code0
	}
	asset, ok := s.assets[code]
	if !ok {
		return domain.Quantity{}, fmt.Errorf("%w: %s is not in pair %s", domain.ErrAssetMismatch, code, s.pair.ID)
	}
	return domain.ParseQuantity(cfg.Quantity, asset)
}

// send funds the user with q and transfers it to the routing account.
func (s *sandbox) send(ctx context.Context, q domain.Quantity, memo string, fund bool) (*zap.Result, error) {
	if fund {
		if _, err := s.svc.Issue(ctx, s.svc.Operator(), s.user, q); err != nil {
			return nil, err
		}
	}
	return s.svc.HandleTransfer(ctx, domain.TransferEvent{
		From:     s.user,
		To:       s.svc.Routing(),
		Quantity: q,
		Memo:     memo,
	})
}
