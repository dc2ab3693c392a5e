package zap

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/zap-engine/internal/adapters/curvepool"
	"github.com/hxuan190/zap-engine/internal/adapters/lending"
	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/services/txn"
)

func (svc *Service) requireOperator(caller solana.PublicKey) error {
	if caller.IsZero() || caller != svc.conf.OperatorAccount {
		return fmt.Errorf("%w: %s is not the operator", domain.ErrAuthorizationDenied, caller)
	}
	return nil
}

// Issue mints q to account.
func (svc *Service) Issue(ctx context.Context, caller, account solana.PublicKey, q domain.Quantity) (*txn.Receipt, error) {
	if err := svc.requireOperator(caller); err != nil {
		return nil, err
	}
	if !q.IsPositive() {
		return nil, fmt.Errorf("%w: issue %s", domain.ErrInvalidQuantity, q)
	}
	return svc.executor.Run(ctx, "issue", func(ctx context.Context, _ *txn.Queue) error {
		if !svc.ledger.Registered(q.Asset) {
			svc.ledger.Register(q.Asset)
			svc.logger.Info().Str("asset", q.Asset.String()).Msg("[zapService] asset registered")
		}
		return svc.ledger.Issue(account, q)
	})
}

// CurveConfig returns the pool contract's fee settings.
func (svc *Service) CurveConfig(caller solana.PublicKey) (curvepool.Config, error) {
	if err := svc.requireOperator(caller); err != nil {
		return curvepool.Config{}, err
	}
	return svc.contract.GetCurveConfig(), nil
}

// SetFees replaces the trade and protocol fees of every pair, keeping the
// fee account.
func (svc *Service) SetFees(ctx context.Context, caller solana.PublicKey, tradeFeeBps, protocolFeeBps uint64) (curvepool.Config, error) {
	if err := svc.requireOperator(caller); err != nil {
		return curvepool.Config{}, err
	}
	if tradeFeeBps+protocolFeeBps >= domain.BpsDenominator {
		return curvepool.Config{}, fmt.Errorf("%w: %d+%d bps", domain.ErrInvalidFee, tradeFeeBps, protocolFeeBps)
	}
	cfg := svc.contract.GetCurveConfig()
	cfg.TradeFeeBps = tradeFeeBps
	cfg.ProtocolFeeBps = protocolFeeBps
	_, err := svc.executor.Run(ctx, "set-fees", func(context.Context, *txn.Queue) error {
		return svc.contract.SetCurveConfig(cfg)
	})
	if err != nil {
		return curvepool.Config{}, err
	}
	svc.logger.Info().Uint64("tradeFeeBps", tradeFeeBps).Uint64("protocolFeeBps", protocolFeeBps).Msg("[zapService] fees updated")
	return cfg, nil
}

// CreatePair lists a pair seeded from the operator's balances.
func (svc *Service) CreatePair(ctx context.Context, caller solana.PublicKey, pairID string, seed0, seed1 domain.Quantity, amplifier uint64) (*domain.Pair, error) {
	if err := svc.requireOperator(caller); err != nil {
		return nil, err
	}
	var pair *domain.Pair
	_, err := svc.executor.Run(ctx, "create-pair", func(ctx context.Context, _ *txn.Queue) error {
		var err error
		pair, err = svc.contract.CreatePair(ctx, caller, pairID, seed0, seed1, amplifier)
		return err
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info().Str("pair", pair.ID).Uint64("amplifier", amplifier).Msg("[zapService] pair created")
	return pair, nil
}

// AddMarket lists a lending market wrapping underlying.
func (svc *Service) AddMarket(ctx context.Context, caller solana.PublicKey, underlying domain.Asset, wrappedCode string, rateBps uint64) (domain.Asset, error) {
	if err := svc.requireOperator(caller); err != nil {
		return domain.Asset{}, err
	}
	if svc.markets == nil {
		return domain.Asset{}, fmt.Errorf("%w: no lending protocol configured", domain.ErrAssetNotFound)
	}
	var wrapped domain.Asset
	_, err := svc.executor.Run(ctx, "add-market", func(context.Context, *txn.Queue) error {
		var err error
		wrapped, err = svc.markets.AddMarket(underlying, wrappedCode, rateBps)
		return err
	})
	if err != nil {
		return domain.Asset{}, err
	}
	return wrapped, nil
}

// Markets lists the lending markets deposits can wrap into.
func (svc *Service) Markets() []lending.Market {
	if svc.markets == nil {
		return nil
	}
	return svc.markets.Markets()
}

// Pair returns the current state of pairID.
func (svc *Service) Pair(ctx context.Context, pairID string) (*domain.Pair, error) {
	return svc.pools.GetPair(ctx, pairID)
}
