package zap

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/metrics"
	"github.com/hxuan190/zap-engine/internal/services/txn"
)

// Transfer tags the zap writes on outbound transfers.
const (
	TagExcess    = "excess"
	TagLiquidity = "liquidity"
	TagWithdraw  = "withdraw"
	TagFlush     = "flush"
)

// FlushResult is what an operator flush moved.
type FlushResult struct {
	Receipt  *txn.Receipt    `json:"receipt"`
	Quantity domain.Quantity `json:"quantity"`
}

// Flush sweeps the routing account's whole balance of asset to to. Only
// the operator may call it; it is how stranded balances are recovered.
func (svc *Service) Flush(ctx context.Context, caller solana.PublicKey, asset domain.Asset, to solana.PublicKey, tag string) (*FlushResult, error) {
	if err := svc.requireOperator(caller); err != nil {
		return nil, err
	}
	if tag == "" {
		tag = TagFlush
	}

	var moved domain.Quantity
	receipt, err := svc.executor.Run(ctx, "flush", func(ctx context.Context, q *txn.Queue) error {
		q.Enqueue(svc.flushStep(asset, to, tag, false, &moved))
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info().
		Str("asset", asset.String()).
		Str("to", to.String()).
		Str("quantity", moved.String()).
		Str("tag", tag).
		Msg("[zapService] flushed")
	return &FlushResult{Receipt: receipt, Quantity: moved}, nil
}

// sweep transfers the routing account's whole balance of asset. An empty
// balance is skipped when skipEmpty is set and an error otherwise.
func (svc *Service) sweep(ctx context.Context, asset domain.Asset, to solana.PublicKey, tag string, skipEmpty bool) (domain.Quantity, error) {
	bal := svc.ledger.Balance(svc.routing, asset)
	if !bal.IsPositive() {
		if skipEmpty {
			return domain.Zero(asset), nil
		}
		return domain.Quantity{}, fmt.Errorf("%w: routing holds no %s", domain.ErrNothingToFlush, asset.Code)
	}
	if err := svc.ledger.Transfer(ctx, svc.routing, to, bal, tag); err != nil {
		return domain.Quantity{}, err
	}
	metrics.Flushes.WithLabelValues(flushLabel(tag)).Inc()
	return bal, nil
}

// flushStep defers a sweep to execution time. moved, when set, receives
// the swept quantity.
func (svc *Service) flushStep(asset domain.Asset, to solana.PublicKey, tag string, skipEmpty bool, moved *domain.Quantity) txn.Step {
	return txn.StepFunc("flush "+asset.Code+" "+tag, func(ctx context.Context) error {
		q, err := svc.sweep(ctx, asset, to, tag, skipEmpty)
		if err != nil {
			return err
		}
		if moved != nil {
			*moved = q
		}
		return nil
	})
}

// transferStep defers a transfer of exactly q.
func (svc *Service) transferStep(name string, q domain.Quantity, to solana.PublicKey, memo string) txn.Step {
	return txn.StepFunc(name+" "+q.Asset.Code, func(ctx context.Context) error {
		return svc.ledger.Transfer(ctx, svc.routing, to, q, memo)
	})
}

// flushLabel keeps metric cardinality bounded: pool memos carry a pair id.
func flushLabel(tag string) string {
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i]
		}
	}
	return tag
}
