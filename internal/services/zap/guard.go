package zap

import (
	"context"
	"fmt"

	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/metrics"
	"github.com/hxuan190/zap-engine/internal/services/txn"
)

const (
	phasePre  = "pre"
	phaseWrap = "wrap"
	phasePost = "post"
)

// expectation is the exact routing balance of one asset at a checkpoint.
type expectation struct {
	asset  domain.Asset
	amount int64
}

func expect(asset domain.Asset, amount int64) expectation {
	return expectation{asset: asset, amount: amount}
}

func clean(assets ...domain.Asset) []expectation {
	out := make([]expectation, 0, len(assets))
	for _, a := range assets {
		out = append(out, expect(a, 0))
	}
	return out
}

// verify checks the routing account against exps. A mismatch before or
// during a run means stray funds; after a run it means something was left
// behind. Either way the unit must not commit.
func (svc *Service) verify(phase string, exps ...expectation) error {
	for _, e := range exps {
		held := svc.ledger.Balance(svc.routing, e.asset)
		if held.Amount == e.amount {
			continue
		}
		metrics.InvariantViolations.WithLabelValues(phase).Inc()
		svc.logger.Error().
			Str("phase", phase).
			Str("asset", e.asset.String()).
			Int64("held", held.Amount).
			Int64("expected", e.amount).
			Msg("[zapService] routing balance is not clean")

		kind := domain.ErrBalanceNotClean
		if phase == phasePost {
			kind = domain.ErrResidualBalance
		}
		return fmt.Errorf("%w: %s phase holds %s, expected %d", kind, phase, held, e.amount)
	}
	return nil
}

func (svc *Service) guardStep(phase string, exps ...expectation) txn.Step {
	return txn.StepFunc("guard "+phase, func(context.Context) error {
		return svc.verify(phase, exps...)
	})
}
