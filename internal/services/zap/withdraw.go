package zap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/zap-engine/internal/adapters/curvepool"
	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/services/txn"
)

// withdrawTarget is where a withdrawal ends: the leg everything is swapped
// into and, for wrapped legs, the asset that leg unwraps to.
type withdrawTarget struct {
	leg      domain.Asset
	unwrapTo *domain.Asset
}

func (t withdrawTarget) final() domain.Asset {
	if t.unwrapTo != nil {
		return *t.unwrapTo
	}
	return t.leg
}

// resolveTarget maps a symbol code to a reserve leg, directly or through
// one unwrap.
func (svc *Service) resolveTarget(pair *domain.Pair, code string) (withdrawTarget, error) {
	legs := []domain.Asset{pair.Reserve0.Asset, pair.Reserve1.Asset}
	for _, leg := range legs {
		if leg.Code == code {
			return withdrawTarget{leg: leg}, nil
		}
	}
	for _, leg := range legs {
		if !svc.wrapper.IsWrapped(leg) {
			continue
		}
		if underlying, ok := svc.wrapper.Underlying(leg); ok && underlying.Code == code {
			return withdrawTarget{leg: leg, unwrapTo: &underlying}, nil
		}
	}
	return withdrawTarget{}, fmt.Errorf("%w: %s is not reachable from pair %s", domain.ErrUnsupportedTarget, code, pair.ID)
}

// withdraw redeems in, liquidity already credited to the routing account,
// into the target asset for owner:
//
//	BalanceVerified -> Redeemed -> SwappedOneLeg -> UnwrappedIfNeeded? ->
//	Delivered
//
// A redeemed other leg too small to buy one unit of the target is returned
// to owner as excess instead of aborting the run.
func (svc *Service) withdraw(ctx context.Context, q *txn.Queue, owner solana.PublicKey, in domain.Quantity, instr domain.WithdrawInstruction, res *Result) error {
	pair, err := svc.pools.GetPair(ctx, instr.PairID)
	if err != nil {
		return err
	}
	lp := pair.LPAsset()
	if in.Asset != lp {
		return fmt.Errorf("%w: %s is not liquidity of %s", domain.ErrAssetMismatch, in.Asset.Code, pair.ID)
	}
	target, err := svc.resolveTarget(pair, instr.Target)
	if err != nil {
		return err
	}
	other, err := pair.Opposite(target.leg)
	if err != nil {
		return err
	}

	touched := []domain.Asset{lp, target.leg, other}
	if target.unwrapTo != nil {
		touched = append(touched, *target.unwrapTo)
	}
	pre := append([]expectation{expect(lp, in.Amount)}, clean(touched[1:]...)...)
	if err := svc.verify(phasePre, pre...); err != nil {
		return err
	}

	svc.logger.Info().
		Str("pair", pair.ID).
		Str("liquidity", in.String()).
		Str("target", target.final().Code).
		Msg("[zapService] withdraw")

	poolAccount := svc.contract.Account()
	q.Enqueue(
		svc.transferStep("redeem", in, poolAccount, curvepool.TagWithdraw+","+pair.ID),
		svc.swapOrReturnStep(pair.ID, other, owner, res),
	)
	if target.unwrapTo != nil {
		q.Enqueue(svc.wrapper.UnwrapAll(svc.routing, target.leg, *target.unwrapTo))
	}
	q.Enqueue(
		svc.flushStep(target.final(), owner, TagWithdraw, false, &res.Delivered),
		svc.guardStep(phasePost, clean(touched...)...),
	)
	return nil
}

// swapOrReturnStep swaps the routing balance of other into the opposite
// leg of pairID. Dust that quotes to nothing goes back to owner.
func (svc *Service) swapOrReturnStep(pairID string, other domain.Asset, owner solana.PublicKey, res *Result) txn.Step {
	return txn.StepFunc("swap "+other.Code+" "+pairID, func(ctx context.Context) error {
		bal := svc.ledger.Balance(svc.routing, other)
		if !bal.IsPositive() {
			return nil
		}
		pair, err := svc.pools.GetPair(ctx, pairID)
		if err != nil {
			return err
		}
		quote, err := svc.quoter.Quote(*pair, bal, svc.conf.WorkingPrecision)
		switch {
		case errors.Is(err, domain.ErrEmptyReserves):
		case err != nil:
			return err
		case quote.AmountOut.IsPositive():
			return svc.ledger.Transfer(ctx, svc.routing, svc.contract.Account(), bal, swapMemo(pairID))
		}
		refund, err := svc.sweep(ctx, other, owner, TagExcess, false)
		if err != nil {
			return err
		}
		svc.logger.Debug().Str("pair", pairID).Str("refund", refund.String()).Msg("[zapService] withdraw dust returned")
		res.Refunds = append(res.Refunds, refund)
		return nil
	})
}
