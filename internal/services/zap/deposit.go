package zap

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/zap-engine/internal/adapters/curvepool"
	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/services/txn"
)

// depositLeg returns the quantity that will enter pair as leg A. An input
// that is not a leg but whose wrapped counterpart is gets wrapped first;
// wrapped reports that case.
func (svc *Service) depositLeg(pair *domain.Pair, in domain.Quantity) (legIn domain.Quantity, wrapped bool, err error) {
	if pair.HasLeg(in.Asset) {
		return in, false, nil
	}
	counterpart, ok := svc.wrapper.WrappedCounterpart(in.Asset)
	if !ok || !pair.HasLeg(counterpart) {
		return domain.Quantity{}, false, fmt.Errorf("%w: invalid token %s for pair %s", domain.ErrAssetMismatch, in.Asset.Code, pair.ID)
	}
	legIn, err = svc.wrapper.PreviewWrap(in)
	if err != nil {
		return domain.Quantity{}, false, err
	}
	return legIn, true, nil
}

// deposit turns in, already credited to the routing account, into
// liquidity of the pair for owner:
//
//	BalanceVerified -> Wrapped? -> Swapped -> DepositedBothLegs ->
//	ExcessRefunded -> LiquidityDelivered
//
// The handler checks the pre-condition and computes the split; every
// transition is a queued step ending with the post-condition guard.
func (svc *Service) deposit(ctx context.Context, q *txn.Queue, owner solana.PublicKey, in domain.Quantity, instr domain.DepositInstruction, res *Result) error {
	pair, err := svc.readyPair(ctx, instr.PairID)
	if err != nil {
		return err
	}
	legIn, wrapped, err := svc.depositLeg(pair, in)
	if err != nil {
		return err
	}
	legA := legIn.Asset
	legB, err := pair.Opposite(legA)
	if err != nil {
		return err
	}
	lp := pair.LPAsset()

	touched := []domain.Asset{legA, legB, lp}
	pre := []expectation{expect(in.Asset, in.Amount), expect(legB, 0), expect(lp, 0)}
	if wrapped {
		touched = append(touched, in.Asset)
		pre = append(pre, expect(legA, 0))
	}
	if err := svc.verify(phasePre, pre...); err != nil {
		return err
	}

	split, err := svc.splitter.SplitQuantity(legIn, *pair)
	if err != nil {
		return err
	}
	res.Split = split
	svc.logger.Info().
		Str("pair", pair.ID).
		Str("input", in.String()).
		Str("legA", split.ToLegA.String()).
		Str("swapIn", split.SwapIn.String()).
		Str("legB", split.ToLegB.String()).
		Int("iterations", split.Iterations).
		Msg("[zapService] deposit split")

	poolAccount := svc.contract.Account()
	if wrapped {
		q.Enqueue(
			svc.wrapper.WrapAll(svc.routing, in.Asset),
			svc.guardStep(phaseWrap, expect(in.Asset, 0), expect(legA, legIn.Amount)),
		)
	}
	if split.SwapIn.IsPositive() {
		q.Enqueue(svc.transferStep("swap", split.SwapIn, poolAccount, swapMemo(pair.ID)))
	}

	var refundA, refundB domain.Quantity
	depositMemo := curvepool.TagDeposit + "," + pair.ID
	q.Enqueue(
		svc.flushStep(legA, poolAccount, depositMemo, true, nil),
		svc.flushStep(legB, poolAccount, depositMemo, true, nil),
		txn.StepFunc("deposit "+pair.ID, func(ctx context.Context) error {
			if _, err := svc.contract.Deposit(ctx, svc.routing, pair.ID); err != nil {
				return err
			}
			// nothing may stay held by the pool on the routing account's behalf
			p0, p1, err := svc.contract.Pending(svc.routing, pair.ID)
			if err != nil {
				return err
			}
			if p0.IsPositive() || p1.IsPositive() {
				return fmt.Errorf("%w: pool still holds %s and %s", domain.ErrResidualBalance, p0, p1)
			}
			return nil
		}),
		svc.flushStep(legA, owner, TagExcess, true, &refundA),
		svc.flushStep(legB, owner, TagExcess, true, &refundB),
		svc.flushStep(lp, owner, TagLiquidity, false, &res.Delivered),
		txn.StepFunc("record refunds", func(context.Context) error {
			for _, r := range []domain.Quantity{refundA, refundB} {
				if r.IsPositive() {
					res.Refunds = append(res.Refunds, r)
				}
			}
			return nil
		}),
		svc.guardStep(phasePost, clean(touched...)...),
	)
	return nil
}

func swapMemo(pairID string) string {
	return curvepool.TagSwap + ",0," + pairID
}
