package zap

import (
	"context"
	"fmt"
	"strings"

	"github.com/hxuan190/zap-engine/internal/domain"
)

// ParseMemo extracts the symbol code carried by an inbound transfer memo.
func ParseMemo(memo string) (string, error) {
	code := strings.TrimSpace(memo)
	if !domain.ValidSymbolCode(code) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidMemo, memo)
	}
	return code, nil
}

// resolveInstruction decides what an inbound quantity asks for. Liquidity
// of a known pair is a withdrawal into the memo symbol; anything else is a
// deposit into the pair the memo names.
func (svc *Service) resolveInstruction(ctx context.Context, in domain.Quantity, memo string) (domain.Instruction, error) {
	code, err := ParseMemo(memo)
	if err != nil {
		return nil, err
	}
	pair, ok, err := svc.pools.FindByLiquidity(ctx, in.Asset)
	if err != nil {
		return nil, err
	}
	if ok {
		return domain.WithdrawInstruction{PairID: pair.ID, Target: code}, nil
	}
	return domain.DepositInstruction{PairID: code}, nil
}
