package market

import (
	"github.com/hxuan190/zap-engine/internal/domain"
)

// SeededValidator requires both reserve legs and the LP supply to be non-empty.
type SeededValidator struct{}

func NewSeededValidator() *SeededValidator {
	return &SeededValidator{}
}

func (v *SeededValidator) IsReady(pair *domain.Pair) bool {
	return pair != nil && pair.Seeded() && pair.Liquidity.IsPositive()
}

func (v *SeededValidator) Name() string {
	return "seeded"
}

// CurveValidator requires a well formed pair with usable curve parameters.
type CurveValidator struct {
	maxFeeBps uint64
}

// NewCurveValidator creates a validator rejecting pairs whose combined fees
// reach maxFeeBps.
func NewCurveValidator(maxFeeBps uint64) *CurveValidator {
	if maxFeeBps == 0 || maxFeeBps > domain.BpsDenominator {
		maxFeeBps = domain.BpsDenominator
	}
	return &CurveValidator{maxFeeBps: maxFeeBps}
}

func (v *CurveValidator) IsReady(pair *domain.Pair) bool {
	if pair == nil || pair.Validate() != nil {
		return false
	}
	return pair.Curve.TradeFeeBps+pair.Curve.ProtocolFeeBps < v.maxFeeBps
}

func (v *CurveValidator) Name() string {
	return "curve"
}
