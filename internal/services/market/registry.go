package market

import (
	"github.com/hxuan190/zap-engine/internal/domain"
)

type MarketRegistry struct {
	validators []PairValidator
}

func NewMarketRegistry() *MarketRegistry {
	return &MarketRegistry{
		validators: make([]PairValidator, 0),
	}
}

func NewDefaultMarketRegistry() *MarketRegistry {
	r := NewMarketRegistry()
	r.RegisterValidator(NewCurveValidator(domain.BpsDenominator))
	r.RegisterValidator(NewSeededValidator())
	return r
}

func (r *MarketRegistry) RegisterValidator(validator PairValidator) {
	r.validators = append(r.validators, validator)
}

// IsPairReady reports whether every registered validator accepts pair.
func (r *MarketRegistry) IsPairReady(pair *domain.Pair) bool {
	_, ok := r.Rejection(pair)
	return ok
}

// Rejection returns the name of the first validator refusing pair.
func (r *MarketRegistry) Rejection(pair *domain.Pair) (string, bool) {
	for _, validator := range r.validators {
		if !validator.IsReady(pair) {
			return validator.Name(), false
		}
	}
	return "", true
}
