package domain

import "fmt"

// BpsDenominator is the denominator of every fee rate.
const BpsDenominator = 10000

// CurveParams are the pricing parameters of one pair.
type CurveParams struct {
	Amplifier      uint64 `json:"amplifier"`
	TradeFeeBps    uint64 `json:"tradeFeeBps"`
	ProtocolFeeBps uint64 `json:"protocolFeeBps"`
}

func (c CurveParams) Validate() error {
	if c.Amplifier == 0 {
		return ErrInvalidAmplifier
	}
	if c.TradeFeeBps > BpsDenominator || c.ProtocolFeeBps > BpsDenominator {
		return ErrInvalidFee
	}
	return nil
}

// Pair describes a two-leg stableswap pool. Reserve legs are stored in
// registration order; use Oriented to put a given asset on leg A.
type Pair struct {
	ID        string      `json:"id"`
	Reserve0  Quantity    `json:"reserve0"`
	Reserve1  Quantity    `json:"reserve1"`
	Liquidity Quantity    `json:"liquidity"`
	Curve     CurveParams `json:"curve"`
}

func (p Pair) LPAsset() Asset {
	return p.Liquidity.Asset
}

// HasLeg reports whether asset is one of the reserve legs.
func (p Pair) HasLeg(asset Asset) bool {
	return p.Reserve0.Asset == asset || p.Reserve1.Asset == asset
}

// Opposite returns the reserve leg that is not asset.
func (p Pair) Opposite(asset Asset) (Asset, error) {
	switch asset {
	case p.Reserve0.Asset:
		return p.Reserve1.Asset, nil
	case p.Reserve1.Asset:
		return p.Reserve0.Asset, nil
	}
	return Asset{}, fmt.Errorf("%w: %s is not a leg of %s", ErrAssetMismatch, asset.Code, p.ID)
}

// Oriented returns a copy of p whose Reserve0 holds asset.
func (p Pair) Oriented(asset Asset) (Pair, error) {
	if p.Reserve0.Asset == asset {
		return p, nil
	}
	if p.Reserve1.Asset == asset {
		p.Reserve0, p.Reserve1 = p.Reserve1, p.Reserve0
		return p, nil
	}
	return Pair{}, fmt.Errorf("%w: invalid token %s for pair %s", ErrAssetMismatch, asset.Code, p.ID)
}

// Seeded reports whether both legs hold liquidity.
func (p Pair) Seeded() bool {
	return p.Reserve0.IsPositive() && p.Reserve1.IsPositive()
}

func (p Pair) Validate() error {
	if !ValidSymbolCode(p.ID) {
		return fmt.Errorf("%w: pair id %q", ErrInvalidPair, p.ID)
	}
	if p.Reserve0.Asset == p.Reserve1.Asset {
		return fmt.Errorf("%w: identical legs", ErrInvalidPair)
	}
	if p.LPAsset().Code != p.ID {
		return fmt.Errorf("%w: liquidity symbol must equal pair id", ErrInvalidPair)
	}
	return p.Curve.Validate()
}
