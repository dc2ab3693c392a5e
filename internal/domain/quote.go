package domain

// Split is the deposit allocation for one single-asset input, in native
// precision. ToLegA + SwapIn always equals the input quantity; ToLegB is
// the expected output of swapping SwapIn into the opposite leg.
type Split struct {
	Input      Quantity `json:"input"`
	ToLegA     Quantity `json:"toLegA"`
	SwapIn     Quantity `json:"swapIn"`
	ToLegB     Quantity `json:"toLegB"`
	Iterations int      `json:"iterations"`
}

// SwapQuote is the result of pricing one swap against a pair.
type SwapQuote struct {
	PairID      string   `json:"pairId"`
	AmountIn    Quantity `json:"amountIn"`
	ProtocolFee Quantity `json:"protocolFee"`
	AmountOut   Quantity `json:"amountOut"`
}
