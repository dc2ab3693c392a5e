package http

import (
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/http/httputil"
	"github.com/hxuan190/zap-engine/internal/services/zap"
)

// QuoteHandler serves read-only previews: deposit splits and swap quotes.
type QuoteHandler struct {
	zapSvc *zap.Service
}

func NewQuoteHandler(zapSvc *zap.Service) *QuoteHandler {
	return &QuoteHandler{zapSvc: zapSvc}
}

func (h *QuoteHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/split", h.getSplit)
	pub.GET("/quote", h.getQuote)
}

func (h *QuoteHandler) Root() string {
	return "/zap"
}

// QuoteRequest names a pair and a human quantity of one asset.
type QuoteRequest struct {
	// Pair id, the symbol code of its liquidity asset
	Pair string `form:"pair" binding:"required"`
	// Decimal amount, for example "1000.0000"
	Quantity string `form:"quantity" binding:"required"`
	// Symbol code of the input asset
	Asset string `form:"asset" binding:"required"`
	// Issuing ledger, needed only when the code is ambiguous
	Ledger string `form:"ledger"`
}

type SplitResponse struct {
	Pair       string       `json:"pair"`
	Input      string       `json:"input"`
	ToLegA     string       `json:"toLegA"`
	SwapIn     string       `json:"swapIn"`
	ToLegB     string       `json:"toLegB"`
	Iterations int          `json:"iterations"`
	Split      domain.Split `json:"raw"`
}

type SwapQuoteResponse struct {
	Pair        string           `json:"pair"`
	AmountIn    string           `json:"amountIn"`
	AmountOut   string           `json:"amountOut"`
	ProtocolFee string           `json:"protocolFee"`
	Quote       domain.SwapQuote `json:"raw"`
}

func (h *QuoteHandler) bind(c *gin.Context) (QuoteRequest, domain.Quantity, bool) {
	var req QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return req, domain.Quantity{}, false
	}
	in, err := resolveQuantity(h.zapSvc, req.Asset, req.Ledger, req.Quantity)
	if err != nil {
		httputil.HandleError(c, err)
		return req, domain.Quantity{}, false
	}
	return req, in, true
}

// @Summary Preview deposit split
// @Description Compute how a single-asset deposit would be divided: the part kept as leg A,
// @Description the part swapped, and the leg B it is expected to yield. No balance is touched.
// @Description
// @Description The input may be the underlying of a wrapped leg; it is priced as if wrapped first.
// @Description Pairs refused by a market validator cannot be previewed.
// @Tags quote
// @Produce json
// @Param pair query string true "Pair id" example("USDTN")
// @Param asset query string true "Input asset code" example("USDT")
// @Param ledger query string false "Issuing ledger of the asset, base58"
// @Param quantity query string true "Decimal quantity" example("1000.0000")
// @Success 200 {object} SplitResponse
// @Failure 400 {object} map[string]string "Bad quantity, asset not a leg, or pair not ready"
// @Failure 404 {object} map[string]string "Pair or asset not found"
// @Router /api/v1/zap/split [get]
func (h *QuoteHandler) getSplit(c *gin.Context) {
	req, in, ok := h.bind(c)
	if !ok {
		return
	}
	split, err := h.zapSvc.PreviewSplit(c.Request.Context(), req.Pair, in)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	httputil.HandleSuccess(c, SplitResponse{
		Pair:       req.Pair,
		Input:      in.String(),
		ToLegA:     split.ToLegA.String(),
		SwapIn:     split.SwapIn.String(),
		ToLegB:     split.ToLegB.String(),
		Iterations: split.Iterations,
		Split:      *split,
	})
}

// @Summary Quote swap
// @Description Price a plain swap of the given quantity against one pair, net of the trade fee.
// @Tags quote
// @Produce json
// @Param pair query string true "Pair id" example("USDTN")
// @Param asset query string true "Input asset code" example("USDT")
// @Param ledger query string false "Issuing ledger of the asset, base58"
// @Param quantity query string true "Decimal quantity" example("100.0000")
// @Success 200 {object} SwapQuoteResponse
// @Failure 400 {object} map[string]string "Invalid request parameters"
// @Failure 404 {object} map[string]string "Pair or asset not found"
// @Router /api/v1/zap/quote [get]
func (h *QuoteHandler) getQuote(c *gin.Context) {
	req, in, ok := h.bind(c)
	if !ok {
		return
	}
	quote, err := h.zapSvc.QuoteSwap(c.Request.Context(), req.Pair, in)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	httputil.HandleSuccess(c, SwapQuoteResponse{
		Pair:        req.Pair,
		AmountIn:    quote.AmountIn.String(),
		AmountOut:   quote.AmountOut.String(),
		ProtocolFee: quote.ProtocolFee.String(),
		Quote:       *quote,
	})
}
