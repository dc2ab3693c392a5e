package http

import (
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/http/httputil"
	"github.com/hxuan190/zap-engine/internal/services/market"
)

type PoolHandler struct {
	marketSvc *market.Service
}

func NewPoolHandler(marketSvc *market.Service) *PoolHandler {
	return &PoolHandler{marketSvc: marketSvc}
}

func (h *PoolHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/list", h.listPairs)
	pub.GET("/:id", h.getPair)
	pub.GET("/:id/curve", h.getCurve)
}

func (h *PoolHandler) Root() string {
	return "/pairs"
}

// PairInfo is the public view of one pair.
type PairInfo struct {
	ID             string `json:"id"`
	Reserve0       string `json:"reserve0"`
	Reserve1       string `json:"reserve1"`
	Liquidity      string `json:"liquidity"`
	Amplifier      uint64 `json:"amplifier"`
	TradeFeeBps    uint64 `json:"tradeFeeBps"`
	ProtocolFeeBps uint64 `json:"protocolFeeBps"`
	// Ready is false when a market validator refuses the pair; Rejection
	// names that validator.
	Ready     bool   `json:"ready"`
	Rejection string `json:"rejection,omitempty"`

	Pair domain.Pair `json:"raw"`
}

type PairListResponse struct {
	Pairs []PairInfo `json:"pairs"`
	Total int        `json:"total"`
	Ready int        `json:"ready"`
}

func (h *PoolHandler) describe(p *domain.Pair) PairInfo {
	rejection, ready := h.marketSvc.IsReady(p)
	return PairInfo{
		ID:             p.ID,
		Reserve0:       p.Reserve0.String(),
		Reserve1:       p.Reserve1.String(),
		Liquidity:      p.Liquidity.String(),
		Amplifier:      p.Curve.Amplifier,
		TradeFeeBps:    p.Curve.TradeFeeBps,
		ProtocolFeeBps: p.Curve.ProtocolFeeBps,
		Ready:          ready,
		Rejection:      rejection,
		Pair:           *p,
	}
}

// @Summary List pairs
// @Description List every stableswap pair with its reserves, liquidity supply and curve parameters.
// @Description Pairs refused by a market validator are listed with ready=false and the validator name.
// @Tags pairs
// @Produce json
// @Success 200 {object} PairListResponse "All pairs"
// @Failure 500 {object} map[string]string "Pair source unavailable"
// @Router /api/v1/pairs/list [get]
func (h *PoolHandler) listPairs(c *gin.Context) {
	pairs, err := h.marketSvc.ListPairs(c.Request.Context())
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	resp := PairListResponse{Pairs: make([]PairInfo, 0, len(pairs)), Total: len(pairs)}
	for i := range pairs {
		info := h.describe(&pairs[i])
		if info.Ready {
			resp.Ready++
		}
		resp.Pairs = append(resp.Pairs, info)
	}
	httputil.HandleSuccess(c, resp)
}

// @Summary Get pair
// @Tags pairs
// @Produce json
// @Param id path string true "Pair id, the code of its liquidity asset" example("USDTN")
// @Success 200 {object} PairInfo
// @Failure 404 {object} map[string]string "Pair does not exist"
// @Router /api/v1/pairs/{id} [get]
func (h *PoolHandler) getPair(c *gin.Context) {
	pair, err := h.marketSvc.GetPair(c.Request.Context(), c.Param("id"))
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	httputil.HandleSuccess(c, h.describe(pair))
}

// @Summary Get pair curve parameters
// @Description Amplifier and the fees the pool currently charges on swaps against the pair.
// @Tags pairs
// @Produce json
// @Param id path string true "Pair id" example("USDTN")
// @Success 200 {object} domain.CurveParams
// @Failure 404 {object} map[string]string "Pair does not exist"
// @Router /api/v1/pairs/{id}/curve [get]
func (h *PoolHandler) getCurve(c *gin.Context) {
	curve, err := h.marketSvc.GetCurveParams(c.Request.Context(), c.Param("id"))
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	httputil.HandleSuccess(c, curve)
}
