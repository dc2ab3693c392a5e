package http

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/hxuan190/zap-engine/internal/common"
	"github.com/hxuan190/zap-engine/internal/domain"
	"github.com/hxuan190/zap-engine/internal/http/httputil"
	"github.com/hxuan190/zap-engine/internal/http/middlewares"
	"github.com/hxuan190/zap-engine/internal/services/zap"
)

// ZapHandler accepts inbound transfers and the operator actions.
type ZapHandler struct {
	zapSvc   *zap.Service
	verifier *middlewares.SignatureVerifier
}

func NewZapHandler(zapSvc *zap.Service, verifier *middlewares.SignatureVerifier) *ZapHandler {
	return &ZapHandler{zapSvc: zapSvc, verifier: verifier}
}

func (h *ZapHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.POST("/transfers", h.postTransfer)
	pub.GET("/markets", h.listMarkets)
	pub.GET("/assets", h.listAssets)

	admin.GET("/curve", h.getCurveConfig)
	admin.PUT("/curve", h.setFees)
	admin.POST("/flush", h.flush)
	admin.POST("/pairs", h.createPair)
	admin.POST("/issue", h.issue)
	admin.POST("/markets", h.addMarket)
}

func (h *ZapHandler) Root() string {
	return "/zap"
}

// TransferRequest is one transfer into the routing account.
type TransferRequest struct {
	From     string `json:"from" binding:"required"`
	To       string `json:"to"`
	Asset    string `json:"asset" binding:"required"`
	Ledger   string `json:"ledger"`
	Quantity string `json:"quantity" binding:"required"`
	Memo     string `json:"memo" binding:"max=256"`
}

type TransferResponse struct {
	Delivered string      `json:"delivered,omitempty"`
	Refunds   []string    `json:"refunds,omitempty"`
	Result    *zap.Result `json:"result"`
}

// @Summary Transfer into the routing account
// @Description Move a quantity from the sender to the routing account. The memo decides what happens:
// @Description - a pair id deposits the quantity as liquidity of that pair
// @Description - withdraw,<PAIR>,<ASSET> redeems liquidity into a single asset
// @Description
// @Description The whole run commits or nothing moves. Transfers from reserved accounts, or
// @Description carrying the routing address as memo, are accepted and ignored.
// @Description
// @Description **Authentication:** the request must be signed by the from account.
// @Description X-Timestamp is the unix time of signing and X-Signature the base58 ed25519
// @Description signature of METHOD, request URI, timestamp and raw body joined by newlines.
// @Tags zap
// @Accept json
// @Produce json
// @Param X-Timestamp header string true "Unix seconds"
// @Param X-Signature header string true "Base58 ed25519 signature by from"
// @Param request body TransferRequest true "Transfer"
// @Success 200 {object} TransferResponse "Run committed or transfer ignored"
// @Failure 400 {object} map[string]string "Bad memo, quantity or asset"
// @Failure 401 {object} map[string]string "Missing, stale, replayed or foreign signature"
// @Failure 404 {object} map[string]string "Pair or asset not found"
// @Failure 409 {object} map[string]string "Insufficient balance or liquidity"
// @Router /api/v1/zap/transfers [post]
func (h *ZapHandler) postTransfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	from, err := parseAccount("from", req.From)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	if err := h.verifier.Verify(c, from); err != nil {
		httputil.HandleError(c, common.HTTPErrorUnauthorized(err.Error()))
		return
	}
	to := h.zapSvc.Routing()
	if req.To != "" {
		if to, err = parseAccount("to", req.To); err != nil {
			httputil.HandleError(c, err)
			return
		}
	}
	q, err := resolveQuantity(h.zapSvc, req.Asset, req.Ledger, req.Quantity)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}

	res, err := h.zapSvc.HandleTransfer(c.Request.Context(), domain.TransferEvent{From: from, To: to, Quantity: q, Memo: req.Memo})
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	resp := TransferResponse{Result: res}
	if !res.Ignored {
		resp.Delivered = res.Delivered.String()
		for _, r := range res.Refunds {
			resp.Refunds = append(resp.Refunds, r.String())
		}
	}
	httputil.HandleSuccess(c, resp)
}

type MarketInfo struct {
	Underlying domain.Asset `json:"underlying"`
	Wrapped    domain.Asset `json:"wrapped"`
	RateBps    uint64       `json:"rateBps"`
}

// @Summary List lending markets
// @Description Markets whose wrapped receipts can be pair legs. Deposits of an underlying asset
// @Description into a pair holding its receipt are wrapped first.
// @Tags zap
// @Produce json
// @Success 200 {array} MarketInfo
// @Router /api/v1/zap/markets [get]
func (h *ZapHandler) listMarkets(c *gin.Context) {
	markets := h.zapSvc.Markets()
	out := make([]MarketInfo, 0, len(markets))
	for _, m := range markets {
		out = append(out, MarketInfo{Underlying: m.Underlying, Wrapped: m.Wrapped, RateBps: m.RateBps})
	}
	httputil.HandleSuccess(c, out)
}

type AssetInfo struct {
	Code      string `json:"code"`
	Precision uint8  `json:"precision"`
	Ledger    string `json:"ledger"`
	Supply    string `json:"supply"`
}

// @Summary List assets
// @Description Every registered asset with its outstanding supply.
// @Tags zap
// @Produce json
// @Success 200 {array} AssetInfo
// @Router /api/v1/zap/assets [get]
func (h *ZapHandler) listAssets(c *gin.Context) {
	assets := h.zapSvc.Assets()
	out := make([]AssetInfo, 0, len(assets))
	for _, a := range assets {
		out = append(out, AssetInfo{
			Code:      a.Asset.Code,
			Precision: a.Asset.Precision,
			Ledger:    a.Asset.Ledger.String(),
			Supply:    a.Supply.String(),
		})
	}
	httputil.HandleSuccess(c, out)
}

// @Summary Get pool fee settings
// @Tags admin
// @Produce json
// @Param X-Operator header string true "Operator account, base58"
// @Param X-Timestamp header string true "Unix seconds"
// @Param X-Signature header string true "Base58 ed25519 signature by the operator"
// @Success 200 {object} curvepool.Config
// @Failure 401 {object} map[string]string "Unsigned request"
// @Failure 403 {object} map[string]string "Caller is not the operator"
// @Router /api/v1/admin/zap/curve [get]
func (h *ZapHandler) getCurveConfig(c *gin.Context) {
	cfg, err := h.zapSvc.CurveConfig(middlewares.Caller(c))
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	httputil.HandleSuccess(c, cfg)
}

type SetFeesRequest struct {
	TradeFeeBps    uint64 `json:"tradeFeeBps"`
	ProtocolFeeBps uint64 `json:"protocolFeeBps"`
}

// @Summary Set pool fees
// @Description Replace the trade and protocol fees every pair charges. The fee account is kept.
// @Tags admin
// @Accept json
// @Produce json
// @Param X-Operator header string true "Operator account, base58"
// @Param X-Timestamp header string true "Unix seconds"
// @Param X-Signature header string true "Base58 ed25519 signature by the operator"
// @Param request body SetFeesRequest true "Fees in basis points"
// @Success 200 {object} curvepool.Config
// @Failure 400 {object} map[string]string "Fees reach 10000 bps"
// @Failure 401 {object} map[string]string "Unsigned request"
// @Failure 403 {object} map[string]string "Caller is not the operator"
// @Router /api/v1/admin/zap/curve [put]
func (h *ZapHandler) setFees(c *gin.Context) {
	var req SetFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	cfg, err := h.zapSvc.SetFees(c.Request.Context(), middlewares.Caller(c), req.TradeFeeBps, req.ProtocolFeeBps)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	httputil.HandleSuccess(c, cfg)
}

type FlushRequest struct {
	Asset  string `json:"asset" binding:"required"`
	Ledger string `json:"ledger"`
	To     string `json:"to" binding:"required"`
	Tag    string `json:"tag" binding:"max=256"`
}

// @Summary Flush routing balance
// @Description Sweep the routing account's whole balance of one asset to an account.
// @Description This is how balances stranded by a failed external step are recovered.
// @Tags admin
// @Accept json
// @Produce json
// @Param X-Operator header string true "Operator account, base58"
// @Param X-Timestamp header string true "Unix seconds"
// @Param X-Signature header string true "Base58 ed25519 signature by the operator"
// @Param request body FlushRequest true "Asset and destination"
// @Success 200 {object} zap.FlushResult
// @Failure 400 {object} map[string]string "Nothing to transfer"
// @Failure 401 {object} map[string]string "Unsigned request"
// @Failure 403 {object} map[string]string "Caller is not the operator"
// @Router /api/v1/admin/zap/flush [post]
func (h *ZapHandler) flush(c *gin.Context) {
	var req FlushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	ledger, err := optionalLedger(req.Ledger)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	asset, err := h.zapSvc.FindAsset(req.Asset, ledger)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	to, err := parseAccount("to", req.To)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	res, err := h.zapSvc.Flush(c.Request.Context(), middlewares.Caller(c), asset, to, req.Tag)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	httputil.HandleSuccess(c, res)
}

type CreatePairRequest struct {
	ID        string `json:"id" binding:"required"`
	Asset0    string `json:"asset0" binding:"required"`
	Ledger0   string `json:"ledger0"`
	Quantity0 string `json:"quantity0" binding:"required"`
	Asset1    string `json:"asset1" binding:"required"`
	Ledger1   string `json:"ledger1"`
	Quantity1 string `json:"quantity1" binding:"required"`
	Amplifier uint64 `json:"amplifier" binding:"required"`
}

// @Summary Create pair
// @Description List a stableswap pair seeded from the operator's balances. The operator receives the initial liquidity.
// @Tags admin
// @Accept json
// @Produce json
// @Param X-Operator header string true "Operator account, base58"
// @Param X-Timestamp header string true "Unix seconds"
// @Param X-Signature header string true "Base58 ed25519 signature by the operator"
// @Param request body CreatePairRequest true "Pair id, seeds and amplifier"
// @Success 200 {object} domain.Pair
// @Failure 400 {object} map[string]string "Invalid pair or pair already exists"
// @Failure 401 {object} map[string]string "Unsigned request"
// @Failure 403 {object} map[string]string "Caller is not the operator"
// @Failure 409 {object} map[string]string "Operator balance too low"
// @Router /api/v1/admin/zap/pairs [post]
func (h *ZapHandler) createPair(c *gin.Context) {
	var req CreatePairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	seed0, err := resolveQuantity(h.zapSvc, req.Asset0, req.Ledger0, req.Quantity0)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	seed1, err := resolveQuantity(h.zapSvc, req.Asset1, req.Ledger1, req.Quantity1)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	pair, err := h.zapSvc.CreatePair(c.Request.Context(), middlewares.Caller(c), req.ID, seed0, seed1, req.Amplifier)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	httputil.HandleSuccess(c, pair)
}

// IssueRequest mints a quantity. Precision is required the first time an
// asset is issued; Ledger defaults to the operator.
type IssueRequest struct {
	Account   string `json:"account" binding:"required"`
	Asset     string `json:"asset" binding:"required"`
	Ledger    string `json:"ledger"`
	Precision *uint8 `json:"precision"`
	Quantity  string `json:"quantity" binding:"required"`
}

// @Summary Issue asset
// @Tags admin
// @Accept json
// @Produce json
// @Param X-Operator header string true "Operator account, base58"
// @Param X-Timestamp header string true "Unix seconds"
// @Param X-Signature header string true "Base58 ed25519 signature by the operator"
// @Param request body IssueRequest true "Account, asset and quantity"
// @Success 200 {object} txn.Receipt
// @Failure 400 {object} map[string]string "Invalid quantity or missing precision"
// @Failure 401 {object} map[string]string "Unsigned request"
// @Failure 403 {object} map[string]string "Caller is not the operator"
// @Router /api/v1/admin/zap/issue [post]
func (h *ZapHandler) issue(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	caller := middlewares.Caller(c)
	account, err := parseAccount("account", req.Account)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	asset, err := h.issueAsset(req)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	q, err := domain.ParseQuantity(req.Quantity, asset)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	receipt, err := h.zapSvc.Issue(c.Request.Context(), caller, account, q)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	httputil.HandleSuccess(c, receipt)
}

func (h *ZapHandler) issueAsset(req IssueRequest) (domain.Asset, error) {
	ledger, err := optionalLedger(req.Ledger)
	if err != nil {
		return domain.Asset{}, err
	}
	asset, err := h.zapSvc.FindAsset(req.Asset, ledger)
	if err == nil || !errors.Is(err, domain.ErrAssetNotFound) {
		return asset, err
	}
	if req.Precision == nil {
		return domain.Asset{}, fmt.Errorf("%w: precision is required for new asset %s", domain.ErrInvalidQuantity, req.Asset)
	}
	issuer := h.zapSvc.Operator()
	if ledger != nil {
		issuer = *ledger
	}
	return domain.NewAsset(req.Asset, *req.Precision, issuer)
}

type AddMarketRequest struct {
	Underlying string `json:"underlying" binding:"required"`
	Ledger     string `json:"ledger"`
	Wrapped    string `json:"wrapped" binding:"required"`
	RateBps    uint64 `json:"rateBps" binding:"required"`
}

// @Summary Add lending market
// @Description List a wrapped receipt for an underlying asset at a fixed exchange rate.
// @Description Neither the underlying nor the wrapped code may already belong to a market.
// @Tags admin
// @Accept json
// @Produce json
// @Param X-Operator header string true "Operator account, base58"
// @Param X-Timestamp header string true "Unix seconds"
// @Param X-Signature header string true "Base58 ed25519 signature by the operator"
// @Param request body AddMarketRequest true "Underlying, wrapped code and rate"
// @Success 200 {object} domain.Asset "The wrapped asset"
// @Failure 400 {object} map[string]string "Duplicate market or invalid rate"
// @Failure 401 {object} map[string]string "Unsigned request"
// @Failure 403 {object} map[string]string "Caller is not the operator"
// @Failure 404 {object} map[string]string "Underlying asset not registered"
// @Router /api/v1/admin/zap/markets [post]
func (h *ZapHandler) addMarket(c *gin.Context) {
	var req AddMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	ledger, err := optionalLedger(req.Ledger)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	underlying, err := h.zapSvc.FindAsset(req.Underlying, ledger)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	wrapped, err := h.zapSvc.AddMarket(c.Request.Context(), middlewares.Caller(c), underlying, req.Wrapped, req.RateBps)
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	httputil.HandleSuccess(c, wrapped)
}
