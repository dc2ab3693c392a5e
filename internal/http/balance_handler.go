package http

import (
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/zap-engine/internal/http/httputil"
	"github.com/hxuan190/zap-engine/internal/services/zap"
)

type BalanceHandler struct {
	zapSvc *zap.Service
}

func NewBalanceHandler(zapSvc *zap.Service) *BalanceHandler {
	return &BalanceHandler{zapSvc: zapSvc}
}

func (h *BalanceHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/:account", h.getBalances)
}

func (h *BalanceHandler) Root() string {
	return "/balances"
}

type BalanceEntry struct {
	Asset    string `json:"asset"`
	Ledger   string `json:"ledger"`
	Quantity string `json:"quantity"`
	Amount   int64  `json:"amount"`
}

type BalancesResponse struct {
	Account  string         `json:"account"`
	Balances []BalanceEntry `json:"balances"`
}

// @Summary Get balances
// @Tags balances
// @Produce json
// @Param account path string true "Account, base58"
// @Success 200 {object} BalancesResponse "Non-zero holdings"
// @Failure 400 {object} map[string]string "Invalid account"
// @Router /api/v1/balances/{account} [get]
func (h *BalanceHandler) getBalances(c *gin.Context) {
	account, err := parseAccount("account", c.Param("account"))
	if err != nil {
		httputil.HandleError(c, err)
		return
	}
	holdings := h.zapSvc.Balances(account)
	resp := BalancesResponse{Account: account.String(), Balances: make([]BalanceEntry, 0, len(holdings))}
	for _, q := range holdings {
		resp.Balances = append(resp.Balances, BalanceEntry{
			Asset:    q.Asset.Code,
			Ledger:   q.Asset.Ledger.String(),
			Quantity: q.String(),
			Amount:   q.Amount,
		})
	}
	httputil.HandleSuccess(c, resp)
}
