package middlewares

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/zap-engine/internal/common"
)

const callerKey = "caller"

// OperatorCaller reads the caller account from the operator header and
// requires the request to be signed by that account. The services decide
// whether the caller may act.
func OperatorCaller(verifier *SignatureVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(common.OperatorHeader)
		if raw == "" {
			abortUnauthorized(c, "missing "+common.OperatorHeader+" header")
			return
		}
		caller, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			abortUnauthorized(c, "invalid "+common.OperatorHeader+" header")
			return
		}
		if err := verifier.Verify(c, caller); err != nil {
			abortUnauthorized(c, err.Error())
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// Caller returns the account OperatorCaller stored on c.
func Caller(c *gin.Context) solana.PublicKey {
	v, ok := c.Get(callerKey)
	if !ok {
		return solana.PublicKey{}
	}
	caller, _ := v.(solana.PublicKey)
	return caller
}
