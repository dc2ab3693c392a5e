package middlewares

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/zap-engine/internal/common"
)

func signedEngine(v *SignatureVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/admin", OperatorCaller(v), func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.JSON(http.StatusOK, gin.H{"caller": Caller(c).String(), "body": string(body)})
	})
	return r
}

func signedRequest(t *testing.T, key solana.PrivateKey, operator solana.PublicKey, body string, at time.Time) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/admin?x=1", bytes.NewBufferString(body))
	req.Header.Set(common.OperatorHeader, operator.String())
	require.NoError(t, SignRequest(req, []byte(body), key, at))
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOperatorCallerVerifiesSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewSignatureVerifier(5 * time.Minute)
	v.now = func() time.Time { return now }
	r := signedEngine(v)

	key := solana.NewWallet().PrivateKey
	other := solana.NewWallet().PrivateKey

	w := serve(r, signedRequest(t, key, key.PublicKey(), `{"a":1}`, now))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), key.PublicKey().String())
	assert.Contains(t, w.Body.String(), `{\"a\":1}`, "handler still reads the body")

	t.Run("missing headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set(common.OperatorHeader, key.PublicKey().String())
		assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
	})
	t.Run("signed by another key", func(t *testing.T) {
		w := serve(r, signedRequest(t, other, key.PublicKey(), `{}`, now))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), ErrBadSignature.Error())
	})
	t.Run("body changed after signing", func(t *testing.T) {
		req := signedRequest(t, key, key.PublicKey(), `{"a":1}`, now)
		req.Body = io.NopCloser(bytes.NewBufferString(`{"a":2}`))
		assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
	})
	t.Run("stale", func(t *testing.T) {
		w := serve(r, signedRequest(t, key, key.PublicKey(), `{}`, now.Add(-6*time.Minute)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), ErrStaleSignature.Error())
	})
	t.Run("replayed", func(t *testing.T) {
		req := signedRequest(t, key, key.PublicKey(), `{"n":2}`, now)
		replay := req.Clone(req.Context())
		replay.Body = io.NopCloser(bytes.NewBufferString(`{"n":2}`))
		require.Equal(t, http.StatusOK, serve(r, req).Code)
		w := serve(r, replay)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), ErrReplayedSignature.Error())
	})
}

func TestSignatureVerifierPrune(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewSignatureVerifier(time.Minute)
	v.now = func() time.Time { return now }
	r := signedEngine(v)

	key := solana.NewWallet().PrivateKey
	require.Equal(t, http.StatusOK, serve(r, signedRequest(t, key, key.PublicKey(), `{}`, now)).Code)
	assert.Len(t, v.seen, 1)

	v.Prune()
	assert.Len(t, v.seen, 1)

	now = now.Add(2 * time.Minute)
	v.Prune()
	assert.Empty(t, v.seen)
}
