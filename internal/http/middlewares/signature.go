package middlewares

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/zap-engine/internal/common"
)

const maxSignedBody = 1 << 20

var (
	ErrMissingSignature  = errors.New("missing signature")
	ErrBadSignature      = errors.New("invalid signature")
	ErrStaleSignature    = errors.New("signature timestamp out of range")
	ErrReplayedSignature = errors.New("signature already used")
)

// SignatureVerifier checks ed25519 request signatures. Each signature is
// accepted once, and only while its timestamp is within skew of now.
type SignatureVerifier struct {
	skew time.Duration
	now  func() time.Time

	mu   sync.Mutex
	seen map[solana.Signature]time.Time
}

func NewSignatureVerifier(skew time.Duration) *SignatureVerifier {
	return &SignatureVerifier{
		skew: skew,
		now:  time.Now,
		seen: make(map[solana.Signature]time.Time),
	}
}

// SigningMessage is what a caller signs: method, request URI, unix
// timestamp and the raw body, newline separated.
func SigningMessage(method, uri string, timestamp int64, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(method)
	buf.WriteByte('\n')
	buf.WriteString(uri)
	buf.WriteByte('\n')
	buf.WriteString(strconv.FormatInt(timestamp, 10))
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes()
}

// SignRequest sets the timestamp and signature headers of req, signing
// body with key at the given time.
func SignRequest(req *http.Request, body []byte, key solana.PrivateKey, at time.Time) error {
	ts := at.Unix()
	sig, err := key.Sign(SigningMessage(req.Method, req.URL.RequestURI(), ts, body))
	if err != nil {
		return err
	}
	req.Header.Set(common.TimestampHeader, strconv.FormatInt(ts, 10))
	req.Header.Set(common.SignatureHeader, sig.String())
	return nil
}

// Verify checks that the request on c was signed by signer. The body
// stays readable for the handler.
func (v *SignatureVerifier) Verify(c *gin.Context, signer solana.PublicKey) error {
	rawSig := c.GetHeader(common.SignatureHeader)
	rawTs := c.GetHeader(common.TimestampHeader)
	if rawSig == "" || rawTs == "" {
		return ErrMissingSignature
	}
	sig, err := solana.SignatureFromBase58(rawSig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	ts, err := strconv.ParseInt(rawTs, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStaleSignature, err)
	}
	at := time.Unix(ts, 0)
	now := v.now()
	if at.Before(now.Add(-v.skew)) || at.After(now.Add(v.skew)) {
		return ErrStaleSignature
	}

	body, err := signedBody(c)
	if err != nil {
		return err
	}
	if !sig.Verify(signer, SigningMessage(c.Request.Method, c.Request.URL.RequestURI(), ts, body)) {
		return ErrBadSignature
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[sig]; ok {
		return ErrReplayedSignature
	}
	v.seen[sig] = at.Add(v.skew)
	return nil
}

// Prune forgets signatures whose timestamps can no longer pass the skew
// check.
func (v *SignatureVerifier) Prune() {
	now := v.now()
	v.mu.Lock()
	defer v.mu.Unlock()
	for sig, expires := range v.seen {
		if now.After(expires) {
			delete(v.seen, sig)
		}
	}
}

// signedBody returns the raw request body, sharing gin's body cache so
// ShouldBindBodyWith and ShouldBindJSON both still see it.
func signedBody(c *gin.Context) ([]byte, error) {
	if cached, ok := c.Get(gin.BodyBytesKey); ok {
		if body, ok := cached.([]byte); ok {
			return body, nil
		}
	}
	if c.Request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSignedBody))
	if err != nil {
		return nil, err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	c.Set(gin.BodyBytesKey, body)
	return body, nil
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": msg})
}
