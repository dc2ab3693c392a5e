// Package common contains common constants and variables used across services
package common

const (
	// OperatorHeader carries the caller account of admin requests.
	OperatorHeader = "X-Operator"
	// SignatureHeader carries the base58 ed25519 signature of a request.
	SignatureHeader = "X-Signature"
	// TimestampHeader carries the unix time the request was signed at.
	TimestampHeader = "X-Timestamp"

	APIPrefix   = "/api/v1"
	AdminPrefix = "/api/v1/admin"

	// MaxMemoBytes bounds inbound transfer memos.
	MaxMemoBytes = 256
)
