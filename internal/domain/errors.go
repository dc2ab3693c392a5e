package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine wraps exactly one of these,
// so callers classify with errors.Is(err, domain.ErrInvariant).
var (
	ErrInput       = errors.New("input error")
	ErrNotFound    = errors.New("not found")
	ErrInvariant   = errors.New("invariant violation")
	ErrConvergence = errors.New("convergence error")
	ErrExternal    = errors.New("external failure")
)

var (
	ErrAssetMismatch       = fmt.Errorf("%w: asset mismatch", ErrInput)
	ErrInvalidMemo         = fmt.Errorf("%w: wrong memo format", ErrInput)
	ErrInvalidQuantity     = fmt.Errorf("%w: invalid quantity", ErrInput)
	ErrNegativeAmount      = fmt.Errorf("%w: negative amount", ErrInput)
	ErrPrecisionOverflow   = fmt.Errorf("%w: precision overflow", ErrInput)
	ErrAmountOverflow      = fmt.Errorf("%w: amount overflow", ErrInput)
	ErrUnsupportedTarget   = fmt.Errorf("%w: unsupported target asset", ErrInput)
	ErrEmptyReserves       = fmt.Errorf("%w: pool reserves are not seeded", ErrInput)
	ErrInvalidAmplifier    = fmt.Errorf("%w: invalid amplifier", ErrInput)
	ErrInvalidFee          = fmt.Errorf("%w: invalid fee", ErrInput)
	ErrInvalidPair         = fmt.Errorf("%w: invalid pair", ErrInput)
	ErrAuthorizationDenied = fmt.Errorf("%w: authorization denied", ErrInput)
	ErrNothingToFlush      = fmt.Errorf("%w: nothing to transfer", ErrInput)
	ErrPairNotReady        = fmt.Errorf("%w: pair is not ready", ErrInput)

	ErrPoolNotFound  = fmt.Errorf("%w: pair does not exist", ErrNotFound)
	ErrAssetNotFound = fmt.Errorf("%w: asset is not registered", ErrNotFound)

	ErrBalanceNotClean = fmt.Errorf("%w: balance not clean", ErrInvariant)
	ErrResidualBalance = fmt.Errorf("%w: residual balance after run", ErrInvariant)
	ErrMathOverflow    = fmt.Errorf("%w: 256-bit overflow", ErrInvariant)

	ErrPricingDidNotConverge = fmt.Errorf("%w: pricing did not converge", ErrConvergence)
	ErrSplitDidNotConverge   = fmt.Errorf("%w: split did not converge", ErrConvergence)

	ErrInsufficientBalance   = fmt.Errorf("%w: insufficient balance", ErrExternal)
	ErrInsufficientLiquidity = fmt.Errorf("%w: insufficient liquidity", ErrExternal)
	ErrUnwrapUnavailable     = fmt.Errorf("%w: unwrap unavailable", ErrExternal)
	ErrTransferRejected      = fmt.Errorf("%w: transfer rejected", ErrExternal)
)

// Kind labels used for metrics and transport mapping.
const (
	KindInput       = "input"
	KindNotFound    = "not_found"
	KindInvariant   = "invariant"
	KindConvergence = "convergence"
	KindExternal    = "external"
	KindUnknown     = "unknown"
)

// KindOf returns the label of the error kind err wraps.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInput):
		return KindInput
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvariant):
		return KindInvariant
	case errors.Is(err, ErrConvergence):
		return KindConvergence
	case errors.Is(err, ErrExternal):
		return KindExternal
	default:
		return KindUnknown
	}
}
