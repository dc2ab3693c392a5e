package curve

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"github.com/hxuan190/zap-engine/internal/domain"
)

const (
	// DefaultWorkingPrecision is the implied decimals of working amounts.
	DefaultWorkingPrecision uint8 = 18
	// MaxWorkingPrecision keeps int64 amounts scaled by 10^p inside 256 bits
	// with headroom for the invariant products.
	MaxWorkingPrecision uint8 = 36
)

var (
	pow10    [MaxWorkingPrecision + 1]*uint256.Int
	maxInt64 = uint256.NewInt(math.MaxInt64)
)

func init() {
	ten := uint256.NewInt(10)
	pow10[0] = uint256.NewInt(1)
	for i := 1; i < len(pow10); i++ {
		pow10[i] = new(uint256.Int).Mul(pow10[i-1], ten)
	}
}

// Pow10 returns 10^n. The result is shared and must not be mutated.
func Pow10(n uint8) *uint256.Int {
	return pow10[n]
}

// ToWorking widens a native amount to working precision. Narrowing is never
// done on the way in.
func ToWorking(amount int64, nativePrecision, workingPrecision uint8) (*uint256.Int, error) {
	if amount < 0 {
		return nil, domain.ErrNegativeAmount
	}
	if workingPrecision > MaxWorkingPrecision || workingPrecision < nativePrecision {
		return nil, fmt.Errorf("%w: native %d, working %d", domain.ErrPrecisionOverflow, nativePrecision, workingPrecision)
	}
	v := uint256.NewInt(uint64(amount))
	return v.Mul(v, pow10[workingPrecision-nativePrecision]), nil
}

// FromWorking truncates a working amount back to native precision. The
// fractional remainder is dropped.
func FromWorking(v *uint256.Int, workingPrecision, nativePrecision uint8) (int64, error) {
	if workingPrecision > MaxWorkingPrecision || workingPrecision < nativePrecision {
		return 0, fmt.Errorf("%w: native %d, working %d", domain.ErrPrecisionOverflow, nativePrecision, workingPrecision)
	}
	out := new(uint256.Int).Div(v, pow10[workingPrecision-nativePrecision])
	if out.Gt(maxInt64) {
		return 0, fmt.Errorf("%w: %s", domain.ErrAmountOverflow, out.Dec())
	}
	return int64(out.Uint64()), nil
}

// QuantityToWorking is ToWorking for a domain quantity.
func QuantityToWorking(q domain.Quantity, workingPrecision uint8) (*uint256.Int, error) {
	return ToWorking(q.Amount, q.Asset.Precision, workingPrecision)
}

// QuantityFromWorking is FromWorking producing a quantity of asset.
func QuantityFromWorking(v *uint256.Int, workingPrecision uint8, asset domain.Asset) (domain.Quantity, error) {
	amount, err := FromWorking(v, workingPrecision, asset.Precision)
	if err != nil {
		return domain.Quantity{}, err
	}
	return domain.NewQuantity(amount, asset), nil
}
