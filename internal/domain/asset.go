package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// MaxPrecision bounds native asset precision.
const MaxPrecision = 18

var symbolCodePattern = regexp.MustCompile(`^[A-Z]{1,7}$`)

// Asset identifies a fungible asset: symbol code, decimals and the ledger
// that issues it. Two assets with the same code on different ledgers differ.
type Asset struct {
	Code      string           `json:"code"`
	Precision uint8            `json:"precision"`
	Ledger    solana.PublicKey `json:"ledger"`
}

func NewAsset(code string, precision uint8, ledger solana.PublicKey) (Asset, error) {
	if !ValidSymbolCode(code) {
		return Asset{}, fmt.Errorf("%w: symbol %q", ErrInvalidQuantity, code)
	}
	if precision > MaxPrecision {
		return Asset{}, fmt.Errorf("%w: precision %d", ErrPrecisionOverflow, precision)
	}
	return Asset{Code: code, Precision: precision, Ledger: ledger}, nil
}

// ValidSymbolCode reports whether code is 1-7 uppercase letters.
func ValidSymbolCode(code string) bool {
	return symbolCodePattern.MatchString(code)
}

func (a Asset) IsZero() bool {
	return a.Code == ""
}

func (a Asset) String() string {
	return fmt.Sprintf("%d,%s@%s", a.Precision, a.Code, a.Ledger.String())
}

// Quantity is an amount of one asset in its native precision.
type Quantity struct {
	Amount int64 `json:"amount"`
	Asset  Asset `json:"asset"`
}

func NewQuantity(amount int64, asset Asset) Quantity {
	return Quantity{Amount: amount, Asset: asset}
}

func Zero(asset Asset) Quantity {
	return Quantity{Asset: asset}
}

func (q Quantity) IsZero() bool {
	return q.Amount == 0
}

func (q Quantity) IsPositive() bool {
	return q.Amount > 0
}

// Add fails fast with ErrAssetMismatch when the identities differ.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	if q.Asset != o.Asset {
		return Quantity{}, fmt.Errorf("%w: %s + %s", ErrAssetMismatch, q.Asset.Code, o.Asset.Code)
	}
	sum := q.Amount + o.Amount
	if (o.Amount > 0 && sum < q.Amount) || (o.Amount < 0 && sum > q.Amount) {
		return Quantity{}, ErrAmountOverflow
	}
	return Quantity{Amount: sum, Asset: q.Asset}, nil
}

func (q Quantity) Sub(o Quantity) (Quantity, error) {
	if q.Asset != o.Asset {
		return Quantity{}, fmt.Errorf("%w: %s - %s", ErrAssetMismatch, q.Asset.Code, o.Asset.Code)
	}
	diff := q.Amount - o.Amount
	if (o.Amount > 0 && diff > q.Amount) || (o.Amount < 0 && diff < q.Amount) {
		return Quantity{}, ErrAmountOverflow
	}
	return Quantity{Amount: diff, Asset: q.Asset}, nil
}

func (q Quantity) Decimal() decimal.Decimal {
	return decimal.New(q.Amount, -int32(q.Asset.Precision))
}

// String renders "1000.0000 USDT".
func (q Quantity) String() string {
	return q.Decimal().StringFixed(int32(q.Asset.Precision)) + " " + q.Asset.Code
}

// ParseQuantity reads a decimal amount such as "1000.0000" or "1000.0000 USDT"
// into asset's native precision. Extra fractional digits are rejected rather
// than rounded.
func ParseQuantity(s string, asset Asset) (Quantity, error) {
	s = strings.TrimSpace(s)
	if fields := strings.Fields(s); len(fields) == 2 {
		if fields[1] != asset.Code {
			return Quantity{}, fmt.Errorf("%w: %s is not %s", ErrAssetMismatch, fields[1], asset.Code)
		}
		s = fields[0]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("%w: %v", ErrInvalidQuantity, err)
	}
	if d.IsNegative() {
		return Quantity{}, ErrNegativeAmount
	}

	scaled := d.Shift(int32(asset.Precision))
	if !scaled.Equal(scaled.Truncate(0)) {
		return Quantity{}, fmt.Errorf("%w: %s exceeds precision %d", ErrInvalidQuantity, s, asset.Precision)
	}
	amount := scaled.BigInt()
	if !amount.IsInt64() {
		return Quantity{}, fmt.Errorf("%w: %s", ErrAmountOverflow, s)
	}
	return Quantity{Amount: amount.Int64(), Asset: asset}, nil
}
