package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// weiDigits is the fractional precision of the native chain denomination.
const weiDigits = 18

// FromWei converts an integral wei amount into an 18-digit decimal.
// A nil input maps to zero.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -weiDigits)
}

// ToWei converts a decimal amount back to integral wei, rounding half up.
func ToWei(d decimal.Decimal) *big.Int {
	return d.Shift(weiDigits).Round(0).BigInt()
}
