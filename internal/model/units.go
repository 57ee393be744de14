package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FromBaseUnits converts raw chain units into a human amount.
func FromBaseUnits(units *big.Int, decimals uint8) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -int32(decimals))
}

// ToBaseUnits converts a human amount into raw chain units, truncating any
// precision finer than one base unit.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}

// Rescale moves raw units between two decimal conventions of the same
// logical asset.
func Rescale(units *big.Int, from, to uint8) *big.Int {
	return ToBaseUnits(FromBaseUnits(units, from), to)
}
