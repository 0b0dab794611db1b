package models

import (
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"
)

// Money amounts are stored as integer cents and handled as decimals in memory.
const centsExp = 2

// maxAmount is the largest amount representable in integer cents.
var maxAmount = FromCents(math.MaxInt64)

// InCentsRange reports whether d fits in int64 cents after rounding.
func InCentsRange(d decimal.Decimal) bool {
	return d.Round(centsExp).Abs().LessThanOrEqual(maxAmount)
}

// Cents converts an amount to integer minor units, rounding half away from zero.
// Amounts outside InCentsRange wrap; callers validate first.
func Cents(d decimal.Decimal) int64 {
	return d.Round(centsExp).Shift(centsExp).IntPart()
}

// FromCents converts integer minor units back to a decimal amount.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -centsExp)
}

// MoneyJSON renders an amount as a JSON number with two decimals.
func MoneyJSON(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(centsExp))
}
