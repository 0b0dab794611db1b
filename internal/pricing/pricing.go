// Package pricing computes order totals and shipping costs.
package pricing

import (
	"github.com/shopspring/decimal"
)

// FreeShippingThreshold returns the subtotal above which shipping is free.
func FreeShippingThreshold() decimal.Decimal {
	return decimal.New(1000, -2)
}

// Line is one priced (unit price, quantity) pair.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Quote is the result of pricing an order.
type Quote struct {
	Subtotal      decimal.Decimal
	ShippingCosts decimal.Decimal
	Total         decimal.Decimal
}

// Calculate prices lines against a restaurant's base shipping cost.
// Shipping is waived when the subtotal is strictly above FreeShippingThreshold.
func Calculate(baseShipping decimal.Decimal, lines []Line) Quote {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	shipping := baseShipping
	if subtotal.GreaterThan(FreeShippingThreshold()) {
		shipping = decimal.Zero
	}

	return Quote{
		Subtotal:      subtotal,
		ShippingCosts: shipping,
		Total:         subtotal.Add(shipping),
	}
}
