// Package pricing derives totals from cart contents.
package pricing

import (
	"github.com/shopspring/decimal"

	"furniture-store/internal/model"
)

// Calculator applies the shipping rule to a set of cart lines.
type Calculator struct {
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
}

// NewCalculator creates a calculator. Shipping is free only when the subtotal is strictly
// above threshold.
func NewCalculator(threshold, fee decimal.Decimal) *Calculator {
	return &Calculator{
		FreeShippingThreshold: threshold,
		ShippingFee:           fee,
	}
}

// Price returns the snapshot for lines. It performs no I/O.
func (c *Calculator) Price(lines []model.CartLine) model.PricingSnapshot {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal())
	}

	shipping := c.ShippingFee
	if subtotal.GreaterThan(c.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return model.PricingSnapshot{
		Subtotal:     subtotal,
		ShippingCost: shipping,
		Total:        subtotal.Add(shipping),
	}
}

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a major-unit amount into the smallest currency unit, rounding
// half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
