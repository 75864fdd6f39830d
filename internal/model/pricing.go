package model

import "github.com/shopspring/decimal"

// PricingSnapshot is derived from cart contents and never stored on its own.
type PricingSnapshot struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	Total        decimal.Decimal `json:"total"`
}
