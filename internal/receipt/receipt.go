// Package receipt maps orders to the copy shown on the receipt and order-history pages.
package receipt

import (
	"fmt"
	"time"

	"furniture-store/internal/model"
)

// Tone is the colour hint for the payment badge.
type Tone string

const (
	ToneGreen Tone = "green"
	ToneAmber Tone = "amber"
	ToneRed   Tone = "red"
	ToneGrey  Tone = "grey"
)

// Line is one receipt row.
type Line struct {
	Name      string `json:"name"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	LineTotal string `json:"lineTotal"`
}

// View is the read-only display form of an order.
type View struct {
	OrderNumber      string    `json:"orderNumber"`
	OrderStatus      string    `json:"orderStatus"`
	PaymentMethod    string    `json:"paymentMethod"`
	PaymentReference string    `json:"paymentReference"`
	PaymentLabel     string    `json:"paymentLabel"`
	Tone             Tone      `json:"tone"`
	Instructions     string    `json:"instructions,omitempty"`
	Items            []Line    `json:"items"`
	Subtotal         string    `json:"subtotal"`
	ShippingCost     string    `json:"shippingCost"`
	Total            string    `json:"total"`
	PlacedAt         time.Time `json:"placedAt"`
}

var methodNames = map[model.PaymentMethod]string{
	model.PaymentMethodCard:           "Credit card",
	model.PaymentMethodBankTransfer:   "Bank transfer",
	model.PaymentMethodCashOnDelivery: "Cash on delivery",
}

// Build maps o to its receipt view.
func Build(o *model.Order) View {
	label, tone, instructions := paymentBadge(o)

	items := make([]Line, len(o.Items))
	for i, l := range o.Items {
		items[i] = Line{
			Name:      l.Name,
			Size:      l.Size,
			Color:     l.Color,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			LineTotal: l.LineTotal().StringFixed(2),
		}
	}

	shipping := o.ShippingCost.StringFixed(2)
	if o.ShippingCost.IsZero() {
		shipping = "Free"
	}

	return View{
		OrderNumber:      o.OrderNumber,
		OrderStatus:      string(o.OrderStatus),
		PaymentMethod:    methodNames[o.PaymentInfo.Method],
		PaymentReference: o.PaymentInfo.GatewayReference,
		PaymentLabel:     label,
		Tone:             tone,
		Instructions:     instructions,
		Items:            items,
		Subtotal:         o.Subtotal.StringFixed(2),
		ShippingCost:     shipping,
		Total:            o.Total.StringFixed(2),
		PlacedAt:         o.CreatedAt,
	}
}

// Card orders read as paid. Bank and cash orders read as pending with how-to-pay copy
// until the payment status says otherwise.
func paymentBadge(o *model.Order) (string, Tone, string) {
	switch o.PaymentInfo.PaymentStatus {
	case model.PaymentStatusFailed:
		return "Failed", ToneRed, ""
	case model.PaymentStatusRefunded:
		return "Refunded", ToneGrey, ""
	}

	if o.PaymentInfo.Method == model.PaymentMethodCard || o.PaymentInfo.PaymentStatus == model.PaymentStatusCompleted {
		return "Paid", ToneGreen, ""
	}

	total := o.Total.StringFixed(2)
	switch o.PaymentInfo.Method {
	case model.PaymentMethodBankTransfer:
		return "Pending", ToneAmber, fmt.Sprintf(
			"Transfer %s to the account in your confirmation email and quote %s as the reference. We ship once the transfer arrives.",
			total, o.OrderNumber)
	case model.PaymentMethodCashOnDelivery:
		return "Pending", ToneAmber, fmt.Sprintf(
			"Please have %s ready for the courier when order %s is delivered.",
			total, o.OrderNumber)
	}
	return "Pending", ToneAmber, ""
}
