package model

import (
	"fmt"
	"time"
)

// PaymentMethod is how the shopper pays for an order.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// ParsePaymentMethod converts a wire value into a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown payment method %q", s)
	}
	return m, nil
}

// Valid reports whether m is one of the supported methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

// RequiresGateway reports whether the method authorizes a charge before the order exists.
func (m PaymentMethod) RequiresGateway() bool {
	return m == PaymentMethodCard
}

// ReferencePrefix is the METHOD tag used in synthesized payment references.
func (m PaymentMethod) ReferencePrefix() string {
	switch m {
	case PaymentMethodCard:
		return "CARD"
	case PaymentMethodBankTransfer:
		return "BANK"
	case PaymentMethodCashOnDelivery:
		return "COD"
	}
	return "UNKNOWN"
}

// InitialPaymentStatus is the payment status an order starts with for this method.
func (m PaymentMethod) InitialPaymentStatus() PaymentStatus {
	if m.RequiresGateway() {
		return PaymentStatusCompleted
	}
	return PaymentStatusPending
}

// PaymentAttempt carries the method and, once known, the reference used as idempotency key.
type PaymentAttempt struct {
	Method           PaymentMethod `json:"method"`
	GatewayReference string        `json:"gatewayReference,omitempty"`
}

// SynthesizeReference builds the {METHOD}-{timestamp} reference for methods that
// have no external authorization before the order is created.
func SynthesizeReference(m PaymentMethod, at time.Time) string {
	return fmt.Sprintf("%s-%d", m.ReferencePrefix(), at.UnixMilli())
}
