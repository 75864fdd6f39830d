package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnreconciledPayment is a captured card payment for which no order could be recorded.
// It stays open until support resolves it by hand.
type UnreconciledPayment struct {
	ID               uuid.UUID          `json:"id"`
	CustomerID       string             `json:"customerId"`
	PaymentReference string             `json:"paymentReference"`
	Amount           decimal.Decimal    `json:"amount"`
	Currency         string             `json:"currency"`
	Snapshot         CreateOrderRequest `json:"snapshot"`
	Failure          string             `json:"failure"`
	CreatedAt        time.Time          `json:"createdAt"`
	ResolvedAt       *time.Time         `json:"resolvedAt,omitempty"`
}
