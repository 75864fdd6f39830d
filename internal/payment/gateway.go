// Package payment talks to the card payment provider.
package payment

import (
	"context"
	"fmt"

	"furniture-store/internal/model"
)

// Status is the provider-reported state of a confirmed intent.
type Status string

const (
	StatusSucceeded      Status = "succeeded"
	StatusProcessing     Status = "processing"
	StatusRequiresAction Status = "requires_action"
	StatusFailed         Status = "failed"
)

// Intent is a created but unconfirmed payment.
type Intent struct {
	ID           string
	ClientSecret string
	AmountMinor  int64
	Currency     string
}

// CardDetails identifies the tokenized card to charge.
type CardDetails struct {
	PaymentMethodID string
}

// BillingDetails is sent with the confirmation for receipts and fraud checks.
type BillingDetails struct {
	Name    string
	Email   string
	Phone   string
	Address model.ShippingAddress
}

// Confirmation is the outcome of Confirm. Reference is the authorization id.
type Confirmation struct {
	Reference string
	Status    Status
}

// Gateway creates and confirms card payments. Only a Confirmation with StatusSucceeded
// means money was captured.
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error)
	Confirm(ctx context.Context, clientSecret string, card CardDetails, billing BillingDetails) (*Confirmation, error)
}

// DeclineError is returned by Confirm when the issuer refused the card.
type DeclineError struct {
	Code        string
	DeclineCode string
	Message     string
}

func (e *DeclineError) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("card declined (%s): %s", e.DeclineCode, e.Message)
	}
	return fmt.Sprintf("card declined: %s", e.Message)
}

func (e *DeclineError) Unwrap() error {
	return model.ErrCardDeclined
}
