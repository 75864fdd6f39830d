package service

import (
	"context"

	"furniture-store/internal/model"
)

// OrderService defines operations for order management.
type OrderService interface {
	// CreateOrder records an order for a confirmed payment. Repeating a request with the
	// same customer and payment reference returns the original order.
	CreateOrder(ctx context.Context, req model.CreateOrderRequest) (*model.OrderConfirmation, error)

	// ListOrders returns a customer's orders, newest first.
	ListOrders(ctx context.Context, customerID string) ([]model.Order, error)

	// GetByOrderNumber returns one of the customer's orders.
	GetByOrderNumber(ctx context.Context, customerID, orderNumber string) (*model.Order, error)

	// UpdateStatus applies a fulfillment change, enforcing the status state machines.
	UpdateStatus(ctx context.Context, update model.StatusUpdate) error
}
