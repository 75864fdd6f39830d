package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"furniture-store/internal/model"
)

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// InsertOrder inserts the order header within tx. It reports false without error when an
	// order with the same customer and payment reference already exists.
	InsertOrder(ctx context.Context, tx pgx.Tx, order *model.Order) (bool, error)

	// InsertOrderItems inserts the line snapshot of an order within tx.
	InsertOrderItems(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, items []model.CartLine) error

	// GetByReference returns the order created for a payment reference, or nil.
	GetByReference(ctx context.Context, customerID, reference string) (*model.Order, error)

	// GetByOrderNumber returns a customer's order by its public number, or nil.
	GetByOrderNumber(ctx context.Context, customerID, orderNumber string) (*model.Order, error)

	// ListByCustomer returns all orders of a customer, newest first.
	ListByCustomer(ctx context.Context, customerID string) ([]model.Order, error)

	// LockByID loads an order header within tx and locks the row, or returns nil.
	LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error)

	// UpdateStatus writes both status columns within tx.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, orderStatus model.OrderStatus, paymentStatus model.PaymentStatus) error
}

// UnreconciledRepository stores captured payments that have no order.
type UnreconciledRepository interface {
	// Record inserts p. Recording the same reference twice keeps the first record.
	Record(ctx context.Context, p *model.UnreconciledPayment) error

	// ListOpen returns unresolved records, oldest first.
	ListOpen(ctx context.Context) ([]model.UnreconciledPayment, error)
}
